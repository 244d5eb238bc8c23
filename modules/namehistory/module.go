package namehistory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"namelog/pkg/namelog"
)

const defaultPageSize = 10

// ModuleOption mutates module configuration.
type ModuleOption func(*Module)

// WithPageSize configures how many records one history page holds.
func WithPageSize(pageSize int) ModuleOption {
	return func(m *Module) {
		if pageSize > 0 {
			m.pageSize = pageSize
		}
	}
}

// WithDefaultSort configures the ordering used when `/history` has no --sort.
func WithDefaultSort(key namelog.SortKey) ModuleOption {
	return func(m *Module) {
		if key.Validate() == nil {
			m.defaultSort = key
		}
	}
}

// WithLogger configures structured logging for the module.
func WithLogger(logger *slog.Logger) ModuleOption {
	return func(m *Module) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Module exposes the name-change history over rename ingest and the
// `/history`, `/like`, `/wholike` and `~import` commands.
type Module struct {
	history     namelog.HistoryService
	dispatcher  namelog.OutboundDispatcher
	logger      *slog.Logger
	pageSize    int
	defaultSort namelog.SortKey
}

// New creates a name-history module with default configuration.
func New(options ...ModuleOption) *Module {
	module := &Module{
		logger:      slog.Default(),
		pageSize:    defaultPageSize,
		defaultSort: namelog.SortByDate,
	}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "namehistory"
}

// Spec declares rename ingest and the command surface.
func (m *Module) Spec() namelog.ModuleSpec {
	return namelog.ModuleSpec{
		Handlers: []namelog.ModuleHandler{
			{
				Capability: namelog.Capability{
					Name:        "rename-recorder",
					Description: "records member display-name changes into the history store",
					Interest: namelog.InterestSet{
						Kinds:         []namelog.EventKind{namelog.EventKindMemberRenamed},
						RequireRename: true,
					},
					RequiredServices: []string{namelog.ServiceHistory},
				},
				Subscription: namelog.NewDefaultSubscriptionSpec("namehistory-renames"),
				Handler:      m.handleRename,
			},
			{
				Capability: namelog.Capability{
					Name:        "history-command-handler",
					Description: "serves /history, /like and /wholike lookups",
					Interest: namelog.InterestSet{
						Kinds:          []namelog.EventKind{namelog.EventKindCommandReceived},
						RequireCommand: true,
						RequireMessage: true,
						CommandNames: []string{
							historyCommandName,
							likeCommandName,
							wholikeCommandName,
						},
					},
					RequiredServices: []string{
						namelog.ServiceHistory,
						namelog.ServiceOutboundDispatcher,
					},
				},
				Subscription: namelog.NewDefaultSubscriptionSpec("namehistory-commands"),
				Handler:      m.handleCommand,
			},
			{
				Capability: namelog.Capability{
					Name:        "history-import-handler",
					Description: "replays audit exports into the history store via ~import",
					Interest: namelog.InterestSet{
						Kinds:          []namelog.EventKind{namelog.EventKindSystemCommandReceived},
						RequireCommand: true,
						RequireMessage: true,
						CommandNames:   []string{importCommandName},
					},
					RequiredServices: []string{
						namelog.ServiceHistory,
						namelog.ServiceOutboundDispatcher,
					},
				},
				Subscription: namelog.NewDefaultSubscriptionSpec("namehistory-imports"),
				Handler:      m.handleImport,
			},
		},
		Commands: []namelog.CommandSpec{
			{
				Prefix:      namelog.CommandPrefixOrdinary,
				Name:        historyCommandName,
				Description: "show a member's name-change history",
				Options: []namelog.CommandOptionSpec{
					{
						Name:        "sort",
						Alias:       "s",
						HasValue:    true,
						Description: "order records by date or likes",
					},
					{
						Name:        "page",
						Alias:       "p",
						HasValue:    true,
						Description: "one-based page to display",
					},
				},
			},
			{
				Prefix:      namelog.CommandPrefixOrdinary,
				Name:        likeCommandName,
				Description: "toggle a like on a history record by index",
				Options: []namelog.CommandOptionSpec{
					{
						Name:        "member",
						Alias:       "m",
						HasValue:    true,
						Description: "owner of the record, defaults to yourself",
					},
				},
			},
			{
				Prefix:      namelog.CommandPrefixOrdinary,
				Name:        wholikeCommandName,
				Description: "list who liked recorded name changes",
			},
			{
				Prefix:      namelog.CommandPrefixSystem,
				Name:        importCommandName,
				Description: "replay a rename audit export from a local file",
			},
		},
	}
}

// OnRegister resolves service dependencies required by this module.
func (m *Module) OnRegister(_ context.Context, runtime namelog.ModuleRuntime) error {
	history, err := namelog.ResolveAs[namelog.HistoryService](
		runtime.Services(),
		namelog.ServiceHistory,
	)
	if err != nil {
		return fmt.Errorf("namehistory resolve history service: %w", err)
	}

	dispatcher, err := namelog.ResolveAs[namelog.OutboundDispatcher](
		runtime.Services(),
		namelog.ServiceOutboundDispatcher,
	)
	if err != nil {
		return fmt.Errorf("namehistory resolve outbound dispatcher: %w", err)
	}

	m.history = history
	m.dispatcher = dispatcher

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(_ context.Context) error {
	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

// handleRename appends one observed display-name change to the store.
func (m *Module) handleRename(ctx context.Context, event *namelog.Event) error {
	if event == nil || event.Rename == nil {
		return nil
	}
	if event.Rename.Member.ID == "" {
		return nil
	}

	changedAt := event.OccurredAt
	if changedAt.IsZero() {
		changedAt = time.Now()
	}

	err := m.history.RecordRename(ctx, namelog.RenameRecord{
		Owner:     namelog.MemberID(event.Rename.Member.ID),
		OldName:   event.Rename.OldName,
		NewName:   event.Rename.NewName,
		ChangedAt: changedAt,
	})
	if err != nil {
		return fmt.Errorf("namehistory record rename: %w", err)
	}

	return nil
}

func (m *Module) handleCommand(ctx context.Context, event *namelog.Event) error {
	if event == nil || event.Command == nil || event.Message == nil {
		return nil
	}

	switch event.Command.Name {
	case historyCommandName:
		return m.handleHistoryCommand(ctx, event)
	case likeCommandName:
		return m.handleLikeCommand(ctx, event)
	case wholikeCommandName:
		return m.handleWholikeCommand(ctx, event)
	default:
		return nil
	}
}

func (m *Module) handleHistoryCommand(ctx context.Context, event *namelog.Event) error {
	request, err := parseHistoryCommand(event.Command, namelog.MemberID(event.Actor.ID))
	if err != nil {
		return m.replyText(ctx, event, fmt.Sprintf("Cannot read that: %v", err))
	}
	if request.sort == "" {
		request.sort = m.defaultSort
	}

	page, err := m.history.GetHistory(ctx, namelog.HistoryQuery{
		Member:   request.member,
		Sort:     request.sort,
		Page:     request.page,
		PageSize: m.pageSize,
	})
	if err != nil {
		return fmt.Errorf("namehistory get history: %w", err)
	}

	return m.replyText(ctx, event, renderHistoryPage(request.member, page))
}

func (m *Module) handleLikeCommand(ctx context.Context, event *namelog.Event) error {
	request, err := parseLikeCommand(event.Command, namelog.MemberID(event.Actor.ID))
	if err != nil {
		return m.replyText(ctx, event, fmt.Sprintf("Cannot read that: %v", err))
	}

	result, err := m.history.ToggleLike(
		ctx,
		request.owner,
		request.index,
		namelog.MemberID(event.Actor.ID),
	)
	if err != nil {
		if errors.Is(err, namelog.ErrRecordNotFound) {
			return m.replyText(
				ctx,
				event,
				fmt.Sprintf("No record at index %d for %s.", request.index+1, request.owner),
			)
		}
		return fmt.Errorf("namehistory toggle like: %w", err)
	}

	return m.replyText(ctx, event, renderLikeResult(request.owner, result))
}

func (m *Module) handleWholikeCommand(ctx context.Context, event *namelog.Event) error {
	name := event.Command.Value

	entries, err := m.history.FindLiked(ctx, namelog.MemberID(event.Actor.ID), name)
	if err != nil {
		return fmt.Errorf("namehistory find liked: %w", err)
	}

	return m.replyText(ctx, event, renderLikerEntries(name, entries))
}

// handleImport reads a local audit export and replays it through the store.
func (m *Module) handleImport(ctx context.Context, event *namelog.Event) error {
	if event == nil || event.Command == nil || event.Message == nil {
		return nil
	}
	if event.Command.Name != importCommandName {
		return nil
	}

	path := firstValueToken(event.Command.Value)
	if path == "" {
		return m.replyText(ctx, event, "Usage: ~import <path to rename export>")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return m.replyText(ctx, event, fmt.Sprintf("Cannot read export file: %v", err))
	}

	records, err := decodeRenameExport(data)
	if err != nil {
		return m.replyText(ctx, event, fmt.Sprintf("Cannot parse export file: %v", err))
	}

	report, err := m.history.Import(ctx, records)
	if err != nil {
		return fmt.Errorf("namehistory import: %w", err)
	}

	m.logger.InfoContext(
		ctx,
		"replayed rename export",
		"path", path,
		"added", report.Added,
		"skipped", report.Skipped,
	)

	return m.replyText(ctx, event, renderImportReport(report))
}

func (m *Module) replyText(ctx context.Context, event *namelog.Event, text string) error {
	target, err := namelog.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("namehistory derive outbound target: %w", err)
	}

	_, err = m.dispatcher.SendMessage(ctx, namelog.SendMessageRequest{
		Target:           target,
		Text:             text,
		ReplyToMessageID: event.Message.ID,
	})
	if err != nil {
		return fmt.Errorf("namehistory send reply: %w", err)
	}

	return nil
}
