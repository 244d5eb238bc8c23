package help

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"namelog/pkg/namelog"
)

func TestModuleHandleCommand(t *testing.T) {
	tests := []struct {
		name             string
		event            *namelog.Event
		catalogCommands  []namelog.RegisteredCommand
		catalogErr       error
		sendErr          error
		wantErr          bool
		wantSentHelp     bool
		wantTextContains []string
	}{
		{
			name:  "help command renders registered commands",
			event: newCommandEvent("/help"),
			catalogCommands: []namelog.RegisteredCommand{
				{
					ModuleName: "namehistory",
					Command: namelog.CommandSpec{
						Prefix:      namelog.CommandPrefixOrdinary,
						Name:        "history",
						Description: "show a member's name-change history",
						Options: []namelog.CommandOptionSpec{
							{Name: "sort", Alias: "s", HasValue: true},
							{Name: "page", Alias: "p", HasValue: true},
						},
					},
				},
				{
					ModuleName: "namehistory",
					Command: namelog.CommandSpec{
						Prefix:      namelog.CommandPrefixSystem,
						Name:        "import",
						Description: "replay a rename audit export from a local file",
					},
				},
				{
					ModuleName: "help",
					Command: namelog.CommandSpec{
						Prefix:      namelog.CommandPrefixOrdinary,
						Name:        "help",
						Description: "show all available commands",
					},
				},
			},
			wantSentHelp: true,
			wantTextContains: []string{
				"Available commands:",
				"/help",
				"show all available commands",
				"(help)",
				"/history",
				"usage: --page|-p <value>, --sort|-s <value>",
				"show a member's name-change history",
				"~import",
				"replay a rename audit export from a local file",
				"(namehistory)",
			},
		},
		{
			name:         "non-help command ignored",
			event:        newCommandEvent("/history"),
			wantSentHelp: false,
		},
		{
			name:         "system help command ignored",
			event:        newCommandEvent("~help"),
			wantSentHelp: false,
		},
		{
			name:         "missing command payload ignored",
			event:        newMissingCommandPayloadEvent(),
			wantSentHelp: false,
		},
		{
			name:         "catalog error returns error",
			event:        newCommandEvent("/help"),
			catalogErr:   errors.New("catalog failure"),
			wantErr:      true,
			wantSentHelp: false,
		},
		{
			name:         "send error returns error",
			event:        newCommandEvent("/help"),
			catalogErr:   nil,
			sendErr:      errors.New("dispatcher failure"),
			wantErr:      true,
			wantSentHelp: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			module := New()
			dispatcher := &captureDispatcher{
				messageID: "sent-1",
				sendErr:   testCase.sendErr,
			}
			commandCatalog := &captureCommandCatalog{
				commands: testCase.catalogCommands,
				err:      testCase.catalogErr,
			}
			module.dispatcher = dispatcher
			module.commandCatalog = commandCatalog

			err := module.handleCommand(context.Background(), testCase.event)
			if testCase.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			sentHelp := dispatcher.calls.Load() > 0
			if sentHelp != testCase.wantSentHelp {
				t.Fatalf("sent help = %v, want %v", sentHelp, testCase.wantSentHelp)
			}
			if !sentHelp {
				return
			}

			if dispatcher.lastRequest.ReplyToMessageID != testCase.event.Message.ID {
				t.Fatalf(
					"reply_to = %q, want %q",
					dispatcher.lastRequest.ReplyToMessageID,
					testCase.event.Message.ID,
				)
			}
			if dispatcher.lastRequest.Target.Platform != namelog.PlatformTelegram {
				t.Fatalf(
					"target platform = %q, want telegram",
					dispatcher.lastRequest.Target.Platform,
				)
			}
			if dispatcher.lastRequest.Target.Conversation.ID != "42" {
				t.Fatalf(
					"target conversation = %q, want 42",
					dispatcher.lastRequest.Target.Conversation.ID,
				)
			}
			for _, wantSubstring := range testCase.wantTextContains {
				if !strings.Contains(dispatcher.lastRequest.Text, wantSubstring) {
					t.Fatalf("text = %q, missing substring %q", dispatcher.lastRequest.Text, wantSubstring)
				}
			}
		})
	}
}

func TestModuleOnRegister(t *testing.T) {
	tests := []struct {
		name             string
		services         map[string]any
		wantErrSubstring string
	}{
		{
			name: "resolve dependencies succeeds",
			services: map[string]any{
				namelog.ServiceOutboundDispatcher: &captureDispatcher{},
				namelog.ServiceCommandCatalog:     &captureCommandCatalog{},
			},
		},
		{
			name: "missing outbound dispatcher fails",
			services: map[string]any{
				namelog.ServiceCommandCatalog: &captureCommandCatalog{},
			},
			wantErrSubstring: "help resolve outbound dispatcher",
		},
		{
			name: "missing command catalog fails",
			services: map[string]any{
				namelog.ServiceOutboundDispatcher: &captureDispatcher{},
			},
			wantErrSubstring: "help resolve command catalog",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			module := New()
			registry := serviceRegistryStub{values: testCase.services}
			err := module.OnRegister(context.Background(), moduleRuntimeStub{registry: registry})

			if testCase.wantErrSubstring == "" && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if testCase.wantErrSubstring != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", testCase.wantErrSubstring)
				}
				if !strings.Contains(err.Error(), testCase.wantErrSubstring) {
					t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSubstring)
				}
			}
		})
	}
}

func TestModuleSpecUsesCommandCapability(t *testing.T) {
	t.Parallel()

	module := New()
	spec := module.Spec()
	if len(spec.Handlers) != 1 {
		t.Fatalf("handler count = %d, want 1", len(spec.Handlers))
	}
	if len(spec.Commands) != 1 {
		t.Fatalf("command count = %d, want 1", len(spec.Commands))
	}

	handler := spec.Handlers[0]
	if !handler.Capability.Interest.RequireCommand {
		t.Fatal("expected RequireCommand to be true")
	}
	if !handler.Capability.Interest.RequireMessage {
		t.Fatal("expected RequireMessage to be true")
	}
	if len(handler.Capability.Interest.Kinds) != 1 || handler.Capability.Interest.Kinds[0] != namelog.EventKindCommandReceived {
		t.Fatalf("kinds = %v, want [%s]", handler.Capability.Interest.Kinds, namelog.EventKindCommandReceived)
	}
	if len(handler.Capability.Interest.CommandNames) != 1 || handler.Capability.Interest.CommandNames[0] != helpCommandName {
		t.Fatalf("command names = %v, want [%s]", handler.Capability.Interest.CommandNames, helpCommandName)
	}
}

func newCommandEvent(text string) *namelog.Event {
	candidate, matched, err := namelog.ParseCommandCandidate(text)
	if err != nil {
		panic(err)
	}
	if !matched {
		panic("newCommandEvent expects command text")
	}
	commandKind := namelog.EventKindCommandReceived
	if candidate.Prefix == namelog.CommandPrefixSystem {
		commandKind = namelog.EventKindSystemCommandReceived
	}

	return &namelog.Event{
		ID:         "event-1",
		Kind:       commandKind,
		OccurredAt: time.Unix(1, 0).UTC(),
		Platform:   namelog.PlatformTelegram,
		Conversation: namelog.Conversation{
			ID:   "42",
			Type: namelog.ConversationTypePrivate,
		},
		Message: &namelog.Message{
			ID:   "msg-1",
			Text: text,
		},
		Command: &namelog.CommandInvocation{
			Name:            candidate.Name,
			Mention:         candidate.Mention,
			Value:           strings.Join(candidate.Tokens, " "),
			SourceEventID:   "source-event-1",
			SourceEventKind: namelog.EventKindMessageCreated,
			RawInput:        text,
		},
	}
}

func newMissingCommandPayloadEvent() *namelog.Event {
	return &namelog.Event{
		ID:         "event-1",
		Kind:       namelog.EventKindCommandReceived,
		OccurredAt: time.Unix(1, 0).UTC(),
		Platform:   namelog.PlatformTelegram,
		Conversation: namelog.Conversation{
			ID:   "42",
			Type: namelog.ConversationTypePrivate,
		},
		Message: &namelog.Message{
			ID:   "msg-1",
			Text: "/help",
		},
	}
}

type captureDispatcher struct {
	calls       atomic.Int64
	messageID   string
	sendErr     error
	lastRequest namelog.SendMessageRequest
}

func (d *captureDispatcher) SendMessage(
	_ context.Context,
	request namelog.SendMessageRequest,
) (*namelog.OutboundMessage, error) {
	d.calls.Add(1)
	d.lastRequest = request
	if d.sendErr != nil {
		return nil, d.sendErr
	}

	return &namelog.OutboundMessage{ID: d.messageID, Target: request.Target}, nil
}

func (*captureDispatcher) EditMessage(context.Context, namelog.EditMessageRequest) error {
	return nil
}

type captureCommandCatalog struct {
	commands []namelog.RegisteredCommand
	err      error
}

func (c *captureCommandCatalog) ListCommands(context.Context) ([]namelog.RegisteredCommand, error) {
	if c.err != nil {
		return nil, c.err
	}

	return append([]namelog.RegisteredCommand(nil), c.commands...), nil
}

type moduleRuntimeStub struct {
	registry namelog.ServiceRegistry
}

func (s moduleRuntimeStub) Services() namelog.ServiceRegistry {
	return s.registry
}

func (moduleRuntimeStub) Subscribe(
	context.Context,
	namelog.InterestSet,
	namelog.SubscriptionSpec,
	namelog.EventHandler,
) (namelog.Subscription, error) {
	return nil, nil
}

type serviceRegistryStub struct {
	values map[string]any
}

func (s serviceRegistryStub) Register(string, any) error {
	return nil
}

func (s serviceRegistryStub) Resolve(name string) (any, error) {
	value, ok := s.values[name]
	if !ok {
		return nil, namelog.ErrServiceNotFound
	}

	return value, nil
}
