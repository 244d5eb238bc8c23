package namehistory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"namelog/pkg/namelog"
)

// StoreOption mutates store configuration.
type StoreOption func(*Store)

// WithStoreLogger configures structured logging for store operations.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store is the persistent per-member name-change history and like engine.
//
// One mutex serializes every mutation end-to-end: the in-memory document is
// loaded once, modified under the lock, and persisted before the mutation
// returns. Readers take defensive snapshots under the same lock and render
// outside it.
type Store struct {
	persistence Persistence
	logger      *slog.Logger

	mu        sync.Mutex
	histories map[namelog.MemberID][]namelog.ChangeRecord
	loaded    bool
}

// NewStore creates a history store backed by the given persistence.
func NewStore(persistence Persistence, options ...StoreOption) (*Store, error) {
	if persistence == nil {
		return nil, fmt.Errorf("new history store: nil persistence")
	}

	store := &Store{
		persistence: persistence,
		logger:      slog.Default(),
	}
	for _, option := range options {
		option(store)
	}

	return store, nil
}

// GetHistory returns one ordered page of a member's history.
func (s *Store) GetHistory(
	ctx context.Context,
	query namelog.HistoryQuery,
) (namelog.HistoryPage, error) {
	if err := query.Member.Validate(); err != nil {
		return namelog.HistoryPage{}, fmt.Errorf("get history: %w", err)
	}

	records, err := s.snapshotMember(ctx, query.Member)
	if err != nil {
		return namelog.HistoryPage{}, fmt.Errorf("get history for %s: %w", query.Member, err)
	}

	page, err := buildHistoryPage(records, query.Sort, query.Page, query.PageSize)
	if err != nil {
		return namelog.HistoryPage{}, fmt.Errorf("get history for %s: %w", query.Member, err)
	}

	return page, nil
}

// RecordRename appends one observed display-name change.
//
// Live ingest never deduplicates: a member can flip back and forth between
// two names and every transition is part of the history.
func (s *Store) RecordRename(ctx context.Context, record namelog.RenameRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("record rename: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(ctx); err != nil {
		return fmt.Errorf("record rename for %s: %w", record.Owner, err)
	}

	appended := append(
		cloneChangeRecords(s.histories[record.Owner]),
		namelog.ChangeRecord{
			OldName:   record.OldName,
			NewName:   record.NewName,
			ChangedAt: normalizeChangeTime(record.ChangedAt),
		},
	)
	if err := s.persistMemberLocked(ctx, record.Owner, appended); err != nil {
		return fmt.Errorf("record rename for %s: %w", record.Owner, err)
	}

	s.logger.InfoContext(
		ctx,
		"recorded name change",
		"member", record.Owner,
		"old_name", record.OldName,
		"new_name", record.NewName,
	)

	return nil
}

// ToggleLike flips voter's vote on the owner's record at the given
// date-ordered index and returns the resulting state.
func (s *Store) ToggleLike(
	ctx context.Context,
	owner namelog.MemberID,
	index int,
	voter namelog.MemberID,
) (namelog.LikeResult, error) {
	if err := owner.Validate(); err != nil {
		return namelog.LikeResult{}, fmt.Errorf("toggle like: owner: %w", err)
	}
	if err := voter.Validate(); err != nil {
		return namelog.LikeResult{}, fmt.Errorf("toggle like: voter: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(ctx); err != nil {
		return namelog.LikeResult{}, fmt.Errorf("toggle like for %s: %w", owner, err)
	}

	records := s.histories[owner]
	view := sortedView(records, namelog.SortByDate)
	if index < 0 || index >= len(view) {
		return namelog.LikeResult{}, fmt.Errorf(
			"%w: member %s has no record at index %d", namelog.ErrRecordNotFound, owner, index,
		)
	}

	mutated := cloneChangeRecords(records)
	position := view[index].position
	record := &mutated[position]

	action := namelog.LikeActionLiked
	if record.LikedByMember(voter) {
		action = namelog.LikeActionUnliked
		record.LikedBy = removeLiker(record.LikedBy, voter)
	} else {
		record.LikedBy = append(record.LikedBy, voter)
	}

	if err := s.persistMemberLocked(ctx, owner, mutated); err != nil {
		return namelog.LikeResult{}, fmt.Errorf("toggle like for %s: %w", owner, err)
	}

	return namelog.LikeResult{
		Action: action,
		Count:  record.LikeCount(),
		Record: cloneChangeRecord(*record),
	}, nil
}

// Import appends a batch of normalized rename tuples, skipping exact
// duplicates of already-stored records and of earlier tuples in the batch.
// Re-running the same import is a no-op.
func (s *Store) Import(
	ctx context.Context,
	records []namelog.RenameRecord,
) (namelog.ImportReport, error) {
	for position, record := range records {
		if err := record.Validate(); err != nil {
			return namelog.ImportReport{}, fmt.Errorf("import record %d: %w", position, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(ctx); err != nil {
		return namelog.ImportReport{}, fmt.Errorf("import history: %w", err)
	}

	seen := make(map[string]struct{})
	for member, existing := range s.histories {
		for _, record := range existing {
			seen[importKey(member, record.OldName, record.NewName, record.ChangedAt)] = struct{}{}
		}
	}

	mutated := make(map[namelog.MemberID][]namelog.ChangeRecord, len(s.histories))
	for member, existing := range s.histories {
		mutated[member] = cloneChangeRecords(existing)
	}

	report := namelog.ImportReport{}
	for _, record := range records {
		changedAt := normalizeChangeTime(record.ChangedAt)
		key := importKey(record.Owner, record.OldName, record.NewName, changedAt)
		if _, duplicate := seen[key]; duplicate {
			report.Skipped++
			continue
		}
		seen[key] = struct{}{}
		mutated[record.Owner] = append(mutated[record.Owner], namelog.ChangeRecord{
			OldName:   record.OldName,
			NewName:   record.NewName,
			ChangedAt: changedAt,
		})
		report.Added++
	}

	if report.Added > 0 {
		if err := s.persistLocked(ctx, mutated); err != nil {
			return namelog.ImportReport{}, fmt.Errorf("import history: %w", err)
		}
	}

	s.logger.InfoContext(
		ctx,
		"imported history records",
		"added", report.Added,
		"skipped", report.Skipped,
	)

	return report, nil
}

// FindLiked returns records carrying at least one vote.
func (s *Store) FindLiked(
	ctx context.Context,
	owner namelog.MemberID,
	name string,
) ([]namelog.LikerEntry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		if err := owner.Validate(); err != nil {
			return nil, fmt.Errorf("find liked: %w", err)
		}
	}

	s.mu.Lock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("find liked: %w", err)
	}
	snapshot := make(map[namelog.MemberID][]namelog.ChangeRecord, len(s.histories))
	for member, records := range s.histories {
		snapshot[member] = cloneChangeRecords(records)
	}
	s.mu.Unlock()

	entries := make([]namelog.LikerEntry, 0)
	if name != "" {
		for _, member := range sortedMemberIDs(snapshot) {
			for _, record := range snapshot[member] {
				if record.LikeCount() == 0 {
					continue
				}
				if !strings.EqualFold(record.NewName, name) {
					continue
				}
				entries = append(entries, namelog.LikerEntry{Owner: member, Record: record})
			}
		}
		return entries, nil
	}

	for _, record := range snapshot[owner] {
		if record.LikeCount() == 0 {
			continue
		}
		entries = append(entries, namelog.LikerEntry{Owner: owner, Record: record})
	}

	return entries, nil
}

// snapshotMember copies one member's records under the lock.
func (s *Store) snapshotMember(
	ctx context.Context,
	member namelog.MemberID,
) ([]namelog.ChangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}

	return cloneChangeRecords(s.histories[member]), nil
}

// ensureLoadedLocked lazily loads the persisted document on first access.
func (s *Store) ensureLoadedLocked(ctx context.Context) error {
	if s.loaded {
		return nil
	}

	histories, err := s.persistence.Load(ctx)
	if err != nil {
		return err
	}
	if histories == nil {
		histories = map[namelog.MemberID][]namelog.ChangeRecord{}
	}

	s.histories = histories
	s.loaded = true

	return nil
}

// persistMemberLocked saves the document with one member's records replaced,
// committing the in-memory state only after the save succeeds.
func (s *Store) persistMemberLocked(
	ctx context.Context,
	member namelog.MemberID,
	records []namelog.ChangeRecord,
) error {
	mutated := make(map[namelog.MemberID][]namelog.ChangeRecord, len(s.histories)+1)
	for existingMember, existing := range s.histories {
		mutated[existingMember] = existing
	}
	mutated[member] = records

	return s.persistLocked(ctx, mutated)
}

func (s *Store) persistLocked(
	ctx context.Context,
	histories map[namelog.MemberID][]namelog.ChangeRecord,
) error {
	if err := s.persistence.Save(ctx, histories); err != nil {
		return err
	}
	s.histories = histories

	return nil
}

func removeLiker(likers []namelog.MemberID, voter namelog.MemberID) []namelog.MemberID {
	filtered := make([]namelog.MemberID, 0, len(likers))
	for _, liker := range likers {
		if liker == voter {
			continue
		}
		filtered = append(filtered, liker)
	}

	return filtered
}

// normalizeChangeTime truncates to the wire format's minute precision.
func normalizeChangeTime(value time.Time) time.Time {
	return value.UTC().Truncate(time.Minute)
}

func importKey(owner namelog.MemberID, oldName, newName string, changedAt time.Time) string {
	return fmt.Sprintf(
		"%s\x00%s\x00%s\x00%s",
		owner, oldName, newName, normalizeChangeTime(changedAt).Format(documentTimeLayout),
	)
}
