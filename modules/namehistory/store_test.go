package namehistory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"namelog/pkg/namelog"
)

// memoryPersistence is an in-memory Persistence with injectable failures.
type memoryPersistence struct {
	mu        sync.Mutex
	histories map[namelog.MemberID][]namelog.ChangeRecord
	loadErr   error
	saveErr   error
	saveCalls int
}

func (p *memoryPersistence) Load(
	_ context.Context,
) (map[namelog.MemberID][]namelog.ChangeRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loadErr != nil {
		return nil, p.loadErr
	}

	loaded := make(map[namelog.MemberID][]namelog.ChangeRecord, len(p.histories))
	for member, records := range p.histories {
		loaded[member] = cloneChangeRecords(records)
	}

	return loaded, nil
}

func (p *memoryPersistence) Save(
	_ context.Context,
	histories map[namelog.MemberID][]namelog.ChangeRecord,
) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.saveCalls++
	if p.saveErr != nil {
		return p.saveErr
	}

	saved := make(map[namelog.MemberID][]namelog.ChangeRecord, len(histories))
	for member, records := range histories {
		saved[member] = cloneChangeRecords(records)
	}
	p.histories = saved

	return nil
}

func (p *memoryPersistence) savedRecords(member namelog.MemberID) []namelog.ChangeRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	return cloneChangeRecords(p.histories[member])
}

func newTestStore(t *testing.T, persistence Persistence) *Store {
	t.Helper()

	store, err := NewStore(persistence)
	if err != nil {
		t.Fatalf("new store failed: %v", err)
	}

	return store
}

func renameAt(owner namelog.MemberID, oldName, newName string, changedAt time.Time) namelog.RenameRecord {
	return namelog.RenameRecord{
		Owner:     owner,
		OldName:   oldName,
		NewName:   newName,
		ChangedAt: changedAt,
	}
}

func TestNewStoreRequiresPersistence(t *testing.T) {
	t.Parallel()

	if _, err := NewStore(nil); err == nil {
		t.Fatal("expected error for nil persistence")
	}
}

func TestStoreRecordRename(t *testing.T) {
	t.Parallel()

	persistence := &memoryPersistence{}
	store := newTestStore(t, persistence)
	ctx := context.Background()
	changedAt := time.Date(2024, 3, 1, 12, 30, 45, 123, time.UTC)

	if err := store.RecordRename(ctx, renameAt("1001", "Alpha", "Beta", changedAt)); err != nil {
		t.Fatalf("record rename failed: %v", err)
	}
	// Repeated transitions are real history, never collapsed.
	if err := store.RecordRename(ctx, renameAt("1001", "Alpha", "Beta", changedAt)); err != nil {
		t.Fatalf("repeat record rename failed: %v", err)
	}

	saved := persistence.savedRecords("1001")
	if len(saved) != 2 {
		t.Fatalf("saved record count = %d, want 2", len(saved))
	}
	wantTime := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	if !saved[0].ChangedAt.Equal(wantTime) {
		t.Fatalf("changed_at = %v, want minute-truncated %v", saved[0].ChangedAt, wantTime)
	}

	if err := store.RecordRename(ctx, renameAt("", "a", "b", changedAt)); err == nil {
		t.Fatal("expected error for missing owner")
	}
	if err := store.RecordRename(ctx, renameAt("1001", "", "", changedAt)); err == nil {
		t.Fatal("expected error for both names empty")
	}
}

func TestStoreGetHistory(t *testing.T) {
	t.Parallel()

	persistence := &memoryPersistence{}
	store := newTestStore(t, persistence)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for position := 0; position < 5; position++ {
		record := renameAt(
			"1001",
			fmt.Sprintf("name-%d", position),
			fmt.Sprintf("name-%d", position+1),
			base.Add(time.Duration(position)*time.Minute),
		)
		if err := store.RecordRename(ctx, record); err != nil {
			t.Fatalf("record rename failed: %v", err)
		}
	}

	page, err := store.GetHistory(ctx, namelog.HistoryQuery{
		Member:   "1001",
		Sort:     namelog.SortByDate,
		Page:     1,
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("get history failed: %v", err)
	}
	if page.Total != 5 || page.PageCount != 3 {
		t.Fatalf("total/page count = %d/%d, want 5/3", page.Total, page.PageCount)
	}
	if len(page.Items) != 2 || page.Items[0].Record.NewName != "name-3" {
		t.Fatalf("page items = %+v, want name-3 first", page.Items)
	}
	if !page.HasPrev || !page.HasNext {
		t.Fatal("middle page should have both neighbours")
	}

	unknown, err := store.GetHistory(ctx, namelog.HistoryQuery{Member: "9999", PageSize: 10})
	if err != nil {
		t.Fatalf("get history for unknown member failed: %v", err)
	}
	if len(unknown.Items) != 0 || unknown.PageCount != 1 {
		t.Fatalf("unknown member page = %+v, want single empty page", unknown)
	}

	if _, err := store.GetHistory(ctx, namelog.HistoryQuery{Member: "1001", PageSize: 0}); !errors.Is(err, namelog.ErrInvalidPageSize) {
		t.Fatalf("error = %v, want ErrInvalidPageSize", err)
	}
	if _, err := store.GetHistory(ctx, namelog.HistoryQuery{Member: "", PageSize: 10}); err == nil {
		t.Fatal("expected error for missing member")
	}
}

func TestStoreToggleLike(t *testing.T) {
	t.Parallel()

	persistence := &memoryPersistence{}
	store := newTestStore(t, persistence)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.RecordRename(ctx, renameAt("1001", "Alpha", "Beta", base)); err != nil {
		t.Fatalf("record rename failed: %v", err)
	}
	if err := store.RecordRename(ctx, renameAt("1001", "Beta", "Gamma", base.Add(time.Minute))); err != nil {
		t.Fatalf("record rename failed: %v", err)
	}

	// Index 0 of the date-sorted view is the newest change, Gamma.
	liked, err := store.ToggleLike(ctx, "1001", 0, "7")
	if err != nil {
		t.Fatalf("toggle like failed: %v", err)
	}
	if liked.Action != namelog.LikeActionLiked || liked.Count != 1 {
		t.Fatalf("result = %+v, want liked with count 1", liked)
	}
	if liked.Record.NewName != "Gamma" {
		t.Fatalf("liked record = %q, want Gamma", liked.Record.NewName)
	}

	again, err := store.ToggleLike(ctx, "1001", 0, "8")
	if err != nil {
		t.Fatalf("toggle like failed: %v", err)
	}
	if again.Count != 2 {
		t.Fatalf("count = %d, want 2", again.Count)
	}

	unliked, err := store.ToggleLike(ctx, "1001", 0, "7")
	if err != nil {
		t.Fatalf("toggle unlike failed: %v", err)
	}
	if unliked.Action != namelog.LikeActionUnliked || unliked.Count != 1 {
		t.Fatalf("result = %+v, want unliked with count 1", unliked)
	}

	saved := persistence.savedRecords("1001")
	for _, record := range saved {
		if record.NewName == "Gamma" {
			if record.LikeCount() != 1 || record.LikedBy[0] != "8" {
				t.Fatalf("persisted likers = %v, want [8]", record.LikedBy)
			}
		}
	}

	if _, err := store.ToggleLike(ctx, "1001", 5, "7"); !errors.Is(err, namelog.ErrRecordNotFound) {
		t.Fatalf("error = %v, want ErrRecordNotFound", err)
	}
	if _, err := store.ToggleLike(ctx, "9999", 0, "7"); !errors.Is(err, namelog.ErrRecordNotFound) {
		t.Fatalf("error = %v, want ErrRecordNotFound for unknown member", err)
	}
	if _, err := store.ToggleLike(ctx, "", 0, "7"); err == nil {
		t.Fatal("expected error for missing owner")
	}
	if _, err := store.ToggleLike(ctx, "1001", 0, ""); err == nil {
		t.Fatal("expected error for missing voter")
	}
}

func TestStoreToggleLikeConcurrentVoters(t *testing.T) {
	t.Parallel()

	persistence := &memoryPersistence{}
	store := newTestStore(t, persistence)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.RecordRename(ctx, renameAt("1001", "Alpha", "Beta", base)); err != nil {
		t.Fatalf("record rename failed: %v", err)
	}

	const voters = 16
	var group sync.WaitGroup
	for voter := 0; voter < voters; voter++ {
		voter := voter
		group.Add(1)
		go func() {
			defer group.Done()
			if _, err := store.ToggleLike(ctx, "1001", 0, namelog.MemberID(fmt.Sprintf("voter-%d", voter))); err != nil {
				t.Errorf("toggle like failed: %v", err)
			}
		}()
	}
	group.Wait()

	page, err := store.GetHistory(ctx, namelog.HistoryQuery{Member: "1001", PageSize: 10})
	if err != nil {
		t.Fatalf("get history failed: %v", err)
	}
	if got := page.Items[0].Record.LikeCount(); got != voters {
		t.Fatalf("like count = %d, want %d distinct voters", got, voters)
	}
}

func TestStoreImport(t *testing.T) {
	t.Parallel()

	persistence := &memoryPersistence{}
	store := newTestStore(t, persistence)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.RecordRename(ctx, renameAt("1001", "Alpha", "Beta", base)); err != nil {
		t.Fatalf("record rename failed: %v", err)
	}

	batch := []namelog.RenameRecord{
		// Exact duplicate of the stored record, sub-minute jitter included.
		renameAt("1001", "Alpha", "Beta", base.Add(20*time.Second)),
		renameAt("1001", "Beta", "Gamma", base.Add(time.Minute)),
		// In-batch duplicate of the previous tuple.
		renameAt("1001", "Beta", "Gamma", base.Add(time.Minute)),
		// Same names one minute later is a distinct change.
		renameAt("1001", "Beta", "Gamma", base.Add(2*time.Minute)),
		renameAt("1002", "Delta", "Epsilon", base),
	}

	report, err := store.Import(ctx, batch)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if report.Added != 3 || report.Skipped != 2 {
		t.Fatalf("report = %+v, want 3 added 2 skipped", report)
	}
	if got := len(persistence.savedRecords("1001")); got != 3 {
		t.Fatalf("saved count for 1001 = %d, want 3", got)
	}
	if got := len(persistence.savedRecords("1002")); got != 1 {
		t.Fatalf("saved count for 1002 = %d, want 1", got)
	}

	// Re-running the identical batch is a no-op and skips the save.
	savesBefore := persistence.saveCalls
	rerun, err := store.Import(ctx, batch)
	if err != nil {
		t.Fatalf("repeat import failed: %v", err)
	}
	if rerun.Added != 0 || rerun.Skipped != len(batch) {
		t.Fatalf("rerun report = %+v, want everything skipped", rerun)
	}
	if persistence.saveCalls != savesBefore {
		t.Fatalf("save calls = %d, want unchanged %d", persistence.saveCalls, savesBefore)
	}

	invalid := []namelog.RenameRecord{
		renameAt("1003", "a", "b", base),
		renameAt("", "c", "d", base),
	}
	if _, err := store.Import(ctx, invalid); err == nil {
		t.Fatal("expected error for invalid record in batch")
	}
	if got := len(persistence.savedRecords("1003")); got != 0 {
		t.Fatalf("invalid batch persisted %d records, want 0", got)
	}
}

func TestStoreFindLiked(t *testing.T) {
	t.Parallel()

	persistence := &memoryPersistence{}
	store := newTestStore(t, persistence)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.RecordRename(ctx, renameAt("1001", "Alpha", "Beta", base)); err != nil {
		t.Fatalf("record rename failed: %v", err)
	}
	if err := store.RecordRename(ctx, renameAt("1002", "Gamma", "beta", base.Add(time.Minute))); err != nil {
		t.Fatalf("record rename failed: %v", err)
	}
	if err := store.RecordRename(ctx, renameAt("1002", "beta", "Delta", base.Add(2*time.Minute))); err != nil {
		t.Fatalf("record rename failed: %v", err)
	}

	if _, err := store.ToggleLike(ctx, "1001", 0, "7"); err != nil {
		t.Fatalf("toggle like failed: %v", err)
	}
	if _, err := store.ToggleLike(ctx, "1002", 1, "8"); err != nil {
		t.Fatalf("toggle like failed: %v", err)
	}

	// Named search is case-insensitive and spans every member.
	named, err := store.FindLiked(ctx, "", "BETA")
	if err != nil {
		t.Fatalf("find liked failed: %v", err)
	}
	if len(named) != 2 {
		t.Fatalf("named entry count = %d, want 2", len(named))
	}
	if named[0].Owner != "1001" || named[1].Owner != "1002" {
		t.Fatalf("owners = %s, %s, want 1001 then 1002", named[0].Owner, named[1].Owner)
	}

	owned, err := store.FindLiked(ctx, "1002", "")
	if err != nil {
		t.Fatalf("find liked failed: %v", err)
	}
	if len(owned) != 1 || owned[0].Record.NewName != "beta" {
		t.Fatalf("owned entries = %+v, want the liked beta record", owned)
	}

	unliked, err := store.FindLiked(ctx, "", "Delta")
	if err != nil {
		t.Fatalf("find liked failed: %v", err)
	}
	if len(unliked) != 0 {
		t.Fatalf("entries for unliked name = %d, want 0", len(unliked))
	}

	if _, err := store.FindLiked(ctx, "", ""); err == nil {
		t.Fatal("expected error when both owner and name are missing")
	}
}

func TestStoreSurfacesPersistenceFailures(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("load corruption", func(t *testing.T) {
		t.Parallel()

		persistence := &memoryPersistence{
			loadErr: fmt.Errorf("%w: decode history document: bad", namelog.ErrDataCorruption),
		}
		store := newTestStore(t, persistence)

		_, err := store.GetHistory(context.Background(), namelog.HistoryQuery{Member: "1001", PageSize: 10})
		if !errors.Is(err, namelog.ErrDataCorruption) {
			t.Fatalf("error = %v, want ErrDataCorruption", err)
		}
	})

	t.Run("save failure keeps memory state", func(t *testing.T) {
		t.Parallel()

		persistence := &memoryPersistence{}
		store := newTestStore(t, persistence)
		ctx := context.Background()

		if err := store.RecordRename(ctx, renameAt("1001", "Alpha", "Beta", base)); err != nil {
			t.Fatalf("record rename failed: %v", err)
		}

		persistence.saveErr = fmt.Errorf("%w: disk full", namelog.ErrStoreUnavailable)
		err := store.RecordRename(ctx, renameAt("1001", "Beta", "Gamma", base.Add(time.Minute)))
		if !errors.Is(err, namelog.ErrStoreUnavailable) {
			t.Fatalf("error = %v, want ErrStoreUnavailable", err)
		}

		// The failed append must not become visible.
		page, err := store.GetHistory(ctx, namelog.HistoryQuery{Member: "1001", PageSize: 10})
		if err != nil {
			t.Fatalf("get history failed: %v", err)
		}
		if page.Total != 1 {
			t.Fatalf("total = %d, want 1 after failed save", page.Total)
		}
	})
}
