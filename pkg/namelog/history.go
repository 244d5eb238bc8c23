package namelog

import (
	"context"
	"fmt"
	"time"
)

// ServiceHistory is the canonical service registry key for name-history lookups.
const ServiceHistory = "namelog.history"

// MemberID identifies one platform member inside the history store.
type MemberID string

// Validate checks that the identifier is non-empty.
func (m MemberID) Validate() error {
	if m == "" {
		return fmt.Errorf("validate member id: missing id")
	}

	return nil
}

// ChangeRecord is one display-name transition owned by a member.
//
// LikedBy keeps set semantics with stable insertion order; the like count is
// always derived from it rather than stored separately.
type ChangeRecord struct {
	// OldName is the display name before the change. Empty when the previous
	// name was never observed.
	OldName string
	// NewName is the display name after the change.
	NewName string
	// ChangedAt is the change timestamp. Stored with minute precision.
	ChangedAt time.Time
	// LikedBy lists voters in first-vote order, each at most once.
	LikedBy []MemberID
}

// LikeCount returns the number of distinct voters on this record.
func (r ChangeRecord) LikeCount() int {
	return len(r.LikedBy)
}

// LikedByMember reports whether voter currently has an active vote on this record.
func (r ChangeRecord) LikedByMember(voter MemberID) bool {
	for _, liker := range r.LikedBy {
		if liker == voter {
			return true
		}
	}

	return false
}

// LikeAction identifies the direction of one toggle outcome.
type LikeAction string

const (
	// LikeActionLiked indicates the toggle added a vote.
	LikeActionLiked LikeAction = "liked"
	// LikeActionUnliked indicates the toggle removed a vote.
	LikeActionUnliked LikeAction = "unliked"
)

// LikeResult reports the outcome of one like toggle.
type LikeResult struct {
	// Action is the direction the toggle resolved to.
	Action LikeAction
	// Count is the record's like count after the toggle.
	Count int
	// Record is a snapshot of the record after the toggle.
	Record ChangeRecord
}

// SortKey selects the ordering applied to a history view.
type SortKey string

const (
	// SortByDate orders records newest-first by change timestamp.
	SortByDate SortKey = "date"
	// SortByLikes orders records by descending like count.
	SortByLikes SortKey = "likes"
)

// Validate checks whether one sort key is supported.
func (k SortKey) Validate() error {
	switch k {
	case SortByDate, SortByLikes:
		return nil
	default:
		return fmt.Errorf("validate sort key: unsupported key %q", k)
	}
}

// HistoryQuery selects one page of one member's history.
type HistoryQuery struct {
	// Member identifies whose history to read.
	Member MemberID
	// Sort selects record ordering. Zero value means SortByDate.
	Sort SortKey
	// Page is the zero-based requested page. Out-of-range values clamp.
	Page int
	// PageSize is the number of records per page. Must be positive.
	PageSize int
}

// HistoryItem pairs one visible record with its stable display index.
type HistoryItem struct {
	// Index is the record's zero-based position in the date-ordered view.
	// Like toggles address records by this index regardless of the sort the
	// page was built with.
	Index int
	// Record is a snapshot of the visible record.
	Record ChangeRecord
}

// HistoryPage is one rendered page of an ordered history view.
type HistoryPage struct {
	// Items holds the records visible on this page, in view order.
	Items []HistoryItem
	// Page is the effective zero-based page after clamping.
	Page int
	// PageCount is the total number of pages for the current record set.
	PageCount int
	// HasPrev reports whether an earlier page exists.
	HasPrev bool
	// HasNext reports whether a later page exists.
	HasNext bool
	// Sort is the ordering this page was built with.
	Sort SortKey
	// Total is the total record count across all pages.
	Total int
}

// RenameRecord is one normalized import tuple for bulk history ingestion.
type RenameRecord struct {
	// Owner identifies the member whose name changed.
	Owner MemberID
	// OldName is the display name before the change.
	OldName string
	// NewName is the display name after the change.
	NewName string
	// ChangedAt is the change timestamp. Compared at minute precision for
	// duplicate detection.
	ChangedAt time.Time
}

// Validate checks that the tuple can be appended to a history.
func (r RenameRecord) Validate() error {
	if err := r.Owner.Validate(); err != nil {
		return fmt.Errorf("validate rename record: %w", err)
	}
	if r.OldName == "" && r.NewName == "" {
		return fmt.Errorf("validate rename record: both names empty")
	}
	if r.ChangedAt.IsZero() {
		return fmt.Errorf("validate rename record: missing timestamp")
	}

	return nil
}

// ImportReport summarizes one bulk import outcome.
type ImportReport struct {
	// Added is the number of records appended.
	Added int
	// Skipped is the number of records dropped as exact duplicates.
	Skipped int
}

// LikerEntry pairs one record with the resolved voters on it.
type LikerEntry struct {
	// Owner identifies the member owning the record.
	Owner MemberID
	// Record is a snapshot of the liked record.
	Record ChangeRecord
}

// HistoryService provides access to the per-member name-change history.
//
// Implementations must be concurrency-safe: command handlers can run on
// multiple workers, and every mutation must observe the load-modify-persist
// cycle atomically with respect to other mutations.
type HistoryService interface {
	// GetHistory returns one ordered page of a member's history.
	//
	// An unknown member yields an empty page and a nil error.
	GetHistory(ctx context.Context, query HistoryQuery) (HistoryPage, error)
	// ToggleLike flips voter's vote on the owner's record at the given
	// date-ordered index, as reported by HistoryItem.Index, and returns the
	// resulting state.
	//
	// A stale or out-of-range index yields ErrRecordNotFound.
	ToggleLike(ctx context.Context, owner MemberID, index int, voter MemberID) (LikeResult, error)
	// RecordRename appends one observed display-name change.
	RecordRename(ctx context.Context, record RenameRecord) error
	// Import appends a batch of normalized rename tuples, skipping exact
	// duplicates of already-stored records and of earlier tuples in the batch.
	Import(ctx context.Context, records []RenameRecord) (ImportReport, error)
	// FindLiked returns records carrying at least one vote. When name is
	// non-empty the search spans all members and matches the record's new name
	// case-insensitively; otherwise it lists the owner's liked records.
	FindLiked(ctx context.Context, owner MemberID, name string) ([]LikerEntry, error)
}
