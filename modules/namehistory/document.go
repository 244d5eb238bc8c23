package namehistory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"namelog/pkg/namelog"
)

const (
	// documentTimeLayout is the canonical minute-precision wire format.
	documentTimeLayout = "2006-01-02 15:04"
	// documentDateLayout is the older date-only variant accepted on load.
	documentDateLayout = "2006-01-02"
)

type storedChange struct {
	Old     string   `json:"old"`
	New     string   `json:"new"`
	Date    string   `json:"date"`
	Likes   int      `json:"likes"`
	LikedBy []string `json:"liked_by"`
}

type storedMember struct {
	NicknameChanges []storedChange `json:"nickname_changes"`
}

// encodeDocument renders the full history document in wire layout.
//
// The redundant likes counter is written for compatibility with older
// consumers but is never trusted on load.
func encodeDocument(histories map[namelog.MemberID][]namelog.ChangeRecord) ([]byte, error) {
	document := make(map[string]storedMember, len(histories))
	for member, records := range histories {
		changes := make([]storedChange, 0, len(records))
		for _, record := range records {
			likedBy := make([]string, 0, len(record.LikedBy))
			for _, liker := range record.LikedBy {
				likedBy = append(likedBy, string(liker))
			}
			changes = append(changes, storedChange{
				Old:     record.OldName,
				New:     record.NewName,
				Date:    formatDocumentTime(record.ChangedAt),
				Likes:   record.LikeCount(),
				LikedBy: likedBy,
			})
		}
		document[string(member)] = storedMember{NicknameChanges: changes}
	}

	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode history document: %w", err)
	}

	return data, nil
}

// decodeDocument parses the wire document back into per-member records.
//
// Any structural problem fails the whole load: a partially decoded history
// would silently drop records on the next save.
func decodeDocument(data []byte) (map[namelog.MemberID][]namelog.ChangeRecord, error) {
	var document map[string]storedMember
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("%w: decode history document: %v", namelog.ErrDataCorruption, err)
	}

	histories := make(map[namelog.MemberID][]namelog.ChangeRecord, len(document))
	for rawMember, stored := range document {
		member := namelog.MemberID(strings.TrimSpace(rawMember))
		if err := member.Validate(); err != nil {
			return nil, fmt.Errorf("%w: decode history document: empty member key", namelog.ErrDataCorruption)
		}

		records := make([]namelog.ChangeRecord, 0, len(stored.NicknameChanges))
		for position, change := range stored.NicknameChanges {
			record, err := decodeStoredChange(change)
			if err != nil {
				return nil, fmt.Errorf(
					"%w: decode history document: member %s change %d: %v",
					namelog.ErrDataCorruption, member, position, err,
				)
			}
			records = append(records, record)
		}
		histories[member] = records
	}

	return histories, nil
}

func decodeStoredChange(change storedChange) (namelog.ChangeRecord, error) {
	if change.Old == "" && change.New == "" {
		return namelog.ChangeRecord{}, fmt.Errorf("both names empty")
	}

	changedAt, err := parseDocumentTime(change.Date)
	if err != nil {
		return namelog.ChangeRecord{}, err
	}

	return namelog.ChangeRecord{
		OldName:   change.Old,
		NewName:   change.New,
		ChangedAt: changedAt,
		LikedBy:   dedupeLikers(change.LikedBy),
	}, nil
}

// dedupeLikers restores set semantics on load, keeping first occurrences.
func dedupeLikers(likers []string) []namelog.MemberID {
	if len(likers) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(likers))
	deduped := make([]namelog.MemberID, 0, len(likers))
	for _, liker := range likers {
		if liker == "" {
			continue
		}
		if _, exists := seen[liker]; exists {
			continue
		}
		seen[liker] = struct{}{}
		deduped = append(deduped, namelog.MemberID(liker))
	}

	return deduped
}

func formatDocumentTime(value time.Time) string {
	return value.UTC().Format(documentTimeLayout)
}

// parseDocumentTime accepts the canonical minute layout and the older
// date-only variant, normalizing both to minute precision in UTC.
func parseDocumentTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("missing date")
	}

	if parsed, err := time.Parse(documentTimeLayout, trimmed); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse(documentDateLayout, trimmed); err == nil {
		return parsed.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("invalid date %q", raw)
}

type exportedRename struct {
	Owner string `json:"owner"`
	Old   string `json:"old"`
	New   string `json:"new"`
	Date  string `json:"date"`
}

// decodeRenameExport parses a bulk audit export of normalized rename tuples.
func decodeRenameExport(data []byte) ([]namelog.RenameRecord, error) {
	var exported []exportedRename
	if err := json.Unmarshal(data, &exported); err != nil {
		return nil, fmt.Errorf("%w: decode rename export: %v", namelog.ErrDataCorruption, err)
	}

	records := make([]namelog.RenameRecord, 0, len(exported))
	for position, entry := range exported {
		changedAt, err := parseDocumentTime(entry.Date)
		if err != nil {
			return nil, fmt.Errorf(
				"%w: decode rename export: entry %d: %v",
				namelog.ErrDataCorruption, position, err,
			)
		}
		record := namelog.RenameRecord{
			Owner:     namelog.MemberID(strings.TrimSpace(entry.Owner)),
			OldName:   entry.Old,
			NewName:   entry.New,
			ChangedAt: changedAt,
		}
		if err := record.Validate(); err != nil {
			return nil, fmt.Errorf(
				"%w: decode rename export: entry %d: %v",
				namelog.ErrDataCorruption, position, err,
			)
		}
		records = append(records, record)
	}

	return records, nil
}

// sortedMemberIDs returns document member keys in stable order for rendering.
func sortedMemberIDs(histories map[namelog.MemberID][]namelog.ChangeRecord) []namelog.MemberID {
	members := make([]namelog.MemberID, 0, len(histories))
	for member := range histories {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })

	return members
}
