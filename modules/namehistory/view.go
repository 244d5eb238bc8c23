package namehistory

import (
	"fmt"
	"sort"

	"namelog/pkg/namelog"
)

// viewRecord pairs a record snapshot with its insertion position so sorted
// views can refer back to the stored slice.
type viewRecord struct {
	record   namelog.ChangeRecord
	position int
}

// sortedView orders record snapshots for display. Ties always break toward
// later insertion first, so two changes stored in the same minute render in
// reverse arrival order.
func sortedView(records []namelog.ChangeRecord, key namelog.SortKey) []viewRecord {
	view := make([]viewRecord, 0, len(records))
	for position, record := range records {
		view = append(view, viewRecord{record: record, position: position})
	}

	sort.Slice(view, func(i, j int) bool {
		left, right := view[i], view[j]
		if key == namelog.SortByLikes {
			if left.record.LikeCount() != right.record.LikeCount() {
				return left.record.LikeCount() > right.record.LikeCount()
			}
		}
		if !left.record.ChangedAt.Equal(right.record.ChangedAt) {
			return left.record.ChangedAt.After(right.record.ChangedAt)
		}
		return left.position > right.position
	})

	return view
}

// buildHistoryPage produces one page of an ordered history view.
//
// The page index clamps into the valid range instead of erroring: commands
// paginate blindly and should land on the nearest real page. Every item
// carries its position in the date-ordered view, so like toggles address the
// same record no matter which sort produced the page.
func buildHistoryPage(
	records []namelog.ChangeRecord,
	key namelog.SortKey,
	page int,
	pageSize int,
) (namelog.HistoryPage, error) {
	if key == "" {
		key = namelog.SortByDate
	}
	if err := key.Validate(); err != nil {
		return namelog.HistoryPage{}, fmt.Errorf("build history page: %w", err)
	}
	if pageSize <= 0 {
		return namelog.HistoryPage{}, fmt.Errorf(
			"%w: page size %d", namelog.ErrInvalidPageSize, pageSize,
		)
	}

	total := len(records)
	if total == 0 {
		return namelog.HistoryPage{
			Items:     []namelog.HistoryItem{},
			Page:      0,
			PageCount: 1,
			Sort:      key,
		}, nil
	}

	pageCount := (total + pageSize - 1) / pageSize
	if page < 0 {
		page = 0
	}
	if page > pageCount-1 {
		page = pageCount - 1
	}

	dateOrder := sortedView(records, namelog.SortByDate)
	dateIndexByPosition := make(map[int]int, len(dateOrder))
	for rank, entry := range dateOrder {
		dateIndexByPosition[entry.position] = rank
	}

	view := dateOrder
	if key != namelog.SortByDate {
		view = sortedView(records, key)
	}
	start := page * pageSize
	end := start + pageSize
	if end > total {
		end = total
	}

	items := make([]namelog.HistoryItem, 0, end-start)
	for _, entry := range view[start:end] {
		items = append(items, namelog.HistoryItem{
			Index:  dateIndexByPosition[entry.position],
			Record: cloneChangeRecord(entry.record),
		})
	}

	return namelog.HistoryPage{
		Items:     items,
		Page:      page,
		PageCount: pageCount,
		HasPrev:   page > 0,
		HasNext:   page < pageCount-1,
		Sort:      key,
		Total:     total,
	}, nil
}

func cloneChangeRecord(record namelog.ChangeRecord) namelog.ChangeRecord {
	cloned := record
	cloned.LikedBy = append([]namelog.MemberID(nil), record.LikedBy...)

	return cloned
}

func cloneChangeRecords(records []namelog.ChangeRecord) []namelog.ChangeRecord {
	cloned := make([]namelog.ChangeRecord, 0, len(records))
	for _, record := range records {
		cloned = append(cloned, cloneChangeRecord(record))
	}

	return cloned
}
