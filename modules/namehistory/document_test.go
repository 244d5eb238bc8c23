package namehistory

import (
	"errors"
	"testing"
	"time"

	"namelog/pkg/namelog"
)

func TestDecodeDocument(t *testing.T) {
	t.Parallel()

	data := []byte(`{
		"1001": {
			"nickname_changes": [
				{
					"old": "Old Name",
					"new": "New Name",
					"date": "2024-03-01 12:30",
					"likes": 99,
					"liked_by": ["7", "8", "7"]
				},
				{
					"old": "",
					"new": "First Seen",
					"date": "2024-02-15",
					"likes": 0,
					"liked_by": []
				}
			]
		}
	}`)

	histories, err := decodeDocument(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	records, exists := histories[namelog.MemberID("1001")]
	if !exists {
		t.Fatal("expected member 1001")
	}
	if len(records) != 2 {
		t.Fatalf("record count = %d, want 2", len(records))
	}

	first := records[0]
	if first.OldName != "Old Name" || first.NewName != "New Name" {
		t.Fatalf("names = %q -> %q, want Old Name -> New Name", first.OldName, first.NewName)
	}
	wantTime := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	if !first.ChangedAt.Equal(wantTime) {
		t.Fatalf("changed_at = %v, want %v", first.ChangedAt, wantTime)
	}
	// the stored likes counter is untrusted; the count derives from liked_by
	if first.LikeCount() != 2 {
		t.Fatalf("like count = %d, want 2 (deduped, recomputed)", first.LikeCount())
	}
	if first.LikedBy[0] != "7" || first.LikedBy[1] != "8" {
		t.Fatalf("liked_by = %v, want [7 8]", first.LikedBy)
	}

	second := records[1]
	if second.OldName != "" {
		t.Fatalf("old name = %q, want empty first sighting", second.OldName)
	}
	wantDateOnly := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
	if !second.ChangedAt.Equal(wantDateOnly) {
		t.Fatalf("date-only changed_at = %v, want %v", second.ChangedAt, wantDateOnly)
	}
}

func TestDecodeDocumentRejectsCorruption(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{
			name: "invalid json",
			data: `{"1001": {`,
		},
		{
			name: "wrong top-level shape",
			data: `["not", "a", "map"]`,
		},
		{
			name: "both names empty",
			data: `{"1001":{"nickname_changes":[{"old":"","new":"","date":"2024-03-01 12:30"}]}}`,
		},
		{
			name: "missing date",
			data: `{"1001":{"nickname_changes":[{"old":"a","new":"b","date":""}]}}`,
		},
		{
			name: "unparseable date",
			data: `{"1001":{"nickname_changes":[{"old":"a","new":"b","date":"March 1st"}]}}`,
		},
		{
			name: "blank member key",
			data: `{"  ":{"nickname_changes":[]}}`,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := decodeDocument([]byte(testCase.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, namelog.ErrDataCorruption) {
				t.Fatalf("error = %v, want ErrDataCorruption", err)
			}
		})
	}
}

func TestEncodeDocumentWritesWireLayout(t *testing.T) {
	t.Parallel()

	changedAt := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	histories := map[namelog.MemberID][]namelog.ChangeRecord{
		"1001": {
			{
				OldName:   "Old Name",
				NewName:   "New Name",
				ChangedAt: changedAt,
				LikedBy:   []namelog.MemberID{"7", "8"},
			},
		},
	}

	data, err := encodeDocument(histories)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := decodeDocument(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	records := decoded["1001"]
	if len(records) != 1 {
		t.Fatalf("record count = %d, want 1", len(records))
	}
	if records[0].LikeCount() != 2 {
		t.Fatalf("like count = %d, want 2", records[0].LikeCount())
	}
	if !records[0].ChangedAt.Equal(changedAt) {
		t.Fatalf("changed_at = %v, want %v", records[0].ChangedAt, changedAt)
	}
}

func TestDecodeRenameExport(t *testing.T) {
	t.Parallel()

	records, err := decodeRenameExport([]byte(`[
		{"owner": "1001", "old": "Alpha", "new": "Beta", "date": "2024-01-02 09:15"},
		{"owner": "1002", "old": "", "new": "Gamma", "date": "2024-01-03"}
	]`))
	if err != nil {
		t.Fatalf("decode export failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("record count = %d, want 2", len(records))
	}
	if records[0].Owner != "1001" || records[0].NewName != "Beta" {
		t.Fatalf("records[0] = %+v, want owner 1001 new Beta", records[0])
	}
	if records[1].OldName != "" {
		t.Fatalf("records[1] old name = %q, want empty", records[1].OldName)
	}

	tests := []struct {
		name string
		data string
	}{
		{name: "invalid json", data: `{"not":"an array"}`},
		{name: "missing owner", data: `[{"owner":"","old":"a","new":"b","date":"2024-01-02 09:15"}]`},
		{name: "both names empty", data: `[{"owner":"1001","old":"","new":"","date":"2024-01-02 09:15"}]`},
		{name: "bad date", data: `[{"owner":"1001","old":"a","new":"b","date":"soon"}]`},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if _, err := decodeRenameExport([]byte(testCase.data)); !errors.Is(err, namelog.ErrDataCorruption) {
				t.Fatalf("error = %v, want ErrDataCorruption", err)
			}
		})
	}
}
