package telegram

import (
	"context"
	"testing"
	"time"

	"namelog/pkg/namelog"
)

func TestDefaultDecoderDecode(t *testing.T) {
	t.Parallel()

	decoder := NewDefaultDecoder()
	occurredAt := time.Unix(1_700_000_000, 0).UTC()

	tests := []struct {
		name   string
		update Update
		assert func(t *testing.T, event *namelog.Event)
	}{
		{
			name: "message update",
			update: Update{
				ID:         "tg:message:100:777",
				Type:       UpdateTypeMessage,
				OccurredAt: occurredAt,
				Chat: ChatRef{
					ID:   "100",
					Type: namelog.ConversationTypeGroup,
				},
				Actor: ActorRef{ID: "42"},
				Message: &MessagePayload{
					ID:   "777",
					Text: "hello",
				},
			},
			assert: func(t *testing.T, event *namelog.Event) {
				t.Helper()
				if event.Kind != namelog.EventKindMessageCreated {
					t.Fatalf("kind = %s, want %s", event.Kind, namelog.EventKindMessageCreated)
				}
				if event.Message == nil || event.Message.ID != "777" {
					t.Fatalf("message = %+v, want id 777", event.Message)
				}
				if event.Platform != namelog.PlatformTelegram {
					t.Fatalf("platform = %s, want %s", event.Platform, namelog.PlatformTelegram)
				}
				if event.Mutation != nil {
					t.Fatalf("mutation = %+v, want nil", event.Mutation)
				}
			},
		},
		{
			name: "edit update",
			update: Update{
				ID:         "tg:edit:100:777",
				Type:       UpdateTypeEdit,
				OccurredAt: occurredAt,
				Chat: ChatRef{
					ID:   "100",
					Type: namelog.ConversationTypeGroup,
				},
				Actor: ActorRef{ID: "42"},
				Edit: &EditPayload{
					MessageID: "777",
					Before:    &SnapshotPayload{Text: "hello"},
					After:     &SnapshotPayload{Text: "hello edited"},
					Reason:    "telegram_edit_update",
				},
			},
			assert: func(t *testing.T, event *namelog.Event) {
				t.Helper()
				if event.Kind != namelog.EventKindMessageEdited {
					t.Fatalf("kind = %s, want %s", event.Kind, namelog.EventKindMessageEdited)
				}
				if event.Mutation == nil {
					t.Fatal("expected mutation payload")
				}
				if event.Mutation.Type != namelog.MutationTypeEdit {
					t.Fatalf("mutation type = %s, want %s", event.Mutation.Type, namelog.MutationTypeEdit)
				}
				if event.Mutation.TargetMessageID != "777" {
					t.Fatalf("target message id = %s, want 777", event.Mutation.TargetMessageID)
				}
				if event.Mutation.Before == nil || event.Mutation.Before.Text != "hello" {
					t.Fatalf("mutation before = %+v, want text hello", event.Mutation.Before)
				}
				if event.Mutation.After == nil || event.Mutation.After.Text != "hello edited" {
					t.Fatalf("mutation after = %+v, want text hello edited", event.Mutation.After)
				}
			},
		},
		{
			name: "rename update",
			update: Update{
				ID:         "tg:rename:42",
				Type:       UpdateTypeRename,
				OccurredAt: occurredAt,
				Chat: ChatRef{
					ID:   "42",
					Type: namelog.ConversationTypePrivate,
				},
				Actor: ActorRef{ID: "42", DisplayName: "New Name"},
				Rename: &RenamePayload{
					Member:  ActorRef{ID: "42", DisplayName: "New Name"},
					OldName: "Old Name",
					NewName: "New Name",
				},
			},
			assert: func(t *testing.T, event *namelog.Event) {
				t.Helper()
				if event.Kind != namelog.EventKindMemberRenamed {
					t.Fatalf("kind = %s, want %s", event.Kind, namelog.EventKindMemberRenamed)
				}
				if event.Rename == nil {
					t.Fatal("expected rename payload")
				}
				if event.Rename.Member.ID != "42" {
					t.Fatalf("rename member = %s, want 42", event.Rename.Member.ID)
				}
				if event.Rename.OldName != "Old Name" || event.Rename.NewName != "New Name" {
					t.Fatalf("rename = %q -> %q, want Old Name -> New Name", event.Rename.OldName, event.Rename.NewName)
				}
			},
		},
		{
			name: "rename with first sighting keeps empty old name",
			update: Update{
				ID:         "tg:rename:43",
				Type:       UpdateTypeRename,
				OccurredAt: occurredAt,
				Chat: ChatRef{
					ID:   "43",
					Type: namelog.ConversationTypePrivate,
				},
				Actor: ActorRef{ID: "43"},
				Rename: &RenamePayload{
					Member:  ActorRef{ID: "43"},
					NewName: "First Seen",
				},
			},
			assert: func(t *testing.T, event *namelog.Event) {
				t.Helper()
				if event.Rename == nil {
					t.Fatal("expected rename payload")
				}
				if event.Rename.OldName != "" {
					t.Fatalf("old name = %q, want empty", event.Rename.OldName)
				}
				if event.Rename.NewName != "First Seen" {
					t.Fatalf("new name = %q, want First Seen", event.Rename.NewName)
				}
			},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			event, err := decoder.Decode(context.Background(), testCase.update)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			testCase.assert(t, event)
		})
	}
}

func TestDefaultDecoderDecodeRejectsInvalidUpdates(t *testing.T) {
	t.Parallel()

	decoder := NewDefaultDecoder()
	occurredAt := time.Unix(1_700_000_000, 0).UTC()
	chat := ChatRef{ID: "100", Type: namelog.ConversationTypeGroup}

	tests := []struct {
		name   string
		update Update
	}{
		{
			name: "unsupported update type",
			update: Update{
				ID:         "tg:poll:1",
				Type:       UpdateType("poll"),
				OccurredAt: occurredAt,
				Chat:       chat,
				Actor:      ActorRef{ID: "42"},
			},
		},
		{
			name: "message update without payload",
			update: Update{
				ID:         "tg:message:100:0",
				Type:       UpdateTypeMessage,
				OccurredAt: occurredAt,
				Chat:       chat,
				Actor:      ActorRef{ID: "42"},
			},
		},
		{
			name: "rename update without member id",
			update: Update{
				ID:         "tg:rename:0",
				Type:       UpdateTypeRename,
				OccurredAt: occurredAt,
				Chat:       ChatRef{ID: "42", Type: namelog.ConversationTypePrivate},
				Actor:      ActorRef{ID: "42"},
				Rename: &RenamePayload{
					OldName: "Old",
					NewName: "New",
				},
			},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if _, err := decoder.Decode(context.Background(), testCase.update); err == nil {
				t.Fatal("expected decode error")
			}
		})
	}
}
