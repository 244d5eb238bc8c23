package telegram

import (
	"context"
	"testing"
	"time"

	"github.com/gotd/td/tg"
)

func TestGotdUpdateChannelUpdatesNilContext(t *testing.T) {
	t.Parallel()

	stream, err := NewGotdUpdateChannel(8)
	if err != nil {
		t.Fatalf("new gotd update channel failed: %v", err)
	}

	var nilCtx context.Context
	if _, err := stream.Updates(nilCtx); err == nil {
		t.Fatal("expected nil context error")
	}
}

func TestGotdUpdateChannelHandleFlattensBatch(t *testing.T) {
	t.Parallel()

	stream, err := NewGotdUpdateChannel(16)
	if err != nil {
		t.Fatalf("new gotd update channel failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := stream.Updates(ctx)
	if err != nil {
		t.Fatalf("open updates stream failed: %v", err)
	}

	batch := &tg.Updates{
		Date: 1_700_000_010,
		Updates: []tg.UpdateClass{
			&tg.UpdateUserName{
				UserID:    42,
				FirstName: "New",
				LastName:  "Name",
			},
			&tg.UpdateUserName{
				UserID:    43,
				FirstName: "Other",
				LastName:  "Name",
			},
		},
	}

	if err := stream.Handle(ctx, batch); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	collected := make([]gotdUpdateEnvelope, 0, 2)
	for i := 0; i < 2; i++ {
		select {
		case item := <-updates:
			envelope, ok := item.(gotdUpdateEnvelope)
			if !ok {
				t.Fatalf("item type = %T, want gotdUpdateEnvelope", item)
			}
			collected = append(collected, envelope)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out receiving flattened updates")
		}
	}

	seen := map[int64]bool{}
	for _, envelope := range collected {
		update, ok := envelope.update.(*tg.UpdateUserName)
		if !ok {
			t.Fatalf("unexpected update type %T", envelope.update)
		}
		seen[update.UserID] = true
	}

	if !seen[42] || !seen[43] {
		t.Fatalf("flattened user ids = %v, want 42 and 43", seen)
	}
}

func TestGotdUpdateChannelHandleBeforeUpdatesCall(t *testing.T) {
	t.Parallel()

	stream, err := NewGotdUpdateChannel(8)
	if err != nil {
		t.Fatalf("new gotd update channel failed: %v", err)
	}

	if err := stream.Handle(context.Background(), &tg.Updates{
		Updates: []tg.UpdateClass{
			&tg.UpdateUserName{UserID: 42, FirstName: "New"},
		},
	}); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	updates, err := stream.Updates(context.Background())
	if err != nil {
		t.Fatalf("open updates stream failed: %v", err)
	}

	select {
	case item := <-updates:
		envelope, ok := item.(gotdUpdateEnvelope)
		if !ok {
			t.Fatalf("item type = %T, want gotdUpdateEnvelope", item)
		}
		if _, ok := envelope.update.(*tg.UpdateUserName); !ok {
			t.Fatalf("update type = %T, want *tg.UpdateUserName", envelope.update)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out receiving buffered update")
	}
}

func TestGotdUpdateChannelHandleShortMessage(t *testing.T) {
	t.Parallel()

	stream, err := NewGotdUpdateChannel(8)
	if err != nil {
		t.Fatalf("new gotd update channel failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := stream.Updates(ctx)
	if err != nil {
		t.Fatalf("open updates stream failed: %v", err)
	}

	if err := stream.Handle(ctx, &tg.UpdateShortMessage{
		ID:      900,
		UserID:  42,
		Message: "hi",
		Date:    1_700_000_020,
	}); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	select {
	case item := <-updates:
		envelope, ok := item.(gotdUpdateEnvelope)
		if !ok {
			t.Fatalf("item type = %T, want gotdUpdateEnvelope", item)
		}
		typed, ok := envelope.update.(*tg.UpdateNewMessage)
		if !ok {
			t.Fatalf("update type = %T, want *tg.UpdateNewMessage", envelope.update)
		}
		message, ok := typed.Message.(*tg.Message)
		if !ok {
			t.Fatalf("message type = %T, want *tg.Message", typed.Message)
		}
		if message.ID != 900 || message.Message != "hi" {
			t.Fatalf("message = %+v, want id 900 text hi", message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out receiving flattened short message")
	}
}
