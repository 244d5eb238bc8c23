package telegram

import (
	"context"
	"fmt"
	"time"

	"namelog/pkg/namelog"
)

// Decoder converts Telegram update DTOs into neutral events.
type Decoder interface {
	// Decode maps one adapter update into a validated neutral event envelope.
	Decode(ctx context.Context, update Update) (*namelog.Event, error)
}

// DefaultDecoder provides default Telegram-to-neutral mappings.
type DefaultDecoder struct{}

// NewDefaultDecoder creates a default decoder.
func NewDefaultDecoder() DefaultDecoder {
	return DefaultDecoder{}
}

// Decode converts a Telegram update into a neutral event.
func (d DefaultDecoder) Decode(_ context.Context, update Update) (*namelog.Event, error) {
	event := newBaseEvent(update)

	switch update.Type {
	case UpdateTypeMessage:
		event.Kind = namelog.EventKindMessageCreated
		message, err := decodeMessage(update.Message)
		if err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		event.Message = message
	case UpdateTypeEdit:
		event.Kind = namelog.EventKindMessageEdited
		mutation, err := decodeEdit(update.Edit)
		if err != nil {
			return nil, fmt.Errorf("decode edit: %w", err)
		}
		event.Mutation = mutation
	case UpdateTypeRename:
		event.Kind = namelog.EventKindMemberRenamed
		rename, err := decodeRename(update.Rename)
		if err != nil {
			return nil, fmt.Errorf("decode rename: %w", err)
		}
		event.Rename = rename
	default:
		return nil, fmt.Errorf("decode update %s: unsupported type", update.Type)
	}

	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("decode update %s: %w", update.Type, err)
	}

	return event, nil
}

// newBaseEvent builds the shared envelope fields used by all update mappings.
func newBaseEvent(update Update) *namelog.Event {
	occurredAt := update.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return &namelog.Event{
		ID:         update.ID,
		OccurredAt: occurredAt,
		Platform:   namelog.PlatformTelegram,
		Conversation: namelog.Conversation{
			ID:    update.Chat.ID,
			Type:  update.Chat.Type,
			Title: update.Chat.Title,
		},
		Actor:    mapActor(update.Actor),
		Metadata: update.Metadata,
	}
}

// decodeMessage maps Telegram message payload into neutral message content.
func decodeMessage(payload *MessagePayload) (*namelog.Message, error) {
	if payload == nil {
		return nil, fmt.Errorf("missing message payload")
	}

	return &namelog.Message{
		ID:        payload.ID,
		ThreadID:  payload.ThreadID,
		ReplyToID: payload.ReplyToID,
		Text:      payload.Text,
	}, nil
}

// decodeEdit maps Telegram edit payload into mutation semantics.
func decodeEdit(payload *EditPayload) (*namelog.Mutation, error) {
	if payload == nil {
		return nil, fmt.Errorf("missing edit payload")
	}

	return &namelog.Mutation{
		Type:            namelog.MutationTypeEdit,
		TargetMessageID: payload.MessageID,
		Before:          mapSnapshot(payload.Before),
		After:           mapSnapshot(payload.After),
		Reason:          payload.Reason,
	}, nil
}

// decodeRename maps Telegram profile name changes into neutral rename semantics.
func decodeRename(payload *RenamePayload) (*namelog.Rename, error) {
	if payload == nil {
		return nil, fmt.Errorf("missing rename payload")
	}
	if payload.Member.ID == "" {
		return nil, fmt.Errorf("missing rename member id")
	}

	return &namelog.Rename{
		Member:  mapActor(payload.Member),
		OldName: payload.OldName,
		NewName: payload.NewName,
	}, nil
}

// mapSnapshot converts immutable message snapshots for mutation payloads.
func mapSnapshot(snapshot *SnapshotPayload) *namelog.MessageSnapshot {
	if snapshot == nil {
		return nil
	}

	return &namelog.MessageSnapshot{
		Text: snapshot.Text,
	}
}

// mapActor converts adapter actor references to neutral actor values.
func mapActor(actor ActorRef) namelog.Actor {
	return namelog.Actor{
		ID:          actor.ID,
		Username:    actor.Username,
		DisplayName: actor.DisplayName,
		IsBot:       actor.IsBot,
	}
}
