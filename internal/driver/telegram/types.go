package telegram

import (
	"time"

	"namelog/pkg/namelog"
)

// UpdateType identifies the Telegram update semantic category.
type UpdateType string

const (
	// UpdateTypeMessage identifies new message updates.
	UpdateTypeMessage UpdateType = "message"
	// UpdateTypeEdit identifies edited message updates.
	UpdateTypeEdit UpdateType = "edit"
	// UpdateTypeRename identifies profile name change updates.
	UpdateTypeRename UpdateType = "rename"
)

// Update is the Telegram adapter's internal DTO before neutral decoding.
type Update struct {
	ID         string
	Type       UpdateType
	OccurredAt time.Time
	Chat       ChatRef
	Actor      ActorRef
	Message    *MessagePayload
	Edit       *EditPayload
	Rename     *RenamePayload
	Metadata   map[string]string
}

// ChatRef identifies Telegram chat context.
type ChatRef struct {
	ID    string
	Title string
	Type  namelog.ConversationType
}

// ActorRef identifies Telegram actor context.
type ActorRef struct {
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
}

// MessagePayload represents a Telegram message projection.
type MessagePayload struct {
	ID        string
	ThreadID  string
	ReplyToID string
	Text      string
}

// EditPayload captures before/after message content for edits.
type EditPayload struct {
	MessageID string
	Before    *SnapshotPayload
	After     *SnapshotPayload
	Reason    string
}

// SnapshotPayload captures immutable message snapshots.
type SnapshotPayload struct {
	Text string
}

// RenamePayload captures a profile display-name transition.
type RenamePayload struct {
	Member  ActorRef
	OldName string
	NewName string
}
