// Package event describes the change records the chat engine emits after every accepted mutation.
// They feed outside consumers (the Redis relay, audit logs); in-process observers use notify.
package event

import (
	"context"
	"time"
)

type Type string

const (
	ChatCreated     Type = "chat_created"
	ChatDeleted     Type = "chat_deleted"
	MemberAdded     Type = "member_added"
	MemberRemoved   Type = "member_removed"
	NewMessage      Type = "new_message"
	MessageEdited   Type = "message_edited"
	MessageDeleted  Type = "message_deleted"
	ReactionAdded   Type = "reaction_added"
	ReactionRemoved Type = "reaction_removed"
	MessageRead     Type = "message_read"
	Typing          Type = "typing"
)

// Event is a flat change record. Fields not relevant to Type are left empty.
type Event struct {
	Type      Type      `json:"type"`
	RoomID    string    `json:"room_id"`
	MessageID string    `json:"message_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Emoji     string    `json:"emoji,omitempty"`
	IsTyping  bool      `json:"is_typing,omitempty"`
	At        time.Time `json:"at"`
}

// Sink receives events. Publish must not block the caller for long: it runs on the mutation path.
type Sink interface {
	Publish(ctx context.Context, e Event)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event)

func (f SinkFunc) Publish(ctx context.Context, e Event) { f(ctx, e) }
