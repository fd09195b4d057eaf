package model

import (
	"slices"
	"time"
)

// ChatRoom is either an event-wide chat (tied to a party) or a private/group chat.
type ChatRoom struct {
	ID           string          `json:"id"`
	PartyEventID string          `json:"party_event_id,omitempty"`
	Name         string          `json:"name,omitempty"`
	IsEventChat  bool            `json:"is_event_chat"`
	Participants []string        `json:"participants"`
	LastMessage  *MessagePreview `json:"last_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// MessagePreview is the denormalized head of a room, shown in room lists.
type MessagePreview struct {
	MessageID  string    `json:"message_id"`
	Text       string    `json:"text"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	SentAt     time.Time `json:"sent_at"`
}

// HasParticipant reports whether userID is a member of the room.
func (r *ChatRoom) HasParticipant(userID string) bool {
	return slices.Contains(r.Participants, userID)
}

// ActivityAt is the sort key for room lists: the last message time, or creation time for empty rooms.
func (r *ChatRoom) ActivityAt() time.Time {
	if r.LastMessage != nil {
		return r.LastMessage.SentAt
	}
	return r.CreatedAt
}

// Clone returns a deep copy safe to hand out of a store.
func (r *ChatRoom) Clone() ChatRoom {
	c := *r
	c.Participants = slices.Clone(r.Participants)
	if r.LastMessage != nil {
		p := *r.LastMessage
		c.LastMessage = &p
	}
	return c
}
