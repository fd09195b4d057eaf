package model

import (
	"slices"
	"time"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeVideo  MessageType = "video"
	MessageTypeAudio  MessageType = "audio"
	MessageTypeSystem MessageType = "system"
)

func (t MessageType) IsValid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo, MessageTypeAudio, MessageTypeSystem:
		return true
	}
	return false
}

type ChatMessage struct {
	ID         string      `json:"id"`
	ChatRoomID string      `json:"chat_room_id"`
	SenderID   string      `json:"sender_id"`
	Content    string      `json:"content"`
	Type       MessageType `json:"type"`
	MediaURL   string      `json:"media_url,omitempty"`
	ReplyToID  *string     `json:"reply_to_id,omitempty"`
	// Reactions maps emoji to the users who reacted with it, in reaction order.
	// An emoji key never maps to an empty list.
	Reactions map[string][]string `json:"reactions"`
	ReadBy    []string            `json:"read_by"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt *time.Time          `json:"updated_at,omitempty"`
}

// Clone returns a deep copy safe to hand out of a store.
func (m *ChatMessage) Clone() ChatMessage {
	c := *m
	if m.ReplyToID != nil {
		id := *m.ReplyToID
		c.ReplyToID = &id
	}
	if m.UpdatedAt != nil {
		t := *m.UpdatedAt
		c.UpdatedAt = &t
	}
	c.Reactions = CloneReactions(m.Reactions)
	c.ReadBy = slices.Clone(m.ReadBy)
	if c.ReadBy == nil {
		c.ReadBy = []string{}
	}
	return c
}

// CloneReactions deep-copies a reaction map; nil becomes an empty map.
func CloneReactions(src map[string][]string) map[string][]string {
	out := make(map[string][]string, len(src))
	for emoji, users := range src {
		out[emoji] = slices.Clone(users)
	}
	return out
}
