package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eventchat/internal/event"
	"github.com/eventchat/internal/idgen"
	"github.com/eventchat/internal/logger"
	"github.com/eventchat/internal/model"
	"github.com/eventchat/internal/notify"
)

type SendMessageRequest struct {
	RoomID    string            `json:"room_id"`
	SenderID  string            `json:"sender_id"`
	Content   string            `json:"content"`
	Type      model.MessageType `json:"type"`
	MediaURL  string            `json:"media_url,omitempty"`
	ReplyToID string            `json:"reply_to_id,omitempty"`
}

func (req *SendMessageRequest) validate() error {
	if strings.TrimSpace(req.SenderID) == "" {
		return fmt.Errorf("blank sender id: %w", ErrInvalidArgument)
	}
	if req.Type == "" {
		req.Type = model.MessageTypeText
	}
	if !req.Type.IsValid() {
		return fmt.Errorf("unknown message type %q: %w", req.Type, ErrInvalidArgument)
	}
	if strings.TrimSpace(req.Content) == "" && req.MediaURL == "" {
		return fmt.Errorf("empty message: %w", ErrInvalidArgument)
	}
	return nil
}

func (e *Engine) preview(m *model.ChatMessage) *model.MessagePreview {
	text := m.Content
	if text == "" {
		text = "[" + string(m.Type) + "]"
	}
	return &model.MessagePreview{
		MessageID:  m.ID,
		Text:       text,
		SenderID:   m.SenderID,
		SenderName: e.dir.DisplayName(m.SenderID),
		SentAt:     m.CreatedAt,
	}
}

// refreshPreview re-derives the preview from the current head. Caller holds the room lock.
func (e *Engine) refreshPreview(roomID string) {
	var p *model.MessagePreview
	if head, ok := e.msgs.Head(roomID); ok {
		p = e.preview(&head)
	}
	e.rooms.SetPreview(roomID, p, time.Time{}, false)
}

// SendMessage appends a message as the newest of its room and updates the room preview in the
// same step. It fails with ErrNotFound for a missing room or reply target, and with
// ErrInvalidArgument when the reply target belongs to another room.
func (e *Engine) SendMessage(ctx context.Context, req SendMessageRequest) (model.ChatMessage, error) {
	if err := req.validate(); err != nil {
		return model.ChatMessage{}, fmt.Errorf("chat.SendMessage: %w", err)
	}
	unlock, ok := e.lockRoom(req.RoomID)
	if !ok {
		return model.ChatMessage{}, fmt.Errorf("chat.SendMessage: room %s: %w", req.RoomID, ErrNotFound)
	}
	msg, members, err := e.sendLocked(req)
	unlock()
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("chat.SendMessage: %w", err)
	}
	e.hub.NotifyRoom(req.RoomID, notify.KindMessages, notify.KindNewMessages, notify.KindUnread)
	e.notifyUsers(members, notify.KindRoomList, notify.KindTotalUnread)
	e.publish(ctx, event.Event{Type: event.NewMessage, RoomID: req.RoomID, MessageID: msg.ID, UserID: msg.SenderID, At: msg.CreatedAt})
	return msg, nil
}

func (e *Engine) sendLocked(req SendMessageRequest) (model.ChatMessage, []string, error) {
	var replyTo *string
	if req.ReplyToID != "" {
		room, ok := e.msgs.RoomOf(req.ReplyToID)
		if !ok {
			return model.ChatMessage{}, nil, fmt.Errorf("reply target %s: %w", req.ReplyToID, ErrNotFound)
		}
		if room != req.RoomID {
			return model.ChatMessage{}, nil, fmt.Errorf("reply target %s is in another room: %w", req.ReplyToID, ErrInvalidArgument)
		}
		id := req.ReplyToID
		replyTo = &id
	}
	msg := model.ChatMessage{
		ID:         idgen.NewID(),
		ChatRoomID: req.RoomID,
		SenderID:   req.SenderID,
		Content:    req.Content,
		Type:       req.Type,
		MediaURL:   req.MediaURL,
		ReplyToID:  replyTo,
		Reactions:  map[string][]string{},
		ReadBy:     []string{},
		CreatedAt:  e.clock.Now(),
	}
	if err := e.msgs.Append(msg); err != nil {
		return model.ChatMessage{}, nil, err
	}
	e.rooms.SetPreview(req.RoomID, e.preview(&msg), msg.CreatedAt, true)
	members, _ := e.rooms.Participants(req.RoomID)
	return msg, members, nil
}

// GetMessages returns up to limit messages, most recent first; limit <= 0 returns all. With
// before set, only messages strictly older than it are returned.
func (e *Engine) GetMessages(_ context.Context, roomID string, limit int, before *time.Time) ([]model.ChatMessage, error) {
	unlock, ok := e.rlockRoom(roomID)
	if !ok {
		return nil, fmt.Errorf("chat.GetMessages: room %s: %w", roomID, ErrNotFound)
	}
	defer unlock()
	msgs, _ := e.msgs.List(roomID, limit, before)
	return msgs, nil
}

// GetMessage looks a message up by id across all rooms.
func (e *Engine) GetMessage(_ context.Context, id string) (model.ChatMessage, bool) {
	return e.msgs.Get(id)
}

// EditMessage replaces the content in place. Edits do not change the message position; editing
// the newest message refreshes the room preview.
func (e *Engine) EditMessage(ctx context.Context, id, content string) (model.ChatMessage, error) {
	if strings.TrimSpace(content) == "" {
		return model.ChatMessage{}, fmt.Errorf("chat.EditMessage: empty content: %w", ErrInvalidArgument)
	}
	roomID, ok := e.msgs.RoomOf(id)
	if !ok {
		return model.ChatMessage{}, fmt.Errorf("chat.EditMessage: message %s: %w", id, ErrNotFound)
	}
	unlock, ok := e.lockRoom(roomID)
	if !ok {
		return model.ChatMessage{}, fmt.Errorf("chat.EditMessage: message %s: %w", id, ErrNotFound)
	}
	msg, err := e.msgs.Edit(id, content, e.clock.Now())
	var isHead bool
	var members []string
	if err == nil {
		if head, ok := e.msgs.Head(roomID); ok && head.ID == id {
			isHead = true
			e.refreshPreview(roomID)
			members, _ = e.rooms.Participants(roomID)
		}
	}
	unlock()
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("chat.EditMessage: %w", err)
	}
	e.hub.NotifyRoom(roomID, notify.KindMessages)
	if isHead {
		e.notifyUsers(members, notify.KindRoomList)
	}
	e.publish(ctx, event.Event{Type: event.MessageEdited, RoomID: roomID, MessageID: id, UserID: msg.SenderID, At: *msg.UpdatedAt})
	return msg, nil
}

// DeleteMessage hard-removes a message; a missing message is a no-op. Read pointers at it move to
// the nearest older message (or are cleared), and the preview follows the new head.
func (e *Engine) DeleteMessage(ctx context.Context, id string) error {
	roomID, ok := e.msgs.RoomOf(id)
	if !ok {
		return nil
	}
	unlock, ok := e.lockRoom(roomID)
	if !ok {
		return nil
	}
	head, _ := e.msgs.Head(roomID)
	removed, olderID, deleted := e.msgs.Delete(id)
	var members []string
	if deleted {
		if moved := e.reads.Repoint(roomID, id, olderID); len(moved) > 0 {
			logger.Debugf("chat: %d read pointers moved off deleted message %s", len(moved), id)
		}
		if head.ID == id {
			e.refreshPreview(roomID)
		}
		members, _ = e.rooms.Participants(roomID)
	}
	unlock()
	if !deleted {
		return nil
	}
	e.hub.NotifyRoom(roomID, notify.KindMessages, notify.KindNewMessages, notify.KindUnread)
	kinds := []notify.Kind{notify.KindTotalUnread}
	if head.ID == id {
		kinds = append(kinds, notify.KindRoomList)
	}
	e.notifyUsers(members, kinds...)
	e.publish(ctx, event.Event{Type: event.MessageDeleted, RoomID: roomID, MessageID: id, UserID: removed.SenderID})
	return nil
}

func validateReaction(userID, emoji string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("blank user id: %w", ErrInvalidArgument)
	}
	if strings.TrimSpace(emoji) == "" {
		return fmt.Errorf("blank emoji: %w", ErrInvalidArgument)
	}
	return nil
}

// AddReaction records the user's emoji on a message. Reacting twice with the same emoji keeps a
// single entry; a missing message is a no-op.
func (e *Engine) AddReaction(ctx context.Context, messageID, userID, emoji string) error {
	return e.react(ctx, "chat.AddReaction", event.ReactionAdded, messageID, userID, emoji)
}

// RemoveReaction drops the user's emoji; the emoji disappears once nobody uses it.
// A missing message or reaction is a no-op.
func (e *Engine) RemoveReaction(ctx context.Context, messageID, userID, emoji string) error {
	return e.react(ctx, "chat.RemoveReaction", event.ReactionRemoved, messageID, userID, emoji)
}

func (e *Engine) react(ctx context.Context, op string, typ event.Type, messageID, userID, emoji string) error {
	if err := validateReaction(userID, emoji); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	roomID, ok := e.msgs.RoomOf(messageID)
	if !ok {
		return nil
	}
	unlock, ok := e.lockRoom(roomID)
	if !ok {
		return nil
	}
	var changed bool
	if typ == event.ReactionAdded {
		_, changed = e.msgs.AddReaction(messageID, userID, emoji)
	} else {
		_, changed = e.msgs.RemoveReaction(messageID, userID, emoji)
	}
	unlock()
	if !changed {
		return nil
	}
	e.hub.NotifyRoom(roomID, notify.KindMessages)
	e.publish(ctx, event.Event{Type: typ, RoomID: roomID, MessageID: messageID, UserID: userID, Emoji: emoji})
	return nil
}

// GetReactions returns emoji -> users; empty if the message does not exist.
func (e *Engine) GetReactions(_ context.Context, messageID string) map[string][]string {
	return e.msgs.Reactions(messageID)
}
