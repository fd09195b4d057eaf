package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/eventchat/internal/event"
	"github.com/eventchat/internal/notify"
)

// MarkAsRead moves the user's read pointer in the room to messageID and adds a read receipt to
// that message. The message must belong to the room. The pointer is set as given, even when it
// moves backwards.
func (e *Engine) MarkAsRead(ctx context.Context, roomID, userID, messageID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("chat.MarkAsRead: blank user id: %w", ErrInvalidArgument)
	}
	unlock, ok := e.lockRoom(roomID)
	if !ok {
		return fmt.Errorf("chat.MarkAsRead: room %s: %w", roomID, ErrNotFound)
	}
	receipt, err := e.msgs.AddReadBy(roomID, messageID, userID)
	if err == nil {
		e.reads.SetLastRead(roomID, userID, messageID)
	}
	unlock()
	if err != nil {
		return fmt.Errorf("chat.MarkAsRead: %w", err)
	}
	e.hub.Notify(notify.UnreadKey(roomID, userID), notify.TotalUnreadKey(userID))
	if receipt {
		e.hub.NotifyRoom(roomID, notify.KindMessages)
	}
	e.publish(ctx, event.Event{Type: event.MessageRead, RoomID: roomID, MessageID: messageID, UserID: userID})
	return nil
}

// GetUnreadCount counts messages by others newer than the user's read pointer (all of them if the
// user read nothing). A pointer that no longer resolves yields 0.
func (e *Engine) GetUnreadCount(_ context.Context, roomID, userID string) (int, error) {
	n, ok := e.unreadCount(roomID, userID)
	if !ok {
		return 0, fmt.Errorf("chat.GetUnreadCount: room %s: %w", roomID, ErrNotFound)
	}
	return n, nil
}

func (e *Engine) unreadCount(roomID, userID string) (int, bool) {
	unlock, ok := e.rlockRoom(roomID)
	if !ok {
		return 0, false
	}
	defer unlock()
	return e.reads.UnreadCount(e.msgs, roomID, userID), true
}

// GetLastReadMessageID returns the user's read pointer; ok is false if they read nothing.
func (e *Engine) GetLastReadMessageID(_ context.Context, roomID, userID string) (string, bool) {
	return e.reads.LastRead(roomID, userID)
}

// GetTotalUnreadCount sums the unread counts over all of the user's rooms.
func (e *Engine) GetTotalUnreadCount(_ context.Context, userID string) int {
	return e.totalUnread(userID)
}

func (e *Engine) totalUnread(userID string) int {
	total := 0
	for _, id := range e.rooms.UserRoomIDs(userID) {
		n, _ := e.unreadCount(id, userID)
		total += n
	}
	return total
}

// SetTyping adds or removes the user from the room's typing set. Starting to type in a missing
// room fails with ErrNotFound; stopping is always allowed.
func (e *Engine) SetTyping(ctx context.Context, roomID, userID string, isTyping bool) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("chat.SetTyping: blank user id: %w", ErrInvalidArgument)
	}
	unlock, ok := e.rlockRoom(roomID)
	if !ok {
		if isTyping {
			return fmt.Errorf("chat.SetTyping: room %s: %w", roomID, ErrNotFound)
		}
		return nil
	}
	changed := e.typing.Set(roomID, userID, isTyping, e.clock.Now())
	unlock()
	if !changed {
		return nil
	}
	e.hub.NotifyRoom(roomID, notify.KindTyping)
	e.publish(ctx, event.Event{Type: event.Typing, RoomID: roomID, UserID: userID, IsTyping: isTyping})
	return nil
}

// GetTypingUsers returns the users currently typing in the room, in the order they started.
func (e *Engine) GetTypingUsers(_ context.Context, roomID string) []string {
	return e.typing.Users(roomID)
}
