package chat

import (
	"context"
	"time"

	"github.com/eventchat/internal/model"
	"github.com/eventchat/internal/notify"
)

// Observe* return live streams. Each stream carries the current snapshot as its first element
// (except ObserveNewMessages, which is a delta stream), never carries errors, and is closed when
// the room is deleted, the context ends, or the subscription is closed. Room-scoped streams on a
// missing room are closed immediately.

func (e *Engine) ObserveMessages(ctx context.Context, roomID string) *notify.Subscription[[]model.ChatMessage] {
	return notify.Subscribe(ctx, e.hub, notify.MessagesKey(roomID), func() ([]model.ChatMessage, notify.Status) {
		unlock, ok := e.rlockRoom(roomID)
		if !ok {
			return nil, notify.Done
		}
		defer unlock()
		msgs, _ := e.msgs.List(roomID, 0, nil)
		return msgs, notify.Emit
	})
}

// ObserveNewMessages emits the newest message whenever a newer one than last seen becomes the
// head of the room. Messages that arrive between two wake-ups are coalesced: only the latest is
// guaranteed to be delivered.
func (e *Engine) ObserveNewMessages(ctx context.Context, roomID string) *notify.Subscription[model.ChatMessage] {
	var seen time.Time
	first := true
	return notify.Subscribe(ctx, e.hub, notify.NewMessagesKey(roomID), func() (model.ChatMessage, notify.Status) {
		unlock, ok := e.rlockRoom(roomID)
		if !ok {
			return model.ChatMessage{}, notify.Done
		}
		head, has := e.msgs.Head(roomID)
		unlock()
		if first {
			first = false
			if has {
				seen = head.CreatedAt
			}
			return model.ChatMessage{}, notify.Skip
		}
		if !has || !head.CreatedAt.After(seen) {
			return model.ChatMessage{}, notify.Skip
		}
		seen = head.CreatedAt
		return head, notify.Emit
	})
}

// ObserveChatRooms streams the user's room list, most recently active first.
func (e *Engine) ObserveChatRooms(ctx context.Context, userID string) *notify.Subscription[[]model.ChatRoom] {
	return notify.Subscribe(ctx, e.hub, notify.RoomListKey(userID), func() ([]model.ChatRoom, notify.Status) {
		return e.userRooms(userID), notify.Emit
	})
}

// distinct wraps an int source so that repeated values are skipped.
func distinct(src func() (int, bool)) notify.Source[int] {
	last, emitted := 0, false
	return func() (int, notify.Status) {
		n, ok := src()
		if !ok {
			return 0, notify.Done
		}
		if emitted && n == last {
			return 0, notify.Skip
		}
		last, emitted = n, true
		return n, notify.Emit
	}
}

func (e *Engine) ObserveUnreadCount(ctx context.Context, roomID, userID string) *notify.Subscription[int] {
	return notify.Subscribe(ctx, e.hub, notify.UnreadKey(roomID, userID), distinct(func() (int, bool) {
		return e.unreadCount(roomID, userID)
	}))
}

func (e *Engine) ObserveTotalUnreadCount(ctx context.Context, userID string) *notify.Subscription[int] {
	return notify.Subscribe(ctx, e.hub, notify.TotalUnreadKey(userID), distinct(func() (int, bool) {
		return e.totalUnread(userID), true
	}))
}

func (e *Engine) ObserveTypingUsers(ctx context.Context, roomID string) *notify.Subscription[[]string] {
	return notify.Subscribe(ctx, e.hub, notify.TypingKey(roomID), func() ([]string, notify.Status) {
		unlock, ok := e.rlockRoom(roomID)
		if !ok {
			return nil, notify.Done
		}
		defer unlock()
		return e.typing.Users(roomID), notify.Emit
	})
}
