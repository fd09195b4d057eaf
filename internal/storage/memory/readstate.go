package memory

import (
	"sync"

	"github.com/eventchat/internal/model"
)

// MessageScanner walks a room's messages most recent first. Implemented by MessageStore.
type MessageScanner interface {
	ScanRecent(roomID string, fn func(m *model.ChatMessage) bool) bool
}

// ReadTracker хранит указатель «прочитано до» (last read message id) по паре комната/пользователь.
// Отсутствие записи означает, что пользователь в комнате ничего не читал.
type ReadTracker struct {
	mu    sync.RWMutex
	rooms map[string]map[string]string
}

func NewReadTracker() *ReadTracker {
	return &ReadTracker{rooms: make(map[string]map[string]string)}
}

func (t *ReadTracker) SetLastRead(roomID, userID, messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	users, ok := t.rooms[roomID]
	if !ok {
		users = make(map[string]string)
		t.rooms[roomID] = users
	}
	users[userID] = messageID
}

// LastRead returns the user's last read message id in the room; ok is false if they read nothing.
func (t *ReadTracker) LastRead(roomID, userID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.rooms[roomID][userID]
	return id, ok
}

// Repoint moves every pointer at fromID to toID, or clears them when toID is empty.
// It returns the users whose pointer changed.
func (t *ReadTracker) Repoint(roomID, fromID, toID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	users := t.rooms[roomID]
	var changed []string
	for u, id := range users {
		if id != fromID {
			continue
		}
		if toID == "" {
			delete(users, u)
		} else {
			users[u] = toID
		}
		changed = append(changed, u)
	}
	return changed
}

func (t *ReadTracker) Forget(roomID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if users, ok := t.rooms[roomID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(t.rooms, roomID)
		}
	}
}

func (t *ReadTracker) DropRoom(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rooms, roomID)
}

// UnreadCount counts messages not authored by userID that are newer than the user's last read
// message, or all such messages if nothing was read. A pointer that no longer resolves to a
// message in the room yields 0.
func (t *ReadTracker) UnreadCount(msgs MessageScanner, roomID, userID string) int {
	last, hasLast := t.LastRead(roomID, userID)
	return CountUnread(msgs, roomID, userID, last, hasLast)
}

// CountUnread is the unread-count algorithm over an explicit pointer.
func CountUnread(msgs MessageScanner, roomID, userID, lastReadID string, hasLast bool) int {
	count := 0
	found := !hasLast
	msgs.ScanRecent(roomID, func(m *model.ChatMessage) bool {
		if hasLast && m.ID == lastReadID {
			found = true
			return false
		}
		if m.SenderID != userID {
			count++
		}
		return true
	})
	if !found {
		return 0
	}
	return count
}
