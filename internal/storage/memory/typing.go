package memory

import (
	"slices"
	"sync"
	"time"
)

type typingRoom struct {
	users []string
	since map[string]time.Time
}

// TypingTracker: эфемерное множество печатающих пользователей по комнатам (без персистентности).
type TypingTracker struct {
	mu    sync.RWMutex
	rooms map[string]*typingRoom
}

func NewTypingTracker() *TypingTracker {
	return &TypingTracker{rooms: make(map[string]*typingRoom)}
}

// Set adds or removes userID from the room's typing set. changed is false when the set is
// unchanged; a repeated isTyping=true only refreshes the entry's timestamp.
func (t *TypingTracker) Set(roomID, userID string, isTyping bool, at time.Time) (changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.rooms[roomID]
	if isTyping {
		if !ok {
			r = &typingRoom{since: make(map[string]time.Time)}
			t.rooms[roomID] = r
		}
		r.since[userID] = at
		if slices.Contains(r.users, userID) {
			return false
		}
		r.users = append(r.users, userID)
		return true
	}
	if !ok {
		return false
	}
	i := slices.Index(r.users, userID)
	if i < 0 {
		return false
	}
	t.removeLocked(roomID, r, i)
	return true
}

func (t *TypingTracker) removeLocked(roomID string, r *typingRoom, i int) {
	delete(r.since, r.users[i])
	r.users = slices.Delete(r.users, i, i+1)
	if len(r.users) == 0 {
		delete(t.rooms, roomID)
	}
}

// Users returns the room's typing users in the order they started typing.
func (t *TypingTracker) Users(roomID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rooms[roomID]
	if !ok {
		return []string{}
	}
	return slices.Clone(r.users)
}

func (t *TypingTracker) DropRoom(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rooms, roomID)
}

// Expire removes entries last refreshed before cutoff and returns the rooms that changed.
func (t *TypingTracker) Expire(cutoff time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var changed []string
	for roomID, r := range t.rooms {
		before := len(r.users)
		for i := len(r.users) - 1; i >= 0; i-- {
			if r.since[r.users[i]].Before(cutoff) {
				t.removeLocked(roomID, r, i)
			}
		}
		if len(r.users) != before {
			changed = append(changed, roomID)
		}
	}
	return changed
}
