// Package notify turns point mutations into ordered, coalescing push streams per observer.
//
// A mutation only wakes the subscriptions registered under the affected view keys; each
// subscription then recomputes its snapshot from current state on its own goroutine. Wake-ups
// are coalesced, so a slow observer sees fewer snapshots but never an out-of-order one, and the
// last snapshot it receives always reflects the latest mutation.
package notify

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

type Kind string

const (
	KindMessages    Kind = "messages"
	KindNewMessages Kind = "new_messages"
	KindTyping      Kind = "typing"
	KindRoomList    Kind = "rooms"
	KindUnread      Kind = "unread"
	KindTotalUnread Kind = "total_unread"
)

// Key identifies what a subscriber watches. Room-scoped kinds set RoomID, user-scoped kinds set
// UserID, and KindUnread sets both.
type Key struct {
	Kind   Kind
	RoomID string
	UserID string
}

func MessagesKey(roomID string) Key    { return Key{Kind: KindMessages, RoomID: roomID} }
func NewMessagesKey(roomID string) Key { return Key{Kind: KindNewMessages, RoomID: roomID} }
func TypingKey(roomID string) Key      { return Key{Kind: KindTyping, RoomID: roomID} }
func RoomListKey(userID string) Key    { return Key{Kind: KindRoomList, UserID: userID} }
func UnreadKey(roomID, userID string) Key {
	return Key{Kind: KindUnread, RoomID: roomID, UserID: userID}
}
func TotalUnreadKey(userID string) Key { return Key{Kind: KindTotalUnread, UserID: userID} }

const shardCount = 64

type entrySet map[*entry]struct{}

type shard struct {
	mu     sync.RWMutex
	byRoom map[string]entrySet
	byUser map[string]entrySet
}

// entry is one registration. wake has capacity 1 so pending notifications coalesce.
type entry struct {
	key  Key
	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func (e *entry) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *entry) complete() {
	e.once.Do(func() { close(e.done) })
}

// Hub is the registry of live subscriptions, sharded by room and user id so that notifying
// one room never contends with another.
type Hub struct {
	shards [shardCount]shard
}

func NewHub() *Hub {
	h := &Hub{}
	for i := range h.shards {
		h.shards[i].byRoom = make(map[string]entrySet)
		h.shards[i].byUser = make(map[string]entrySet)
	}
	return h
}

func (h *Hub) shardFor(id string) *shard {
	return &h.shards[xxhash.Sum64String(id)%shardCount]
}

func add(m map[string]entrySet, id string, e *entry) {
	set, ok := m[id]
	if !ok {
		set = make(entrySet)
		m[id] = set
	}
	set[e] = struct{}{}
}

func remove(m map[string]entrySet, id string, e *entry) {
	if set, ok := m[id]; ok {
		delete(set, e)
		if len(set) == 0 {
			delete(m, id)
		}
	}
}

func (h *Hub) register(key Key) *entry {
	e := &entry{key: key, wake: make(chan struct{}, 1), done: make(chan struct{})}
	if key.RoomID != "" {
		s := h.shardFor(key.RoomID)
		s.mu.Lock()
		add(s.byRoom, key.RoomID, e)
		s.mu.Unlock()
	}
	if key.UserID != "" {
		s := h.shardFor(key.UserID)
		s.mu.Lock()
		add(s.byUser, key.UserID, e)
		s.mu.Unlock()
	}
	return e
}

func (h *Hub) unregister(e *entry) {
	if e.key.RoomID != "" {
		s := h.shardFor(e.key.RoomID)
		s.mu.Lock()
		remove(s.byRoom, e.key.RoomID, e)
		s.mu.Unlock()
	}
	if e.key.UserID != "" {
		s := h.shardFor(e.key.UserID)
		s.mu.Lock()
		remove(s.byUser, e.key.UserID, e)
		s.mu.Unlock()
	}
}

func hasKind(kinds []Kind, k Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

// NotifyRoom wakes every room-scoped subscription of roomID whose kind is in kinds.
func (h *Hub) NotifyRoom(roomID string, kinds ...Kind) {
	s := h.shardFor(roomID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for e := range s.byRoom[roomID] {
		if hasKind(kinds, e.key.Kind) {
			e.signal()
		}
	}
}

// Notify wakes the subscriptions registered under exactly these keys.
func (h *Hub) Notify(keys ...Key) {
	for _, k := range keys {
		id, byUser := k.RoomID, false
		if id == "" {
			id, byUser = k.UserID, true
		}
		s := h.shardFor(id)
		s.mu.RLock()
		set := s.byRoom[id]
		if byUser {
			set = s.byUser[id]
		}
		for e := range set {
			if e.key == k {
				e.signal()
			}
		}
		s.mu.RUnlock()
	}
}

// NotifyUsers wakes the user-scoped subscriptions (room list, total unread) of each user.
func (h *Hub) NotifyUsers(userIDs []string, kinds ...Kind) {
	for _, u := range userIDs {
		keys := make([]Key, 0, len(kinds))
		for _, k := range kinds {
			keys = append(keys, Key{Kind: k, UserID: u})
		}
		h.Notify(keys...)
	}
}

// CloseRoom completes every subscription scoped to roomID. Their streams end without error.
func (h *Hub) CloseRoom(roomID string) {
	s := h.shardFor(roomID)
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.byRoom[roomID]))
	for e := range s.byRoom[roomID] {
		entries = append(entries, e)
	}
	s.mu.RUnlock()
	for _, e := range entries {
		e.complete()
	}
}

// Count returns the number of live registrations; used by tests and diagnostics.
func (h *Hub) Count() int {
	seen := make(map[*entry]struct{})
	for i := range h.shards {
		s := &h.shards[i]
		s.mu.RLock()
		for _, set := range s.byRoom {
			for e := range set {
				seen[e] = struct{}{}
			}
		}
		for _, set := range s.byUser {
			for e := range set {
				seen[e] = struct{}{}
			}
		}
		s.mu.RUnlock()
	}
	return len(seen)
}
