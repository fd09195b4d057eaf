package memory

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/eventchat/internal/model"
	"github.com/eventchat/internal/storage"
)

// messageBucket holds one room's messages in ascending creation order; readers walk it backwards
// to get the most-recent-first view.
type messageBucket struct {
	mu   sync.RWMutex
	msgs []*model.ChatMessage
}

func (b *messageBucket) indexOf(id string) int {
	return slices.IndexFunc(b.msgs, func(m *model.ChatMessage) bool { return m.ID == id })
}

// MessageStore владеет упорядоченными списками сообщений по комнатам.
// mu защищает карту комнат; содержимое каждой комнаты защищает собственный мьютекс бакета,
// поэтому операции над разными комнатами друг друга не блокируют.
type MessageStore struct {
	mu      sync.RWMutex
	buckets map[string]*messageBucket
	// ids maps message id -> room id.
	ids sync.Map
}

func NewMessageStore() *MessageStore {
	return &MessageStore{buckets: make(map[string]*messageBucket)}
}

// CreateRoom seeds an empty message list for roomID. Calling it twice keeps the existing list.
func (s *MessageStore) CreateRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[roomID]; !ok {
		s.buckets[roomID] = &messageBucket{}
	}
}

// DropRoom removes the room's messages and returns how many were removed.
func (s *MessageStore) DropRoom(roomID string) int {
	s.mu.Lock()
	b, ok := s.buckets[roomID]
	delete(s.buckets, roomID)
	s.mu.Unlock()
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.msgs {
		s.ids.Delete(m.ID)
	}
	n := len(b.msgs)
	b.msgs = nil
	return n
}

func (s *MessageStore) bucket(roomID string) (*messageBucket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[roomID]
	return b, ok
}

func (s *MessageStore) bucketOf(messageID string) (*messageBucket, string, bool) {
	v, ok := s.ids.Load(messageID)
	if !ok {
		return nil, "", false
	}
	roomID := v.(string)
	b, ok := s.bucket(roomID)
	return b, roomID, ok
}

// Append stores m as the newest message of its room. m.CreatedAt must not be older than the
// current head; the engine's clock guarantees that.
func (s *MessageStore) Append(m model.ChatMessage) error {
	b, ok := s.bucket(m.ChatRoomID)
	if !ok {
		return fmt.Errorf("messages.Append: room %s: %w", m.ChatRoomID, storage.ErrNotFound)
	}
	c := m.Clone()
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := len(b.msgs); n > 0 && c.CreatedAt.Before(b.msgs[n-1].CreatedAt) {
		return fmt.Errorf("messages.Append: created_at before head: %w", storage.ErrInvalidArgument)
	}
	if _, dup := s.ids.LoadOrStore(c.ID, c.ChatRoomID); dup {
		return fmt.Errorf("messages.Append: id %s: %w", c.ID, storage.ErrAlreadyExists)
	}
	b.msgs = append(b.msgs, &c)
	return nil
}

// List returns up to limit messages, most recent first. limit <= 0 means no limit.
// With before set, only messages strictly older than it are returned.
func (s *MessageStore) List(roomID string, limit int, before *time.Time) ([]model.ChatMessage, bool) {
	b, ok := s.bucket(roomID)
	if !ok {
		return nil, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.ChatMessage, 0, min(len(b.msgs), max(limit, 0)))
	for i := len(b.msgs) - 1; i >= 0; i-- {
		m := b.msgs[i]
		if before != nil && !m.CreatedAt.Before(*before) {
			continue
		}
		out = append(out, m.Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, true
}

// ScanRecent calls fn for each message of the room, most recent first, until fn returns false.
// fn must not retain or modify m. It returns false if the room does not exist.
func (s *MessageStore) ScanRecent(roomID string, fn func(m *model.ChatMessage) bool) bool {
	b, ok := s.bucket(roomID)
	if !ok {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i := len(b.msgs) - 1; i >= 0; i-- {
		if !fn(b.msgs[i]) {
			break
		}
	}
	return true
}

// Head returns the newest message of the room.
func (s *MessageStore) Head(roomID string) (model.ChatMessage, bool) {
	b, ok := s.bucket(roomID)
	if !ok {
		return model.ChatMessage{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.msgs) == 0 {
		return model.ChatMessage{}, false
	}
	return b.msgs[len(b.msgs)-1].Clone(), true
}

// Get looks a message up by id across all rooms.
func (s *MessageStore) Get(id string) (model.ChatMessage, bool) {
	b, _, ok := s.bucketOf(id)
	if !ok {
		return model.ChatMessage{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	i := b.indexOf(id)
	if i < 0 {
		return model.ChatMessage{}, false
	}
	return b.msgs[i].Clone(), true
}

// RoomOf returns the room a message belongs to.
func (s *MessageStore) RoomOf(id string) (string, bool) {
	v, ok := s.ids.Load(id)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Edit replaces the content in place; the message keeps its position.
func (s *MessageStore) Edit(id, content string, at time.Time) (model.ChatMessage, error) {
	b, _, ok := s.bucketOf(id)
	if !ok {
		return model.ChatMessage{}, fmt.Errorf("messages.Edit: %s: %w", id, storage.ErrNotFound)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexOf(id)
	if i < 0 {
		return model.ChatMessage{}, fmt.Errorf("messages.Edit: %s: %w", id, storage.ErrNotFound)
	}
	m := b.msgs[i]
	m.Content = content
	m.UpdatedAt = &at
	return m.Clone(), nil
}

// Delete hard-removes a message. olderID is the id of the nearest older message still in the
// room ("" if none); ok is false if the message did not exist.
func (s *MessageStore) Delete(id string) (removed model.ChatMessage, olderID string, ok bool) {
	b, _, found := s.bucketOf(id)
	if !found {
		return model.ChatMessage{}, "", false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexOf(id)
	if i < 0 {
		return model.ChatMessage{}, "", false
	}
	removed = b.msgs[i].Clone()
	if i > 0 {
		olderID = b.msgs[i-1].ID
	}
	b.msgs = slices.Delete(b.msgs, i, i+1)
	s.ids.Delete(id)
	return removed, olderID, true
}

// AddReaction records userID under emoji. changed is false if the message is missing or the
// user already reacted with that emoji.
func (s *MessageStore) AddReaction(messageID, userID, emoji string) (roomID string, changed bool) {
	b, roomID, ok := s.bucketOf(messageID)
	if !ok {
		return "", false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexOf(messageID)
	if i < 0 {
		return "", false
	}
	m := b.msgs[i]
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	if slices.Contains(m.Reactions[emoji], userID) {
		return roomID, false
	}
	m.Reactions[emoji] = append(m.Reactions[emoji], userID)
	return roomID, true
}

// RemoveReaction drops userID from emoji; an emoji left without users is removed entirely.
func (s *MessageStore) RemoveReaction(messageID, userID, emoji string) (roomID string, changed bool) {
	b, roomID, ok := s.bucketOf(messageID)
	if !ok {
		return "", false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexOf(messageID)
	if i < 0 {
		return "", false
	}
	m := b.msgs[i]
	users := m.Reactions[emoji]
	j := slices.Index(users, userID)
	if j < 0 {
		return roomID, false
	}
	users = slices.Delete(users, j, j+1)
	if len(users) == 0 {
		delete(m.Reactions, emoji)
	} else {
		m.Reactions[emoji] = users
	}
	return roomID, true
}

// Reactions returns a copy of the message's reactions; empty if the message does not exist.
func (s *MessageStore) Reactions(messageID string) map[string][]string {
	b, _, ok := s.bucketOf(messageID)
	if !ok {
		return map[string][]string{}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	i := b.indexOf(messageID)
	if i < 0 {
		return map[string][]string{}
	}
	return model.CloneReactions(b.msgs[i].Reactions)
}

// AddReadBy adds userID to the message's read receipts. The message must belong to roomID.
func (s *MessageStore) AddReadBy(roomID, messageID, userID string) (changed bool, err error) {
	b, ok := s.bucket(roomID)
	if !ok {
		return false, fmt.Errorf("messages.AddReadBy: room %s: %w", roomID, storage.ErrNotFound)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexOf(messageID)
	if i < 0 {
		return false, fmt.Errorf("messages.AddReadBy: message %s in room %s: %w", messageID, roomID, storage.ErrNotFound)
	}
	m := b.msgs[i]
	if slices.Contains(m.ReadBy, userID) {
		return false, nil
	}
	m.ReadBy = append(m.ReadBy, userID)
	return true, nil
}
