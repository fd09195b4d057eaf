package memory

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/eventchat/internal/model"
	"github.com/eventchat/internal/storage"
)

type roomEntry struct {
	mu   sync.RWMutex
	room model.ChatRoom
}

// RoomStore владеет комнатами, составом участников и денормализованным превью.
// mu защищает только карты и индексы (создание/удаление, членство);
// обновления превью берут mu на чтение и блокировку конкретной комнаты.
type RoomStore struct {
	mu      sync.RWMutex
	rooms   map[string]*roomEntry
	byParty map[string]string
	byPair  map[string]string
	byUser  map[string]map[string]struct{}
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:   make(map[string]*roomEntry),
		byParty: make(map[string]string),
		byPair:  make(map[string]string),
		byUser:  make(map[string]map[string]struct{}),
	}
}

// pairKey is order-independent: pairKey(a, b) == pairKey(b, a).
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "\x00" + b
}

func isPairRoom(r *model.ChatRoom) bool {
	return !r.IsEventChat && len(r.Participants) == 2
}

func validateRoom(r *model.ChatRoom) error {
	if r.ID == "" {
		return fmt.Errorf("rooms.Create: empty id: %w", storage.ErrInvalidArgument)
	}
	if r.IsEventChat && r.PartyEventID == "" {
		return fmt.Errorf("rooms.Create: event chat without party id: %w", storage.ErrInvalidArgument)
	}
	if len(r.Participants) == 0 {
		return fmt.Errorf("rooms.Create: no participants: %w", storage.ErrInvalidArgument)
	}
	seen := make(map[string]struct{}, len(r.Participants))
	for _, p := range r.Participants {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("rooms.Create: blank participant id: %w", storage.ErrInvalidArgument)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("rooms.Create: duplicate participant %s: %w", p, storage.ErrInvalidArgument)
		}
		seen[p] = struct{}{}
	}
	return nil
}

// existingLocked returns the room that r would collide with under the uniqueness rules. Caller holds s.mu.
func (s *RoomStore) existingLocked(r *model.ChatRoom) (*roomEntry, bool) {
	if r.IsEventChat {
		if id, ok := s.byParty[r.PartyEventID]; ok {
			return s.rooms[id], true
		}
		return nil, false
	}
	if isPairRoom(r) {
		if id, ok := s.byPair[pairKey(r.Participants[0], r.Participants[1])]; ok {
			return s.rooms[id], true
		}
	}
	return nil, false
}

func (s *RoomStore) insertLocked(r model.ChatRoom) {
	e := &roomEntry{room: r}
	s.rooms[r.ID] = e
	if r.IsEventChat {
		s.byParty[r.PartyEventID] = r.ID
	}
	s.indexPairLocked(&r)
	for _, p := range r.Participants {
		s.indexUserLocked(p, r.ID)
	}
}

func (s *RoomStore) indexUserLocked(userID, roomID string) {
	set, ok := s.byUser[userID]
	if !ok {
		set = make(map[string]struct{})
		s.byUser[userID] = set
	}
	set[roomID] = struct{}{}
}

func (s *RoomStore) unindexUserLocked(userID, roomID string) {
	if set, ok := s.byUser[userID]; ok {
		delete(set, roomID)
		if len(set) == 0 {
			delete(s.byUser, userID)
		}
	}
}

// Create inserts a fully built room, enforcing that at most one event chat exists per party
// and at most one private room exists per unordered pair of users.
func (s *RoomStore) Create(r model.ChatRoom) (model.ChatRoom, error) {
	if err := validateRoom(&r); err != nil {
		return model.ChatRoom{}, err
	}
	r = r.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[r.ID]; exists {
		return model.ChatRoom{}, fmt.Errorf("rooms.Create: id %s: %w", r.ID, storage.ErrAlreadyExists)
	}
	if _, exists := s.existingLocked(&r); exists {
		return model.ChatRoom{}, fmt.Errorf("rooms.Create: %w", storage.ErrAlreadyExists)
	}
	s.insertLocked(r)
	return r.Clone(), nil
}

// GetOrCreate returns the room r collides with, or inserts r. created reports which happened.
func (s *RoomStore) GetOrCreate(r model.ChatRoom) (room model.ChatRoom, created bool, err error) {
	if err := validateRoom(&r); err != nil {
		return model.ChatRoom{}, false, err
	}
	r = r.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, exists := s.existingLocked(&r); exists {
		e.mu.RLock()
		defer e.mu.RUnlock()
		return e.room.Clone(), false, nil
	}
	if _, exists := s.rooms[r.ID]; exists {
		return model.ChatRoom{}, false, fmt.Errorf("rooms.GetOrCreate: id %s: %w", r.ID, storage.ErrAlreadyExists)
	}
	s.insertLocked(r)
	return r.Clone(), true, nil
}

func (s *RoomStore) entry(id string) (*roomEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[id]
	return e, ok
}

func (s *RoomStore) Get(id string) (model.ChatRoom, bool) {
	e, ok := s.entry(id)
	if !ok {
		return model.ChatRoom{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.room.Clone(), true
}

func (s *RoomStore) Exists(id string) bool {
	_, ok := s.entry(id)
	return ok
}

// ByParty returns the event chat of a party.
func (s *RoomStore) ByParty(partyID string) (model.ChatRoom, bool) {
	s.mu.RLock()
	id, ok := s.byParty[partyID]
	s.mu.RUnlock()
	if !ok {
		return model.ChatRoom{}, false
	}
	return s.Get(id)
}

// PrivateRoom returns the 1:1 room of an unordered pair without creating one.
func (s *RoomStore) PrivateRoom(userA, userB string) (model.ChatRoom, bool) {
	s.mu.RLock()
	id, ok := s.byPair[pairKey(userA, userB)]
	s.mu.RUnlock()
	if !ok {
		return model.ChatRoom{}, false
	}
	return s.Get(id)
}

// UserRoomIDs returns the ids of every room the user participates in, unordered.
func (s *RoomStore) UserRoomIDs(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.byUser[userID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// SortByActivity orders rooms most recently active first; ties are broken by id for stable output.
func SortByActivity(rooms []model.ChatRoom) {
	slices.SortFunc(rooms, func(a, b model.ChatRoom) int {
		if c := b.ActivityAt().Compare(a.ActivityAt()); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func (s *RoomStore) Participants(id string) ([]string, bool) {
	e, ok := s.entry(id)
	if !ok {
		return nil, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.room.Participants), true
}

// Delete removes the room and its indexes. ok is false if it did not exist.
func (s *RoomStore) Delete(id string) (model.ChatRoom, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[id]
	if !ok {
		return model.ChatRoom{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(s.rooms, id)
	if e.room.IsEventChat {
		if s.byParty[e.room.PartyEventID] == id {
			delete(s.byParty, e.room.PartyEventID)
		}
	}
	s.dropPairLocked(&e.room)
	for _, p := range e.room.Participants {
		s.unindexUserLocked(p, id)
	}
	return e.room.Clone(), true
}

func (s *RoomStore) indexPairLocked(r *model.ChatRoom) {
	if isPairRoom(r) {
		s.byPair[pairKey(r.Participants[0], r.Participants[1])] = r.ID
	}
}

// checkPairLocked fails with ErrAlreadyExists if giving r the members next would make it a
// second private room for a pair that already has one.
func (s *RoomStore) checkPairLocked(r *model.ChatRoom, next []string) error {
	if r.IsEventChat || len(next) != 2 {
		return nil
	}
	if id, ok := s.byPair[pairKey(next[0], next[1])]; ok && id != r.ID {
		return fmt.Errorf("pair already has private room %s: %w", id, storage.ErrAlreadyExists)
	}
	return nil
}

// setParticipantsLocked replaces the member list and keeps the pair index in step with it.
func (s *RoomStore) setParticipantsLocked(r *model.ChatRoom, next []string) {
	s.dropPairLocked(r)
	r.Participants = next
	s.indexPairLocked(r)
}

func (s *RoomStore) dropPairLocked(r *model.ChatRoom) {
	if !isPairRoom(r) {
		return
	}
	k := pairKey(r.Participants[0], r.Participants[1])
	if s.byPair[k] == r.ID {
		delete(s.byPair, k)
	}
}

// AddParticipant appends userID to the room. added is false if the user was already a member.
// A private pair room that gains a third member stops being the pair's private room; a
// one-member room that grows to two becomes it, unless the pair already has one (ErrAlreadyExists).
func (s *RoomStore) AddParticipant(id, userID string, at time.Time) (added bool, err error) {
	if strings.TrimSpace(userID) == "" {
		return false, fmt.Errorf("rooms.AddParticipant: blank user id: %w", storage.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[id]
	if !ok {
		return false, fmt.Errorf("rooms.AddParticipant: room %s: %w", id, storage.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.room.HasParticipant(userID) {
		return false, nil
	}
	next := append(slices.Clone(e.room.Participants), userID)
	if err := s.checkPairLocked(&e.room, next); err != nil {
		return false, fmt.Errorf("rooms.AddParticipant: %w", err)
	}
	s.setParticipantsLocked(&e.room, next)
	e.room.UpdatedAt = at
	s.indexUserLocked(userID, id)
	return true, nil
}

// RemoveParticipant drops userID from the room. Missing room or non-member is a no-op.
// A group room that shrinks to two members becomes the pair's private room; if the pair already
// has one the removal fails with ErrAlreadyExists and nothing changes.
func (s *RoomStore) RemoveParticipant(id, userID string, at time.Time) (removed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[id]
	if !ok {
		return false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	i := slices.Index(e.room.Participants, userID)
	if i < 0 {
		return false, nil
	}
	next := slices.Delete(slices.Clone(e.room.Participants), i, i+1)
	if err := s.checkPairLocked(&e.room, next); err != nil {
		return false, fmt.Errorf("rooms.RemoveParticipant: %w", err)
	}
	s.setParticipantsLocked(&e.room, next)
	e.room.UpdatedAt = at
	s.unindexUserLocked(userID, id)
	return true, nil
}

// SetPreview replaces the room's last message preview. When bump is set, UpdatedAt moves to at.
func (s *RoomStore) SetPreview(id string, preview *model.MessagePreview, at time.Time, bump bool) bool {
	e, ok := s.entry(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if preview != nil {
		p := *preview
		preview = &p
	}
	e.room.LastMessage = preview
	if bump {
		e.room.UpdatedAt = at
	}
	return true
}
