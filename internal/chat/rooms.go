package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/eventchat/internal/event"
	"github.com/eventchat/internal/idgen"
	"github.com/eventchat/internal/logger"
	"github.com/eventchat/internal/model"
	"github.com/eventchat/internal/notify"
	"github.com/eventchat/internal/storage/memory"
)

type CreateRoomRequest struct {
	PartyEventID string   `json:"party_event_id,omitempty"`
	Name         string   `json:"name,omitempty"`
	Participants []string `json:"participants"`
	IsEventChat  bool     `json:"is_event_chat"`
}

// dedupe keeps the first occurrence of every id, preserving order.
func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (e *Engine) newRoom(req CreateRoomRequest) model.ChatRoom {
	now := e.clock.Now()
	return model.ChatRoom{
		ID:           idgen.NewID(),
		PartyEventID: strings.TrimSpace(req.PartyEventID),
		Name:         req.Name,
		IsEventChat:  req.IsEventChat,
		Participants: dedupe(req.Participants),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// prepare registers the lock and empty message list of a room that is about to be inserted.
func (e *Engine) prepare(id string) *sync.RWMutex {
	l := &sync.RWMutex{}
	e.locks.Store(id, l)
	e.msgs.CreateRoom(id)
	return l
}

func (e *Engine) discard(id string) {
	e.msgs.DropRoom(id)
	e.locks.Delete(id)
}

func (e *Engine) roomCreated(ctx context.Context, r model.ChatRoom) {
	logger.Debugf("chat: room %s created (event=%v, participants=%d)", r.ID, r.IsEventChat, len(r.Participants))
	e.notifyUsers(r.Participants, notify.KindRoomList, notify.KindTotalUnread)
	e.publish(ctx, event.Event{Type: event.ChatCreated, RoomID: r.ID, At: r.CreatedAt})
}

// CreateRoom creates a room with a fresh id. It fails with ErrInvalidArgument for an event chat
// without a party or an empty participant list, and with ErrAlreadyExists when the party already
// has an event chat or the two users already share a private room.
func (e *Engine) CreateRoom(ctx context.Context, req CreateRoomRequest) (model.ChatRoom, error) {
	r := e.newRoom(req)
	l := e.prepare(r.ID)
	l.Lock()
	created, err := e.rooms.Create(r)
	l.Unlock()
	if err != nil {
		e.discard(r.ID)
		return model.ChatRoom{}, fmt.Errorf("chat.CreateRoom: %w", err)
	}
	e.roomCreated(ctx, created)
	return created, nil
}

func (e *Engine) getOrCreate(ctx context.Context, op string, r model.ChatRoom) (model.ChatRoom, bool, error) {
	l := e.prepare(r.ID)
	l.Lock()
	room, created, err := e.rooms.GetOrCreate(r)
	l.Unlock()
	if err != nil || !created {
		e.discard(r.ID)
	}
	if err != nil {
		return model.ChatRoom{}, false, fmt.Errorf("%s: %w", op, err)
	}
	if created {
		e.roomCreated(ctx, room)
	}
	return room, created, nil
}

// GetOrCreatePrivateRoom returns the 1:1 room of the pair, creating it if needed.
func (e *Engine) GetOrCreatePrivateRoom(ctx context.Context, userA, userB string) (model.ChatRoom, bool, error) {
	if strings.TrimSpace(userA) == "" || strings.TrimSpace(userB) == "" || userA == userB {
		return model.ChatRoom{}, false, fmt.Errorf("chat.GetOrCreatePrivateRoom: need two distinct users: %w", ErrInvalidArgument)
	}
	r := e.newRoom(CreateRoomRequest{Participants: []string{userA, userB}})
	return e.getOrCreate(ctx, "chat.GetOrCreatePrivateRoom", r)
}

// GetOrCreateEventRoom returns the event chat of a party, creating it with the given name and
// participants if the party has none.
func (e *Engine) GetOrCreateEventRoom(ctx context.Context, partyID, name string, participants []string) (model.ChatRoom, bool, error) {
	r := e.newRoom(CreateRoomRequest{PartyEventID: partyID, Name: name, Participants: participants, IsEventChat: true})
	return e.getOrCreate(ctx, "chat.GetOrCreateEventRoom", r)
}

// GetRoom returns the room or ok=false; absence is not an error.
func (e *Engine) GetRoom(_ context.Context, id string) (model.ChatRoom, bool) {
	return e.rooms.Get(id)
}

func (e *Engine) GetRoomForParty(_ context.Context, partyID string) (model.ChatRoom, bool) {
	return e.rooms.ByParty(partyID)
}

// GetPrivateRoom looks up the pair's room regardless of argument order; it never creates one.
func (e *Engine) GetPrivateRoom(_ context.Context, userA, userB string) (model.ChatRoom, bool) {
	return e.rooms.PrivateRoom(userA, userB)
}

// GetUserRooms lists the user's rooms, most recently active first.
func (e *Engine) GetUserRooms(_ context.Context, userID string) []model.ChatRoom {
	return e.userRooms(userID)
}

func (e *Engine) userRooms(userID string) []model.ChatRoom {
	ids := e.rooms.UserRoomIDs(userID)
	rooms := make([]model.ChatRoom, 0, len(ids))
	for _, id := range ids {
		unlock, ok := e.rlockRoom(id)
		if !ok {
			continue
		}
		r, ok := e.rooms.Get(id)
		unlock()
		if ok && r.HasParticipant(userID) {
			rooms = append(rooms, r)
		}
	}
	memory.SortByActivity(rooms)
	return rooms
}

// DeleteRoom removes the room with its messages, read pointers and typing entries, and completes
// every live subscription scoped to it. Deleting a missing room is a no-op.
func (e *Engine) DeleteRoom(ctx context.Context, id string) error {
	unlock, ok := e.lockRoom(id)
	if !ok {
		return nil
	}
	room, deleted := e.rooms.Delete(id)
	removed := e.msgs.DropRoom(id)
	e.reads.DropRoom(id)
	e.typing.DropRoom(id)
	e.locks.Delete(id)
	unlock()
	if !deleted {
		return nil
	}
	logger.Debugf("chat: room %s deleted (%d messages)", id, removed)
	e.hub.CloseRoom(id)
	e.notifyUsers(room.Participants, notify.KindRoomList, notify.KindTotalUnread)
	e.publish(ctx, event.Event{Type: event.ChatDeleted, RoomID: id})
	return nil
}

// AddParticipant adds userID to the room; adding an existing member is a no-op.
func (e *Engine) AddParticipant(ctx context.Context, roomID, userID string) error {
	unlock, ok := e.lockRoom(roomID)
	if !ok {
		return fmt.Errorf("chat.AddParticipant: room %s: %w", roomID, ErrNotFound)
	}
	added, err := e.rooms.AddParticipant(roomID, userID, e.clock.Now())
	members, _ := e.rooms.Participants(roomID)
	unlock()
	if err != nil {
		return fmt.Errorf("chat.AddParticipant: %w", err)
	}
	if !added {
		return nil
	}
	e.notifyUsers(members, notify.KindRoomList)
	e.hub.Notify(notify.TotalUnreadKey(userID), notify.UnreadKey(roomID, userID))
	e.publish(ctx, event.Event{Type: event.MemberAdded, RoomID: roomID, UserID: userID})
	return nil
}

// RemoveParticipant drops userID from the room together with their typing entry and read pointer.
// Their messages stay. Missing room or non-member is a no-op. Shrinking a group to a pair that
// already has a private room fails with ErrAlreadyExists.
func (e *Engine) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	unlock, ok := e.lockRoom(roomID)
	if !ok {
		return nil
	}
	removed, err := e.rooms.RemoveParticipant(roomID, userID, e.clock.Now())
	if err != nil {
		unlock()
		return fmt.Errorf("chat.RemoveParticipant: %w", err)
	}
	var wasTyping bool
	if removed {
		wasTyping = e.typing.Set(roomID, userID, false, e.clock.Now())
		e.reads.Forget(roomID, userID)
	}
	members, _ := e.rooms.Participants(roomID)
	unlock()
	if !removed {
		return nil
	}
	if wasTyping {
		e.hub.NotifyRoom(roomID, notify.KindTyping)
	}
	e.notifyUsers(append(members, userID), notify.KindRoomList)
	e.hub.Notify(notify.TotalUnreadKey(userID), notify.UnreadKey(roomID, userID))
	e.publish(ctx, event.Event{Type: event.MemberRemoved, RoomID: roomID, UserID: userID})
	return nil
}

// GetParticipants returns the members in insertion order.
func (e *Engine) GetParticipants(_ context.Context, roomID string) ([]string, error) {
	p, ok := e.rooms.Participants(roomID)
	if !ok {
		return nil, fmt.Errorf("chat.GetParticipants: room %s: %w", roomID, ErrNotFound)
	}
	return p, nil
}
