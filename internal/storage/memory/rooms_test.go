package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventchat/internal/model"
	"github.com/eventchat/internal/storage"
)

var t0 = time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

func room(id string, participants ...string) model.ChatRoom {
	return model.ChatRoom{ID: id, Participants: participants, CreatedAt: t0, UpdatedAt: t0}
}

func eventRoom(id, party string, participants ...string) model.ChatRoom {
	r := room(id, participants...)
	r.IsEventChat = true
	r.PartyEventID = party
	return r
}

func TestRoomStore_CreateValidation(t *testing.T) {
	tests := []struct {
		name string
		room model.ChatRoom
		want error
	}{
		{"empty id", room("", "a"), storage.ErrInvalidArgument},
		{"no participants", room("r1"), storage.ErrInvalidArgument},
		{"blank participant", room("r1", "a", ""), storage.ErrInvalidArgument},
		{"duplicate participant", room("r1", "a", "a"), storage.ErrInvalidArgument},
		{"event without party", eventRoom("r1", "", "a"), storage.ErrInvalidArgument},
		{"ok", room("r1", "a", "b"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRoomStore()
			_, err := s.Create(tt.room)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRoomStore_Uniqueness(t *testing.T) {
	s := NewRoomStore()
	_, err := s.Create(room("r1", "a", "b"))
	require.NoError(t, err)

	_, err = s.Create(room("r1", "c"))
	require.ErrorIs(t, err, storage.ErrAlreadyExists, "same id")
	_, err = s.Create(room("r2", "b", "a"))
	require.ErrorIs(t, err, storage.ErrAlreadyExists, "same unordered pair")

	// group rooms are not unique
	_, err = s.Create(room("r3", "a", "b", "c"))
	require.NoError(t, err)
	_, err = s.Create(room("r4", "a", "b", "c"))
	require.NoError(t, err)

	_, err = s.Create(eventRoom("e1", "p1", "a"))
	require.NoError(t, err)
	_, err = s.Create(eventRoom("e2", "p1", "b"))
	require.ErrorIs(t, err, storage.ErrAlreadyExists)

	got, created, err := s.GetOrCreate(eventRoom("e3", "p1", "c"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "e1", got.ID)
}

func TestRoomStore_ReturnsCopies(t *testing.T) {
	s := NewRoomStore()
	r, err := s.Create(room("r1", "a", "b"))
	require.NoError(t, err)
	r.Participants[0] = "mallory"

	got, ok := s.Get("r1")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got.Participants)

	p, _ := s.Participants("r1")
	p[1] = "eve"
	got, _ = s.Get("r1")
	assert.Equal(t, []string{"a", "b"}, got.Participants)
}

func TestRoomStore_MembershipAndPairIndex(t *testing.T) {
	s := NewRoomStore()
	_, err := s.Create(room("r1", "a", "b"))
	require.NoError(t, err)

	added, err := s.AddParticipant("r1", "c", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, added)
	_, ok := s.PrivateRoom("a", "b")
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{"r1"}, s.UserRoomIDs("c"))

	removed, err := s.RemoveParticipant("r1", "c", t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.RemoveParticipant("r1", "c", t0.Add(3*time.Minute))
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Empty(t, s.UserRoomIDs("c"))

	// снова пара: r1 опять личный чат, второй создать нельзя
	pr, ok := s.PrivateRoom("b", "a")
	require.True(t, ok)
	assert.Equal(t, "r1", pr.ID)
	_, err = s.Create(room("r2", "b", "a"))
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
	got, created, err := s.GetOrCreate(room("r3", "a", "b"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "r1", got.ID)

	_, err = s.AddParticipant("missing", "x", t0)
	require.ErrorIs(t, err, storage.ErrNotFound)
	removed, err = s.RemoveParticipant("missing", "x", t0)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRoomStore_MembershipReachingPair(t *testing.T) {
	tests := []struct {
		name    string
		initial model.ChatRoom
		change  func(s *RoomStore) error
		want    []string
	}{
		{
			name:    "shrink",
			initial: room("g", "x", "y", "z"),
			change: func(s *RoomStore) error {
				_, err := s.RemoveParticipant("g", "z", t0.Add(time.Minute))
				return err
			},
			want: []string{"x", "y"},
		},
		{
			name:    "grow",
			initial: room("g", "x"),
			change: func(s *RoomStore) error {
				_, err := s.AddParticipant("g", "y", t0.Add(time.Minute))
				return err
			},
			want: []string{"x", "y"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/indexed", func(t *testing.T) {
			s := NewRoomStore()
			_, err := s.Create(tt.initial)
			require.NoError(t, err)
			require.NoError(t, tt.change(s))

			pr, ok := s.PrivateRoom("y", "x")
			require.True(t, ok)
			assert.Equal(t, "g", pr.ID)
			assert.Equal(t, tt.want, pr.Participants)
			_, err = s.Create(room("p", "x", "y"))
			require.ErrorIs(t, err, storage.ErrAlreadyExists)
		})
		t.Run(tt.name+"/conflict", func(t *testing.T) {
			s := NewRoomStore()
			_, err := s.Create(room("p", "x", "y"))
			require.NoError(t, err)
			_, err = s.Create(tt.initial)
			require.NoError(t, err)

			require.ErrorIs(t, tt.change(s), storage.ErrAlreadyExists)
			got, ok := s.Get("g")
			require.True(t, ok)
			assert.Equal(t, tt.initial.Participants, got.Participants)
			assert.Equal(t, t0, got.UpdatedAt)
			pr, ok := s.PrivateRoom("x", "y")
			require.True(t, ok)
			assert.Equal(t, "p", pr.ID)
		})
	}

	t.Run("event chat is never a pair", func(t *testing.T) {
		s := NewRoomStore()
		_, err := s.Create(room("p", "x", "y"))
		require.NoError(t, err)
		_, err = s.Create(eventRoom("e", "party", "x", "y", "z"))
		require.NoError(t, err)
		removed, err := s.RemoveParticipant("e", "z", t0.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, removed)
		pr, _ := s.PrivateRoom("x", "y")
		assert.Equal(t, "p", pr.ID)
	})
}

func TestRoomStore_PreviewAndActivityOrder(t *testing.T) {
	s := NewRoomStore()
	for i, id := range []string{"r1", "r2", "r3"} {
		r := room(id, "me", id+"-peer")
		r.CreatedAt = t0.Add(time.Duration(i) * time.Minute)
		_, err := s.Create(r)
		require.NoError(t, err)
	}
	require.True(t, s.SetPreview("r1", &model.MessagePreview{MessageID: "m", SentAt: t0.Add(time.Hour)}, t0.Add(time.Hour), true))

	var rooms []model.ChatRoom
	for _, id := range s.UserRoomIDs("me") {
		r, ok := s.Get(id)
		require.True(t, ok)
		rooms = append(rooms, r)
	}
	SortByActivity(rooms)
	require.Len(t, rooms, 3)
	assert.Equal(t, []string{"r1", "r3", "r2"}, []string{rooms[0].ID, rooms[1].ID, rooms[2].ID})
	assert.Equal(t, t0.Add(time.Hour), rooms[0].UpdatedAt)

	require.True(t, s.SetPreview("r1", nil, time.Time{}, false))
	got, _ := s.Get("r1")
	assert.Nil(t, got.LastMessage)
	assert.Equal(t, t0.Add(time.Hour), got.UpdatedAt, "no bump keeps UpdatedAt")
	assert.False(t, s.SetPreview("missing", nil, t0, true))
}

func TestRoomStore_Delete(t *testing.T) {
	s := NewRoomStore()
	_, err := s.Create(eventRoom("e1", "p1", "a", "b"))
	require.NoError(t, err)

	r, ok := s.Delete("e1")
	require.True(t, ok)
	assert.Equal(t, "e1", r.ID)
	_, ok = s.Delete("e1")
	assert.False(t, ok)

	_, ok = s.ByParty("p1")
	assert.False(t, ok)
	assert.Empty(t, s.UserRoomIDs("a"))
	assert.False(t, s.Exists("e1"))

	_, err = s.Create(eventRoom("e2", "p1", "a"))
	require.NoError(t, err)
}
