package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventchat/internal/model"
	"github.com/eventchat/internal/storage"
)

func msg(id, roomID, sender string, at time.Time) model.ChatMessage {
	return model.ChatMessage{ID: id, ChatRoomID: roomID, SenderID: sender, Content: id, Type: model.MessageTypeText, CreatedAt: at}
}

func seeded(t *testing.T, n int) *MessageStore {
	t.Helper()
	s := NewMessageStore()
	s.CreateRoom("r1")
	for i := 0; i < n; i++ {
		require.NoError(t, s.Append(msg(fmt.Sprintf("m%d", i), "r1", "a", t0.Add(time.Duration(i)*time.Second))))
	}
	return s
}

func listIDs(msgs []model.ChatMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestMessageStore_Append(t *testing.T) {
	s := seeded(t, 2)

	require.ErrorIs(t, s.Append(msg("x", "missing", "a", t0)), storage.ErrNotFound)
	require.ErrorIs(t, s.Append(msg("m0", "r1", "a", t0.Add(time.Hour))), storage.ErrAlreadyExists)
	require.ErrorIs(t, s.Append(msg("old", "r1", "a", t0.Add(-time.Hour))), storage.ErrInvalidArgument)

	s.CreateRoom("r2")
	require.ErrorIs(t, s.Append(msg("m1", "r2", "a", t0.Add(time.Hour))), storage.ErrAlreadyExists, "ids are global")
	all, ok := s.List("r1", 0, nil)
	require.True(t, ok)
	assert.Len(t, all, 2)
}

func TestMessageStore_List(t *testing.T) {
	s := seeded(t, 5)

	all, ok := s.List("r1", 0, nil)
	require.True(t, ok)
	assert.Equal(t, []string{"m4", "m3", "m2", "m1", "m0"}, listIDs(all))

	limited, _ := s.List("r1", 2, nil)
	assert.Equal(t, []string{"m4", "m3"}, listIDs(limited))

	before := t0.Add(3 * time.Second)
	older, _ := s.List("r1", 10, &before)
	assert.Equal(t, []string{"m2", "m1", "m0"}, listIDs(older))

	_, ok = s.List("missing", 0, nil)
	assert.False(t, ok)

	head, ok := s.Head("r1")
	require.True(t, ok)
	assert.Equal(t, "m4", head.ID)
}

func TestMessageStore_EditDelete(t *testing.T) {
	s := seeded(t, 3)
	at := t0.Add(time.Hour)

	m, err := s.Edit("m1", "changed", at)
	require.NoError(t, err)
	assert.Equal(t, "changed", m.Content)
	assert.Equal(t, at, *m.UpdatedAt)
	_, err = s.Edit("missing", "x", at)
	require.ErrorIs(t, err, storage.ErrNotFound)

	removed, older, ok := s.Delete("m1")
	require.True(t, ok)
	assert.Equal(t, "changed", removed.Content)
	assert.Equal(t, "m0", older)
	_, _, ok = s.Delete("m1")
	assert.False(t, ok)
	_, ok = s.RoomOf("m1")
	assert.False(t, ok)

	_, older, ok = s.Delete("m0")
	require.True(t, ok)
	assert.Empty(t, older)

	assert.Equal(t, 1, s.DropRoom("r1"))
	_, ok = s.Get("m2")
	assert.False(t, ok)
}

func TestMessageStore_ReactionsAndReceipts(t *testing.T) {
	s := seeded(t, 1)

	room, changed := s.AddReaction("m0", "b", "❤️")
	assert.Equal(t, "r1", room)
	assert.True(t, changed)
	_, changed = s.AddReaction("m0", "b", "❤️")
	assert.False(t, changed)

	_, changed = s.RemoveReaction("m0", "b", "❤️")
	assert.True(t, changed)
	assert.Empty(t, s.Reactions("m0"))
	_, changed = s.RemoveReaction("m0", "b", "❤️")
	assert.False(t, changed)

	_, changed = s.AddReaction("missing", "b", "❤️")
	assert.False(t, changed)

	changed, err := s.AddReadBy("r1", "m0", "b")
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.AddReadBy("r1", "m0", "b")
	require.NoError(t, err)
	assert.False(t, changed)
	_, err = s.AddReadBy("r1", "missing", "b")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.AddReadBy("missing", "m0", "b")
	require.ErrorIs(t, err, storage.ErrNotFound)

	got, _ := s.Get("m0")
	assert.Equal(t, []string{"b"}, got.ReadBy)
}
