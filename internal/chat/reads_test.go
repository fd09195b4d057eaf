package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unread(t *testing.T, e *Engine, roomID, userID string) int {
	t.Helper()
	n, err := e.GetUnreadCount(ctx, roomID, userID)
	require.NoError(t, err)
	return n
}

func TestUnreadCount_CountsOthersMessages(t *testing.T) {
	e := New()
	r := newRoom(t, e, "u1", "u2")
	for _, sender := range []string{"u1", "u2", "u1", "u1", "u2"} {
		send(t, e, r.ID, sender, "x")
	}
	assert.Equal(t, 2, unread(t, e, r.ID, "u1"))
	assert.Equal(t, 3, unread(t, e, r.ID, "u2"))
	assert.Equal(t, 5, unread(t, e, r.ID, "outsider"))

	_, err := e.GetUnreadCount(ctx, "missing", "u1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMarkAsRead_Scenario(t *testing.T) {
	e := New()
	r := newRoom(t, e, "u1", "u2")
	m1 := send(t, e, r.ID, "u1", "one")
	m2 := send(t, e, r.ID, "u2", "two")
	m3 := send(t, e, r.ID, "u1", "three")

	assert.Equal(t, 2, unread(t, e, r.ID, "u2"))

	require.NoError(t, e.MarkAsRead(ctx, r.ID, "u2", m2.ID))
	assert.Equal(t, 1, unread(t, e, r.ID, "u2"), "only m3 is newer than m2")

	last, ok := e.GetLastReadMessageID(ctx, r.ID, "u2")
	require.True(t, ok)
	assert.Equal(t, m2.ID, last)

	got, _ := e.GetMessage(ctx, m2.ID)
	assert.Equal(t, []string{"u2"}, got.ReadBy)

	require.NoError(t, e.MarkAsRead(ctx, r.ID, "u2", m3.ID))
	require.NoError(t, e.MarkAsRead(ctx, r.ID, "u2", m3.ID))
	assert.Equal(t, 0, unread(t, e, r.ID, "u2"))
	got, _ = e.GetMessage(ctx, m3.ID)
	assert.Equal(t, []string{"u2"}, got.ReadBy, "read receipts are a set")

	// указатель ставится как есть, даже назад
	require.NoError(t, e.MarkAsRead(ctx, r.ID, "u2", m1.ID))
	assert.Equal(t, 1, unread(t, e, r.ID, "u2"))

	_, ok = e.GetLastReadMessageID(ctx, r.ID, "u1")
	assert.False(t, ok)
}

func TestMarkAsRead_StrictlyDecreases(t *testing.T) {
	e := New()
	r := newRoom(t, e, "a", "b")
	var msgs []string
	for i := 0; i < 6; i++ {
		msgs = append(msgs, send(t, e, r.ID, "a", "x").ID)
	}
	before := unread(t, e, r.ID, "b")
	require.Equal(t, 6, before)
	for i, id := range msgs {
		require.NoError(t, e.MarkAsRead(ctx, r.ID, "b", id))
		after := unread(t, e, r.ID, "b")
		assert.Less(t, after, before)
		assert.Equal(t, len(msgs)-1-i, after)
		before = after
	}
}

func TestMarkAsRead_Validation(t *testing.T) {
	e := New()
	r := newRoom(t, e, "u1", "u2")
	other := newRoom(t, e, "u1", "u3")
	m := send(t, e, r.ID, "u1", "x")
	foreign := send(t, e, other.ID, "u1", "y")

	require.ErrorIs(t, e.MarkAsRead(ctx, "missing", "u2", m.ID), ErrNotFound)
	require.ErrorIs(t, e.MarkAsRead(ctx, r.ID, "u2", "missing"), ErrNotFound)
	require.ErrorIs(t, e.MarkAsRead(ctx, r.ID, "u2", foreign.ID), ErrNotFound)
	require.ErrorIs(t, e.MarkAsRead(ctx, r.ID, "", m.ID), ErrInvalidArgument)

	_, ok := e.GetLastReadMessageID(ctx, r.ID, "u2")
	assert.False(t, ok, "failed calls must not move the pointer")
}

func TestDeleteMessage_RepointsReadPointer(t *testing.T) {
	e := New()
	r := newRoom(t, e, "u1", "u2")
	m1 := send(t, e, r.ID, "u1", "one")
	m2 := send(t, e, r.ID, "u1", "two")
	send(t, e, r.ID, "u1", "three")

	require.NoError(t, e.MarkAsRead(ctx, r.ID, "u2", m2.ID))
	require.Equal(t, 1, unread(t, e, r.ID, "u2"))

	require.NoError(t, e.DeleteMessage(ctx, m2.ID))
	last, ok := e.GetLastReadMessageID(ctx, r.ID, "u2")
	require.True(t, ok)
	assert.Equal(t, m1.ID, last)
	assert.Equal(t, 1, unread(t, e, r.ID, "u2"), "unread count stays exact after the pointer moves")

	require.NoError(t, e.DeleteMessage(ctx, m1.ID))
	_, ok = e.GetLastReadMessageID(ctx, r.ID, "u2")
	assert.False(t, ok, "no older message left: pointer is cleared")
	assert.Equal(t, 1, unread(t, e, r.ID, "u2"))
}

func TestTotalUnreadCount(t *testing.T) {
	e := New()
	r1 := newRoom(t, e, "me", "a")
	r2 := newRoom(t, e, "me", "b")
	newRoom(t, e, "a", "b")

	send(t, e, r1.ID, "a", "1")
	send(t, e, r1.ID, "me", "2")
	last := send(t, e, r2.ID, "b", "3")
	send(t, e, r2.ID, "b", "4")

	assert.Equal(t, 3, e.GetTotalUnreadCount(ctx, "me"))
	require.NoError(t, e.MarkAsRead(ctx, r2.ID, "me", last.ID))
	assert.Equal(t, 2, e.GetTotalUnreadCount(ctx, "me"))
	assert.Equal(t, 0, e.GetTotalUnreadCount(ctx, "nobody"))
}

func TestSetTyping(t *testing.T) {
	e := New()
	r := newRoom(t, e, "u1", "u2")

	require.NoError(t, e.SetTyping(ctx, r.ID, "u1", true))
	require.NoError(t, e.SetTyping(ctx, r.ID, "u2", true))
	require.NoError(t, e.SetTyping(ctx, r.ID, "u1", true))
	assert.Equal(t, []string{"u1", "u2"}, e.GetTypingUsers(ctx, r.ID))

	require.NoError(t, e.SetTyping(ctx, r.ID, "u1", false))
	require.NoError(t, e.SetTyping(ctx, r.ID, "u1", false))
	assert.Equal(t, []string{"u2"}, e.GetTypingUsers(ctx, r.ID))

	require.ErrorIs(t, e.SetTyping(ctx, "missing", "u1", true), ErrNotFound)
	require.NoError(t, e.SetTyping(ctx, "missing", "u1", false))
	require.ErrorIs(t, e.SetTyping(ctx, r.ID, "", true), ErrInvalidArgument)
	assert.Empty(t, e.GetTypingUsers(ctx, "missing"))
}
