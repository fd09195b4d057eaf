package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/eventchat/internal/model"
)

func TestObserveMessages_InitialAndUpdates(t *testing.T) {
	e := New()
	r := newRoom(t, e, "u1", "u2")
	m1 := send(t, e, r.ID, "u1", "before subscribe")

	sub := e.ObserveMessages(ctx, r.ID)
	defer sub.Close()

	initial := recv(t, sub.Updates())
	assert.Equal(t, []string{m1.ID}, ids(initial))

	m2 := send(t, e, r.ID, "u2", "after subscribe")
	got := recvUntil(t, sub.Updates(), func(ms []model.ChatMessage) bool { return len(ms) == 2 })
	assert.Equal(t, []string{m2.ID, m1.ID}, ids(got))

	require.NoError(t, e.AddReaction(ctx, m1.ID, "u2", "👍"))
	got = recvUntil(t, sub.Updates(), func(ms []model.ChatMessage) bool { return len(ms[1].Reactions) == 1 })
	assert.Equal(t, []string{"u2"}, got[1].Reactions["👍"])

	require.NoError(t, e.DeleteMessage(ctx, m2.ID))
	got = recvUntil(t, sub.Updates(), func(ms []model.ChatMessage) bool { return len(ms) == 1 })
	assert.Equal(t, m1.ID, got[0].ID)
}

func TestObserveMessages_MissingRoomCompletes(t *testing.T) {
	e := New()
	sub := e.ObserveMessages(ctx, "missing")
	requireClosed(t, sub.Updates())
	assert.Equal(t, 0, e.Hub().Count())
}

func TestObserveMessages_SnapshotsFollowMutationOrder(t *testing.T) {
	e := New()
	r := newRoom(t, e, "u1", "u2")
	sub := e.ObserveMessages(ctx, r.ID)
	defer sub.Close()
	recv(t, sub.Updates())

	const n = 200
	go func() {
		for i := 0; i < n; i++ {
			_, err := e.SendMessage(ctx, SendMessageRequest{RoomID: r.ID, SenderID: "u1", Content: fmt.Sprintf("m%d", i)})
			assert.NoError(t, err)
		}
	}()

	last := 0
	deadline := time.After(waitFor)
	for last < n {
		select {
		case ms := <-sub.Updates():
			assert.GreaterOrEqual(t, len(ms), last, "snapshot went backwards")
			last = len(ms)
			if len(ms) > 0 {
				// превью и список никогда не расходятся
				room, _ := e.GetRoom(ctx, r.ID)
				assert.False(t, room.LastMessage.SentAt.Before(ms[0].CreatedAt))
			}
		case <-deadline:
			t.Fatalf("latest snapshot never delivered, got %d of %d", last, n)
		}
	}
}

func TestObserveNewMessages_Delta(t *testing.T) {
	e := New()
	r := newRoom(t, e, "u1", "u2")
	old := send(t, e, r.ID, "u1", "old")

	sub := e.ObserveNewMessages(ctx, r.ID)
	defer sub.Close()

	select {
	case m := <-sub.Updates():
		t.Fatalf("delta stream must not replay existing message %s", m.ID)
	case <-time.After(50 * time.Millisecond):
	}

	m := send(t, e, r.ID, "u2", "fresh")
	got := recv(t, sub.Updates())
	assert.Equal(t, m.ID, got.ID)

	// правка и удаление не считаются новыми сообщениями
	_, err := e.EditMessage(ctx, old.ID, "old!")
	require.NoError(t, err)
	require.NoError(t, e.DeleteMessage(ctx, m.ID))
	select {
	case extra := <-sub.Updates():
		t.Fatalf("unexpected delta %s", extra.ID)
	case <-time.After(50 * time.Millisecond):
	}

	latest := send(t, e, r.ID, "u1", "latest")
	assert.Equal(t, latest.ID, recv(t, sub.Updates()).ID)
}

func TestObserveNewMessages_CoalescesToLatest(t *testing.T) {
	e := New()
	r := newRoom(t, e, "u1", "u2")
	sub := e.ObserveNewMessages(ctx, r.ID)
	defer sub.Close()

	var last model.ChatMessage
	for i := 0; i < 50; i++ {
		last = send(t, e, r.ID, "u1", fmt.Sprintf("m%d", i))
	}
	got := recvUntil(t, sub.Updates(), func(m model.ChatMessage) bool { return m.ID == last.ID })
	assert.Equal(t, "m49", got.Content)
}

func TestObserveUnreadCount(t *testing.T) {
	e := New()
	r := newRoom(t, e, "u1", "u2")
	sub := e.ObserveUnreadCount(ctx, r.ID, "u2")
	defer sub.Close()
	assert.Equal(t, 0, recv(t, sub.Updates()))

	send(t, e, r.ID, "u1", "a")
	m := send(t, e, r.ID, "u1", "b")
	assert.Equal(t, 2, recvUntil(t, sub.Updates(), func(n int) bool { return n == 2 }))

	// свои сообщения не меняют счётчик
	send(t, e, r.ID, "u2", "mine")

	require.NoError(t, e.MarkAsRead(ctx, r.ID, "u2", m.ID))
	assert.Equal(t, 0, recv(t, sub.Updates()))
}

func TestObserveTotalUnreadCount(t *testing.T) {
	e := New()
	r1 := newRoom(t, e, "me", "a")
	sub := e.ObserveTotalUnreadCount(ctx, "me")
	defer sub.Close()
	assert.Equal(t, 0, recv(t, sub.Updates()))

	send(t, e, r1.ID, "a", "x")
	assert.Equal(t, 1, recv(t, sub.Updates()))

	r2 := newRoom(t, e, "b", "me")
	last := send(t, e, r2.ID, "b", "y")
	assert.Equal(t, 2, recvUntil(t, sub.Updates(), func(n int) bool { return n == 2 }))

	require.NoError(t, e.MarkAsRead(ctx, r2.ID, "me", last.ID))
	assert.Equal(t, 1, recv(t, sub.Updates()))

	require.NoError(t, e.DeleteRoom(ctx, r1.ID))
	assert.Equal(t, 0, recv(t, sub.Updates()))
}

func TestObserveChatRooms(t *testing.T) {
	e := New()
	sub := e.ObserveChatRooms(ctx, "u1")
	defer sub.Close()
	assert.Empty(t, recv(t, sub.Updates()))

	r1 := newRoom(t, e, "u1", "u2")
	r2 := newRoom(t, e, "u1", "u3")
	got := recvUntil(t, sub.Updates(), func(rs []model.ChatRoom) bool { return len(rs) == 2 })
	assert.Equal(t, r2.ID, got[0].ID)

	m := send(t, e, r1.ID, "u2", "bump")
	got = recvUntil(t, sub.Updates(), func(rs []model.ChatRoom) bool {
		return rs[0].ID == r1.ID && rs[0].LastMessage != nil
	})
	assert.Equal(t, m.ID, got[0].LastMessage.MessageID)

	require.NoError(t, e.RemoveParticipant(ctx, r2.ID, "u1"))
	got = recvUntil(t, sub.Updates(), func(rs []model.ChatRoom) bool { return len(rs) == 1 })
	assert.Equal(t, r1.ID, got[0].ID)
}

func TestObserveTypingUsers(t *testing.T) {
	e := New()
	r := newRoom(t, e, "u1", "u2")
	sub := e.ObserveTypingUsers(ctx, r.ID)
	assert.Empty(t, recv(t, sub.Updates()))

	require.NoError(t, e.SetTyping(ctx, r.ID, "u1", true))
	assert.Equal(t, []string{"u1"}, recv(t, sub.Updates()))
	require.NoError(t, e.SetTyping(ctx, r.ID, "u1", false))
	assert.Empty(t, recv(t, sub.Updates()))

	require.NoError(t, e.DeleteRoom(ctx, r.ID))
	requireClosed(t, sub.Updates())
}

func TestObserve_CloseReleasesRegistrations(t *testing.T) {
	e := New()
	r := newRoom(t, e, "u1", "u2")

	subCtx, cancel := context.WithCancel(ctx)
	a := e.ObserveMessages(subCtx, r.ID)
	b := e.ObserveUnreadCount(subCtx, r.ID, "u1")
	c := e.ObserveTotalUnreadCount(ctx, "u1")
	d := e.ObserveChatRooms(ctx, "u1")
	assert.Equal(t, 4, e.Hub().Count())

	cancel()
	<-a.Done()
	<-b.Done()
	c.Close()
	d.Close()
	assert.Equal(t, 0, e.Hub().Count())

	// после отписки ничего не приходит и ничего не блокируется
	send(t, e, r.ID, "u2", "after")
	requireClosed(t, a.Updates())
	requireClosed(t, c.Updates())
}

func TestObserve_ConcurrentWritersAndObservers(t *testing.T) {
	e := New()
	r := newRoom(t, e, "u1", "u2")
	other := newRoom(t, e, "u3", "u4")

	msgs := e.ObserveMessages(ctx, r.ID)
	defer msgs.Close()
	total := e.ObserveTotalUnreadCount(ctx, "u2")
	defer total.Close()
	recv(t, msgs.Updates())
	recv(t, total.Updates())

	const n = 100
	var g errgroup.Group
	for _, w := range []struct{ room, user string }{{r.ID, "u1"}, {r.ID, "u1"}, {other.ID, "u3"}} {
		g.Go(func() error {
			for i := 0; i < n; i++ {
				if _, err := e.SendMessage(ctx, SendMessageRequest{RoomID: w.room, SenderID: w.user, Content: "x"}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		for i := 0; i < n; i++ {
			if err := e.SetTyping(ctx, other.ID, "u4", i%2 == 0); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	recvUntil(t, msgs.Updates(), func(ms []model.ChatMessage) bool { return len(ms) == 2*n })
	recvUntil(t, total.Updates(), func(v int) bool { return v == 2*n })
}
