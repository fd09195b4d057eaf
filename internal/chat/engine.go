// Package chat is the in-memory chat state engine: rooms, ordered messages, reactions, read
// pointers and typing indicators, with live observation of every derived view.
//
// Every operation on a room runs under that room's own lock, so a send and its preview update are
// applied as one unit and operations on different rooms never wait for each other. Observers are
// woken after the lock is released and recompute their view from current state.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/eventchat/internal/event"
	"github.com/eventchat/internal/idgen"
	"github.com/eventchat/internal/logger"
	"github.com/eventchat/internal/notify"
	"github.com/eventchat/internal/storage"
	"github.com/eventchat/internal/storage/memory"
)

var (
	ErrNotFound        = storage.ErrNotFound
	ErrInvalidArgument = storage.ErrInvalidArgument
	ErrAlreadyExists   = storage.ErrAlreadyExists
)

// Directory resolves display names for message previews.
type Directory interface {
	DisplayName(userID string) string
}

// DirectoryFunc adapts a function to Directory.
type DirectoryFunc func(userID string) string

func (f DirectoryFunc) DisplayName(userID string) string { return f(userID) }

type Engine struct {
	rooms  *memory.RoomStore
	msgs   *memory.MessageStore
	reads  *memory.ReadTracker
	typing *memory.TypingTracker
	hub    *notify.Hub

	clock *idgen.Clock
	dir   Directory
	sink  event.Sink

	typingTTL  time.Duration
	sweepEvery time.Duration

	// locks: room id -> *sync.RWMutex. An entry exists exactly while the room exists.
	locks sync.Map
}

type Option func(*Engine)

func WithDirectory(d Directory) Option { return func(e *Engine) { e.dir = d } }

func WithSink(s event.Sink) Option { return func(e *Engine) { e.sink = s } }

func WithClock(c *idgen.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithTypingTTL makes Run expire typing entries not refreshed within ttl, checking every interval.
// ttl <= 0 leaves clearing stale entries to callers.
func WithTypingTTL(ttl, interval time.Duration) Option {
	return func(e *Engine) {
		e.typingTTL = ttl
		e.sweepEvery = interval
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		rooms:  memory.NewRoomStore(),
		msgs:   memory.NewMessageStore(),
		reads:  memory.NewReadTracker(),
		typing: memory.NewTypingTracker(),
		hub:    notify.NewHub(),
		clock:  idgen.NewClock(),
		sink:   event.Nop{},
	}
	for _, o := range opts {
		o(e)
	}
	if e.dir == nil {
		e.dir = DirectoryFunc(func(id string) string { return id })
	}
	if e.typingTTL > 0 && e.sweepEvery <= 0 {
		e.sweepEvery = e.typingTTL / 2
	}
	return e
}

// Run blocks until ctx is done, expiring stale typing entries when a typing TTL is configured.
func (e *Engine) Run(ctx context.Context) error {
	if e.typingTTL <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(e.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			e.expireTyping()
		}
	}
}

func (e *Engine) expireTyping() {
	cutoff := e.clock.Now().Add(-e.typingTTL)
	for _, roomID := range e.typing.Expire(cutoff) {
		logger.Debugf("chat: typing expired in room %s", roomID)
		e.hub.NotifyRoom(roomID, notify.KindTyping)
	}
}

// Hub exposes the subscription registry (diagnostics).
func (e *Engine) Hub() *notify.Hub { return e.hub }

func (e *Engine) roomLock(id string) (*sync.RWMutex, bool) {
	v, ok := e.locks.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*sync.RWMutex), true
}

// lockRoom takes the room's write lock. ok is false if the room does not exist, including when it
// was deleted while we waited for the lock.
func (e *Engine) lockRoom(id string) (unlock func(), ok bool) {
	l, ok := e.roomLock(id)
	if !ok {
		return nil, false
	}
	l.Lock()
	if !e.rooms.Exists(id) {
		l.Unlock()
		return nil, false
	}
	return l.Unlock, true
}

func (e *Engine) rlockRoom(id string) (unlock func(), ok bool) {
	l, ok := e.roomLock(id)
	if !ok {
		return nil, false
	}
	l.RLock()
	if !e.rooms.Exists(id) {
		l.RUnlock()
		return nil, false
	}
	return l.RUnlock, true
}

func (e *Engine) publish(ctx context.Context, ev event.Event) {
	if ev.At.IsZero() {
		ev.At = e.clock.Now()
	}
	e.sink.Publish(ctx, ev)
}

func (e *Engine) notifyUsers(userIDs []string, kinds ...notify.Kind) {
	if len(userIDs) == 0 {
		return
	}
	e.hub.NotifyUsers(userIDs, kinds...)
}
