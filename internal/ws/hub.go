package ws

import (
	"context"
	"sync"
	"time"

	"github.com/eventchat/internal/chat"
	"github.com/eventchat/internal/logger"
	"github.com/eventchat/internal/notify"
)

// Hub tracks connected clients and turns subscribe frames into engine observe streams.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]struct{}
	total      int
	maxConns   int
	engine     *chat.Engine
	register   chan *Client
	unregister chan *Client
	stopping   chan struct{}
	done       chan struct{}
}

func NewHub(engine *chat.Engine, maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		engine:     engine,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		stopping:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Register hands the client to Run. After shutdown has begun the client is closed instead.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.stopping:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopping:
	}
}

// Done is closed once Run has returned and all clients were shut down.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

func (h *Hub) shutdown() {
	close(h.stopping)
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	// Clients queued for registration never made it into the map.
	for {
		select {
		case c := <-h.register:
			allClients = append(allClients, c)
			continue
		default:
		}
		break
	}

	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.total++
	h.mu.Unlock()
	logger.Debugf("ws client connected user=%s", c.userID)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	if len(clients) == 0 {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()
	logger.Debugf("ws client disconnected user=%s", c.userID)
}

// HandleFrame dispatches an incoming frame. ctx is the client's lifetime context.
func (h *Hub) HandleFrame(ctx context.Context, c *Client, f IncomingFrame) {
	switch f.Type {
	case FrameSubscribe:
		h.subscribe(ctx, c, f)
	case FrameUnsubscribe:
		c.untrack(subKey{view: f.View, roomID: f.RoomID}, nil)
	default:
		c.deliver(OutgoingFrame{Type: FrameError, Error: "unknown frame type"})
	}
}

func roomScoped(v View) bool {
	switch v {
	case notify.KindMessages, notify.KindNewMessages, notify.KindTyping, notify.KindUnread:
		return true
	}
	return false
}

func (h *Hub) subscribe(ctx context.Context, c *Client, f IncomingFrame) {
	defer logger.DeferLogDuration("ws.subscribe", time.Now())()
	fail := func(msg string) {
		c.deliver(OutgoingFrame{Type: FrameError, View: f.View, RoomID: f.RoomID, Error: msg})
	}

	k := subKey{view: f.View}
	if roomScoped(f.View) {
		if f.RoomID == "" {
			fail("room_id required")
			return
		}
		room, ok := h.engine.GetRoom(ctx, f.RoomID)
		if !ok {
			fail("room not found")
			return
		}
		if !room.HasParticipant(c.userID) {
			fail("not a member")
			return
		}
		k.roomID = f.RoomID
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &stream{cancel: cancel}
	if !c.track(k, s) {
		cancel()
		fail("already subscribed")
		return
	}

	c.streams.Add(1)
	switch f.View {
	case notify.KindMessages:
		go forward(subCtx, c, k, s, h.engine.ObserveMessages(subCtx, k.roomID))
	case notify.KindNewMessages:
		go forward(subCtx, c, k, s, h.engine.ObserveNewMessages(subCtx, k.roomID))
	case notify.KindTyping:
		go forward(subCtx, c, k, s, h.engine.ObserveTypingUsers(subCtx, k.roomID))
	case notify.KindUnread:
		go forward(subCtx, c, k, s, h.engine.ObserveUnreadCount(subCtx, k.roomID, c.userID))
	case notify.KindRoomList:
		go forward(subCtx, c, k, s, h.engine.ObserveChatRooms(subCtx, c.userID))
	case notify.KindTotalUnread:
		go forward(subCtx, c, k, s, h.engine.ObserveTotalUnreadCount(subCtx, c.userID))
	default:
		c.streams.Done()
		c.untrack(k, s)
		fail("unknown view")
	}
}

// forward pumps snapshots of one subscription to the client until the stream ends.
// A stream that ends on its own (room deleted) is reported with a completed frame;
// one ended by unsubscribe or disconnect is not.
func forward[T any](ctx context.Context, c *Client, k subKey, s *stream, sub *notify.Subscription[T]) {
	defer c.streams.Done()
	for v := range sub.Updates() {
		c.deliver(OutgoingFrame{Type: FrameSnapshot, View: k.view, RoomID: k.roomID, Payload: v})
	}
	if ctx.Err() == nil {
		c.deliver(OutgoingFrame{Type: FrameCompleted, View: k.view, RoomID: k.roomID})
	}
	c.untrack(k, s)
}
