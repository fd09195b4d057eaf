package notify

import "context"

// Status tells a subscription what to do with a freshly computed value.
type Status int

const (
	// Emit delivers the value.
	Emit Status = iota
	// Skip drops the value and waits for the next change.
	Skip
	// Done ends the stream; the source is gone (e.g. the room was deleted).
	Done
)

// Source computes the current value of a view. It is called once at subscribe time and then
// after every coalesced wake-up, always from a single goroutine per subscription.
type Source[T any] func() (T, Status)

// Subscription is a live stream of snapshots for one view key.
// The channel returned by Updates is closed when the stream completes: on Close, on context
// cancellation, or when the underlying room is deleted. It never carries errors.
type Subscription[T any] struct {
	key    Key
	out    chan T
	cancel context.CancelFunc
	exited chan struct{}
}

// Subscribe registers key on the hub and returns a stream whose first element, if src emits
// one, is the snapshot computed during this call. Registration happens before that snapshot is
// taken, so a change racing the subscription is never missed.
func Subscribe[T any](ctx context.Context, h *Hub, key Key, src Source[T]) *Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		key:    key,
		out:    make(chan T, 1),
		cancel: cancel,
		exited: make(chan struct{}),
	}
	e := h.register(key)
	v, st := src()
	switch st {
	case Done:
		cancel()
		h.unregister(e)
		close(s.out)
		close(s.exited)
		return s
	case Emit:
		s.out <- v
	}
	go s.run(ctx, h, e, src)
	return s
}

func (s *Subscription[T]) run(ctx context.Context, h *Hub, e *entry, src Source[T]) {
	defer close(s.exited)
	defer close(s.out)
	defer h.unregister(e)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-e.wake:
		}
		v, st := src()
		switch st {
		case Done:
			return
		case Skip:
			continue
		}
		select {
		case s.out <- v:
		case <-ctx.Done():
			return
		case <-e.done:
			return
		}
	}
}

func (s *Subscription[T]) Key() Key { return s.key }

// Updates returns the snapshot stream. A value already buffered before Close may still be
// received after it; no further values are produced.
func (s *Subscription[T]) Updates() <-chan T { return s.out }

// Done is closed once the stream has completed and its registration is released.
func (s *Subscription[T]) Done() <-chan struct{} { return s.exited }

// Close cancels the subscription and waits until its registration is released.
func (s *Subscription[T]) Close() {
	s.cancel()
	<-s.exited
}
