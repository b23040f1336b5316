package room

import (
	"sync"
	"sync/atomic"

	"github.com/zhouzirui/z-chat/backend/internal/metrics"
)

// broadcaster fans commands out to subscribers. Each subscriber has a
// bounded buffer; when it is full the oldest envelope is discarded so the
// publisher never blocks on a slow reader.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	size   int
	closed bool
}

func newBroadcaster(size int) *broadcaster {
	if size < 1 {
		size = 1
	}
	return &broadcaster{
		subs: make(map[*Subscription]struct{}),
		size: size,
	}
}

// Subscription receives every envelope published after it was created.
type Subscription struct {
	ch      chan Command
	b       *broadcaster
	closed  bool // guarded by b.mu
	dropped atomic.Uint64
}

// C is closed once the room is gone or Close is called.
func (s *Subscription) C() <-chan Command {
	return s.ch
}

// Dropped counts envelopes discarded because this subscriber lagged.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	delete(s.b.subs, s)
	close(s.ch)
}

func (b *broadcaster) subscribe() *Subscription {
	s := &Subscription{
		ch: make(chan Command, b.size),
		b:  b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		// Late subscriber to a dead room sees the shutdown signal at once.
		s.ch <- Close()
		close(s.ch)
		s.closed = true
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

func (b *broadcaster) publish(cmd Command) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for s := range b.subs {
		s.deliver(cmd)
	}
}

// deliver must be called with b.mu held; only the publisher sends on ch, so
// after evicting one envelope the second send always has room.
func (s *Subscription) deliver(cmd Command) {
	select {
	case s.ch <- cmd:
		return
	default:
	}

	select {
	case <-s.ch:
		s.dropped.Add(1)
		metrics.BroadcastDropped.Inc()
	default:
	}

	select {
	case s.ch <- cmd:
	default:
	}
}

// close publishes a final Close envelope and closes every subscriber.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for s := range b.subs {
		s.deliver(Close())
		s.closed = true
		close(s.ch)
	}
	clear(b.subs)
	b.closed = true
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
