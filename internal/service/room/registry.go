// Package room runs chat rooms: a registry that owns the directory of live
// rooms, and one actor goroutine per room that serialises its commands,
// fans them out to subscribers and closes the room once it goes idle.
package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-chat/backend/internal/metrics"
	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

var (
	ErrEmptyName      = errors.New("room name is required")
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomClosed     = errors.New("room closed")
	ErrRegistryClosed = errors.New("room registry closed")
)

const (
	DefaultIdleTimeout     = 30 * time.Minute
	DefaultCommandBuffer   = 128
	DefaultBroadcastBuffer = 128

	closeRoomTimeout = 5 * time.Second
)

// Store records rooms durably.
type Store interface {
	CreateRoom(ctx context.Context, id, name string) error
	CloseRoom(ctx context.Context, id string) error
}

// Sink takes chat messages for best-effort asynchronous persistence.
// Persist must not block.
type Sink interface {
	Persist(msg chat.Message)
}

type discardSink struct{}

func (discardSink) Persist(chat.Message) {}

// Handle is what connections hold on to: the command endpoint and the
// broadcast endpoint of one room.
type Handle struct {
	id       string
	name     string
	commands chan Command
	hub      *broadcaster
	done     chan struct{}
	doneOnce sync.Once
}

func newHandle(id, name string, commandBuffer, broadcastBuffer int) *Handle {
	return &Handle{
		id:       id,
		name:     name,
		commands: make(chan Command, commandBuffer),
		hub:      newBroadcaster(broadcastBuffer),
		done:     make(chan struct{}),
	}
}

// ID returns the room identifier.
func (h *Handle) ID() string { return h.id }

// Name returns the room display name.
func (h *Handle) Name() string { return h.name }

// Done is closed once the room has been deregistered.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Send queues cmd for the room. It waits while the command buffer is full
// and gives up with ErrRoomClosed once the room is gone.
func (h *Handle) Send(ctx context.Context, cmd Command) error {
	select {
	case <-h.done:
		return ErrRoomClosed
	default:
	}

	select {
	case h.commands <- cmd:
		return nil
	case <-h.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe attaches a new receiver to the room's broadcast endpoint.
func (h *Handle) Subscribe() *Subscription {
	return h.hub.subscribe()
}

func (h *Handle) markDone() {
	h.doneOnce.Do(func() { close(h.done) })
}

// Registry is the single directory of live rooms. Insertions, lookups and
// removals all serialise on mu; nothing blocking runs while it is held.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Handle
	closed bool

	store           Store
	sink            Sink
	idle            time.Duration
	commandBuffer   int
	broadcastBuffer int
}

// Option customises a Registry.
type Option func(*Registry)

// WithIdleTimeout sets how long a room may go without any command.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.idle = d
		}
	}
}

// WithBuffers sets the command and per-subscriber broadcast capacities.
func WithBuffers(command, broadcast int) Option {
	return func(r *Registry) {
		if command > 0 {
			r.commandBuffer = command
		}
		if broadcast > 0 {
			r.broadcastBuffer = broadcast
		}
	}
}

// NewRegistry builds an empty registry. A nil sink discards messages.
func NewRegistry(store Store, sink Sink, opts ...Option) *Registry {
	if sink == nil {
		sink = discardSink{}
	}
	r := &Registry{
		rooms:           make(map[string]*Handle),
		store:           store,
		sink:            sink,
		idle:            DefaultIdleTimeout,
		commandBuffer:   DefaultCommandBuffer,
		broadcastBuffer: DefaultBroadcastBuffer,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateRoom allocates a room, makes it joinable, records it durably and
// starts its actor. If the durable write fails the entry is withdrawn again
// and anyone who joined in between receives Close.
func (r *Registry) CreateRoom(ctx context.Context, name string) (*Handle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	h := newHandle(uuid.NewString(), name, r.commandBuffer, r.broadcastBuffer)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	r.rooms[h.id] = h
	metrics.RoomsActive.Set(float64(len(r.rooms)))
	r.mu.Unlock()

	if err := r.store.CreateRoom(ctx, h.id, name); err != nil {
		r.RemoveRoom(h.id)
		metrics.RoomsClosed.WithLabelValues(metrics.ReasonAborted).Inc()
		return nil, fmt.Errorf("record room %q: %w", name, err)
	}

	go r.runActor(h)

	log.Info().Str("room_id", h.id).Str("room_name", name).Msg("room created")
	return h, nil
}

// JoinRoom returns the live room with id, or ErrRoomNotFound. It never
// creates a room.
func (r *Registry) JoinRoom(id string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return h, nil
}

// RemoveRoom broadcasts Close to the room's subscribers and deletes its
// entry. Removing an unknown room is a no-op.
func (r *Registry) RemoveRoom(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.rooms[id]; ok {
		r.removeLocked(h)
	}
}

// retire deregisters h on behalf of its own actor. An idle room that still
// has commands queued stays registered and retire reports false. Deciding
// and deregistering under the same lock means JoinRoom never hands out a
// room whose actor has stopped reading.
func (r *Registry) retire(h *Handle, idle bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idle && len(h.commands) > 0 {
		return false
	}
	if r.rooms[h.id] == h {
		r.removeLocked(h)
	}
	return true
}

// removeLocked must be called with mu held.
func (r *Registry) removeLocked(h *Handle) {
	h.hub.close()
	delete(r.rooms, h.id)
	h.markDone()
	metrics.RoomsActive.Set(float64(len(r.rooms)))
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Shutdown stops accepting rooms, asks every live room to close and waits
// until all of them have deregistered or ctx expires.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	handles := make([]*Handle, 0, len(r.rooms))
	for _, h := range r.rooms {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		if err := h.Send(ctx, Close()); err != nil && !errors.Is(err, ErrRoomClosed) {
			return fmt.Errorf("close room %s: %w", h.id, err)
		}
	}

	for _, h := range handles {
		select {
		case <-h.done:
		case <-ctx.Done():
			return fmt.Errorf("wait for room %s: %w", h.id, ctx.Err())
		}
	}

	log.Info().Int("rooms", len(handles)).Msg("room registry stopped")
	return nil
}

func (r *Registry) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
