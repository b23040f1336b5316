// Package persist writes chat messages to durable storage off the room
// actors' hot path.
package persist

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-chat/backend/internal/metrics"
	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

const (
	DefaultQueueSize    = 128
	DefaultWriteTimeout = 3 * time.Second
)

// MessageStore inserts one message.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg chat.Message) error
}

// Writer is a single background worker fed by a bounded queue. Persist
// never blocks: when the queue is full the message is dropped and counted.
type Writer struct {
	store   MessageStore
	queue   chan chat.Message
	timeout time.Duration
}

// NewWriter builds a Writer. queueSize and timeout fall back to defaults
// when not positive.
func NewWriter(store MessageStore, queueSize int, timeout time.Duration) *Writer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &Writer{
		store:   store,
		queue:   make(chan chat.Message, queueSize),
		timeout: timeout,
	}
}

// Persist enqueues msg for writing.
func (w *Writer) Persist(msg chat.Message) {
	select {
	case w.queue <- msg:
	default:
		metrics.PersistDropped.Inc()
		log.Warn().Str("room_id", msg.RoomID).Int64("user_id", msg.UserID).Msg("persist queue full, message dropped")
	}
}

// Run drains the queue until ctx is cancelled, then flushes whatever is
// still buffered before returning.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case msg := <-w.queue:
			w.write(msg)
		case <-ctx.Done():
			w.flush()
			return nil
		}
	}
}

func (w *Writer) flush() {
	n := 0
	for {
		select {
		case msg := <-w.queue:
			w.write(msg)
			n++
		default:
			if n > 0 {
				log.Info().Int("messages", n).Msg("persist queue flushed")
			}
			return
		}
	}
}

// write runs detached from the worker's context so that messages drained
// during shutdown still reach the store.
func (w *Writer) write(msg chat.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := w.store.InsertMessage(ctx, msg); err != nil {
		metrics.PersistFailures.Inc()
		log.Error().Err(err).Str("room_id", msg.RoomID).Int64("user_id", msg.UserID).Msg("failed to persist message")
	}
}
