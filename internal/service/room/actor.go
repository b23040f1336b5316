package room

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-chat/backend/internal/metrics"
	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

// runActor owns the room from the moment it is recorded until it is
// deregistered. States: active while drive loops, terminal once drive has
// retired the room.
func (r *Registry) runActor(h *Handle) {
	reason := r.drive(h)

	metrics.RoomsClosed.WithLabelValues(reason).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), closeRoomTimeout)
	defer cancel()
	if err := r.store.CloseRoom(ctx, h.id); err != nil {
		log.Error().Err(err).Str("room_id", h.id).Msg("failed to mark room closed")
	}

	log.Info().Str("room_id", h.id).Str("reason", reason).Msg("room closed")
}

// drive processes commands until the room has been idle for r.idle or a
// Close command arrives. Every command, of any kind, pushes the deadline out.
// The room is deregistered before drive returns.
func (r *Registry) drive(h *Handle) string {
	deadline := time.Now().Add(r.idle)
	timer := time.NewTimer(r.idle)
	defer timer.Stop()

	for {
		select {
		case <-h.done:
			// Deregistered from outside the actor.
			return metrics.ReasonClose

		case <-timer.C:
			remaining := time.Until(deadline)
			if remaining > 0 {
				timer.Reset(remaining)
				continue
			}
			if r.retire(h, true) {
				return metrics.ReasonIdle
			}
			// A command slipped in before the room could retire.
			deadline = time.Now().Add(r.idle)
			timer.Reset(r.idle)

		case cmd := <-h.commands:
			deadline = time.Now().Add(r.idle)

			switch cmd.Method {
			case MethodClose:
				reason := metrics.ReasonClose
				if r.isClosed() {
					reason = metrics.ReasonShutdown
				}
				r.retire(h, false)
				return reason
			case MethodSend:
				h.hub.publish(cmd)
				metrics.MessagesTotal.Inc()
				r.sink.Persist(chat.Message{
					RoomID:    h.id,
					UserID:    cmd.User.ID,
					Sender:    cmd.User.Username,
					Content:   cmd.Message,
					CreatedAt: time.Now().UTC(),
				})
			case MethodJoin, MethodLeave:
				h.hub.publish(cmd)
			default:
				log.Warn().Str("room_id", h.id).Str("method", string(cmd.Method)).Msg("unknown room command")
			}
		}
	}
}
