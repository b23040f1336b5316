package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

// PgxMessageRepository stores chat messages.
type PgxMessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new PgxMessageRepository.
func NewMessageRepository(pool *pgxpool.Pool) *PgxMessageRepository {
	return &PgxMessageRepository{pool: pool}
}

// InsertMessage appends one message.
func (r *PgxMessageRepository) InsertMessage(ctx context.Context, msg chat.Message) error {
	query := `INSERT INTO messages (room_id, user_id, content, created_at) VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, query, msg.RoomID, msg.UserID, msg.Content, msg.CreatedAt)
	return err
}
