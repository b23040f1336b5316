package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

// PgxRoomRepository records room lifecycles in the rooms table.
type PgxRoomRepository struct {
	pool *pgxpool.Pool
}

// NewRoomRepository creates a new PgxRoomRepository.
func NewRoomRepository(pool *pgxpool.Pool) *PgxRoomRepository {
	return &PgxRoomRepository{pool: pool}
}

// CreateRoom inserts an open room.
func (r *PgxRoomRepository) CreateRoom(ctx context.Context, id, name string) error {
	query := `INSERT INTO rooms (id, room_name) VALUES ($1, $2)`

	if _, err := r.pool.Exec(ctx, query, id, name); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("room %s: %w", id, ErrDuplicate)
		}
		return err
	}
	return nil
}

// CloseRoom stamps closed_at. Closing an already closed or unknown room is
// not an error.
func (r *PgxRoomRepository) CloseRoom(ctx context.Context, id string) error {
	query := `UPDATE rooms SET closed_at = now() WHERE id = $1 AND closed_at IS NULL`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// ListOpenRooms returns rooms that have not been closed, newest first.
func (r *PgxRoomRepository) ListOpenRooms(ctx context.Context) ([]chat.RoomInfo, error) {
	query := `SELECT id, room_name FROM rooms WHERE closed_at IS NULL ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	rooms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (chat.RoomInfo, error) {
		var info chat.RoomInfo
		err := row.Scan(&info.ID, &info.Name)
		return info, err
	})
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

// CloseAllOpen marks every open room closed. Rooms live only in process
// memory, so any left open by a previous run are stale.
func (r *PgxRoomRepository) CloseAllOpen(ctx context.Context) (int64, error) {
	query := `UPDATE rooms SET closed_at = now() WHERE closed_at IS NULL`
	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
