package chat

import "time"

// Message is one chat line written to a room, as persisted for history.
type Message struct {
	RoomID    string    `json:"room_id"`
	UserID    int64     `json:"user_id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
