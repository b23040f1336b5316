package chat

// RoomInfo is the listing view of a room that has not been closed yet.
type RoomInfo struct {
	ID   string `json:"room_id"`
	Name string `json:"room_name"`
}
