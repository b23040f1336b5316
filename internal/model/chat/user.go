package chat

// User is an authenticated principal together with its display name.
type User struct {
	ID       int64  `json:"user_id"`
	Username string `json:"username"`
}
