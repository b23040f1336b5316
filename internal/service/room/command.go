package room

import "github.com/zhouzirui/z-chat/backend/internal/model/chat"

// Method tags a Command.
type Method string

const (
	MethodJoin  Method = "Join"
	MethodSend  Method = "Send"
	MethodLeave Method = "Leave"
	// MethodClose is control-plane only: sent to a room it requests
	// shutdown, broadcast by a room it tells subscribers to disconnect.
	MethodClose Method = "Close"
)

// Command flows from connections into a room and, echoed unchanged, from
// the room out to every subscriber.
type Command struct {
	Method  Method
	RoomID  string
	User    chat.User
	Message string
}

// Join announces user entering the room.
func Join(user chat.User) Command {
	return Command{Method: MethodJoin, User: user}
}

// Send carries a chat line from user in roomID.
func Send(user chat.User, roomID, message string) Command {
	return Command{Method: MethodSend, RoomID: roomID, User: user, Message: message}
}

// Leave announces user leaving the room.
func Leave(user chat.User) Command {
	return Command{Method: MethodLeave, User: user}
}

// Close asks a room to shut down, or signals that it has.
func Close() Command {
	return Command{Method: MethodClose}
}
