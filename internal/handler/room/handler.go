package room

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-chat/backend/internal/middleware"
	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	"github.com/zhouzirui/z-chat/backend/internal/service/account"
	roomService "github.com/zhouzirui/z-chat/backend/internal/service/room"
	"github.com/zhouzirui/z-chat/backend/pkg/utils"
)

// RoomIDHeader 升级响应中携带新房间 ID 的头
const RoomIDHeader = "X-Room-Id"

// Rooms 抽象房间注册表，便于测试与替换实现
type Rooms interface {
	CreateRoom(ctx context.Context, name string) (*roomService.Handle, error)
	JoinRoom(id string) (*roomService.Handle, error)
}

// Directory 提供未关闭房间的持久化列表
type Directory interface {
	ListOpenRooms(ctx context.Context) ([]chat.RoomInfo, error)
}

// Users 将会话主体解析为用户
type Users interface {
	User(ctx context.Context, id int64) (chat.User, error)
}

// Handler 聊天室的HTTP处理器
type Handler struct {
	rooms     Rooms
	directory Directory
	users     Users
	upgrader  websocket.Upgrader
}

// New 创建聊天室处理器
func New(rooms Rooms, directory Directory, users Users) *Handler {
	return &Handler{
		rooms:     rooms,
		directory: directory,
		users:     users,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册聊天室路由，调用方负责挂载会话中间件
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/rooms", h.handleListRooms)
	r.Get("/create_room", h.handleCreateRoom)
	r.Get("/join_room", h.handleJoinRoom)
}

// handleListRooms 列出未关闭的房间
func (h *Handler) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.directory.ListOpenRooms(r.Context())
	if err != nil {
		utils.RespondInternalError(w, err)
		return
	}
	if rooms == nil {
		rooms = []chat.RoomInfo{}
	}
	utils.RespondOK(w, "Rooms", rooms)
}

// handleCreateRoom 创建房间后升级为 WebSocket
func (h *Handler) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("room_name"))
	if name == "" {
		utils.RespondError(w, http.StatusBadRequest, utils.CodeBadRequest, "room_name is required")
		return
	}

	handle, err := h.rooms.CreateRoom(r.Context(), name)
	switch {
	case errors.Is(err, roomService.ErrEmptyName):
		utils.RespondError(w, http.StatusBadRequest, utils.CodeBadRequest, err.Error())
		return
	case errors.Is(err, roomService.ErrRegistryClosed):
		utils.RespondError(w, http.StatusServiceUnavailable, utils.CodeInternalServerError, "server is shutting down")
		return
	case err != nil:
		utils.RespondInternalError(w, err)
		return
	}

	header := http.Header{}
	header.Set(RoomIDHeader, handle.ID())

	conn, err := h.upgrader.Upgrade(w, r, header)
	if err != nil {
		// 房间无人加入，将由空闲超时回收
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("room_id", handle.ID()).Msg("websocket upgrade failed")
		return
	}

	h.serve(conn, handle, user)
}

// handleJoinRoom 加入已存在的房间
func (h *Handler) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	roomID := strings.TrimSpace(r.URL.Query().Get("room_id"))
	if roomID == "" {
		utils.RespondError(w, http.StatusBadRequest, utils.CodeBadRequest, "room_id is required")
		return
	}

	handle, err := h.rooms.JoinRoom(roomID)
	if err != nil {
		if errors.Is(err, roomService.ErrRoomNotFound) {
			utils.RespondError(w, http.StatusNotFound, utils.CodeRoomNotFound, "The room has been closed")
			return
		}
		utils.RespondInternalError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("room_id", roomID).Msg("websocket upgrade failed")
		return
	}

	h.serve(conn, handle, user)
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (chat.User, bool) {
	principalID, ok := middleware.PrincipalID(r.Context())
	if !ok {
		utils.RespondUnauthorized(w)
		return chat.User{}, false
	}

	user, err := h.users.User(r.Context(), principalID)
	if err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			utils.RespondUnauthorized(w)
			return chat.User{}, false
		}
		utils.RespondInternalError(w, err)
		return chat.User{}, false
	}
	return user, true
}
