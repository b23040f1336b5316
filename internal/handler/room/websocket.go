package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-chat/backend/internal/metrics"
	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	roomService "github.com/zhouzirui/z-chat/backend/internal/service/room"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	leaveTimeout   = 5 * time.Second

	systemSender = "System"
)

// inboundFrame 客户端发来的帧，sender 与 is_self 字段会被忽略
type inboundFrame struct {
	Method  string `json:"method"`
	Message string `json:"message"`
}

// StreamFrame 下发给客户端的帧
type StreamFrame struct {
	Method  string `json:"method"`
	Message string `json:"message"`
	Sender  string `json:"sender"`
	IsSelf  bool   `json:"is_self"`
}

// commandFor 将入站帧转换为房间命令，身份取自已认证的连接
func commandFor(frame inboundFrame, user chat.User, roomID string) (roomService.Command, bool) {
	switch roomService.Method(frame.Method) {
	case roomService.MethodSend:
		return roomService.Send(user, roomID, frame.Message), true
	case roomService.MethodJoin:
		return roomService.Join(user), true
	default:
		return roomService.Command{}, false
	}
}

// frameFor 将广播命令转换为出站帧
func frameFor(cmd roomService.Command, self int64) (StreamFrame, bool) {
	frame := StreamFrame{
		Method: string(cmd.Method),
		IsSelf: cmd.User.ID == self,
	}

	switch cmd.Method {
	case roomService.MethodSend:
		frame.Sender = cmd.User.Username
		frame.Message = cmd.Message
	case roomService.MethodJoin:
		frame.Sender = systemSender
		frame.Message = fmt.Sprintf("User %s join the room", cmd.User.Username)
	case roomService.MethodLeave:
		frame.Sender = systemSender
		frame.Message = fmt.Sprintf("User %s leave the room", cmd.User.Username)
	default:
		return StreamFrame{}, false
	}
	return frame, true
}

// serve 负责一个连接的完整生命周期：
// 写协程消费房间广播，读协程将入站帧转为命令；任一方结束都会使另一方尽快退出，
// 退出前总会向房间发送 Leave。
func (h *Handler) serve(conn *websocket.Conn, room *roomService.Handle, user chat.User) {
	defer conn.Close()

	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	logger := log.With().Str("room_id", room.ID()).Int64("user_id", user.ID).Logger()
	logger.Debug().Msg("connection attached")

	sub := room.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// shutdown 由写协程关闭
	shutdown := make(chan struct{})
	go func() {
		defer close(shutdown)
		writeLoop(ctx, conn, sub, user.ID, logger)
	}()
	go pingLoop(ctx, conn)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		readLoop(ctx, conn, room, user, logger)
	}()

	select {
	case <-readDone:
	case <-shutdown:
		// 关闭底层连接以打断阻塞中的读
		cancel()
		conn.Close()
		<-readDone
	}

	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer leaveCancel()
	if err := room.Send(leaveCtx, roomService.Leave(user)); err != nil && !errors.Is(err, roomService.ErrRoomClosed) {
		logger.Warn().Err(err).Msg("failed to send leave")
	}

	cancel()
	sub.Close()
	<-shutdown

	logger.Debug().Msg("connection detached")
}

// readLoop 读取入站帧直到连接关闭或出错
func readLoop(ctx context.Context, conn *websocket.Conn, room *roomService.Handle, user chat.User, logger zerolog.Logger) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.Warn().Err(err).Msg("malformed frame")
			continue
		}

		cmd, ok := commandFor(frame, user, room.ID())
		if !ok {
			logger.Warn().Str("method", frame.Method).Msg("unsupported frame method")
			continue
		}

		if err := room.Send(ctx, cmd); err != nil {
			// 房间已关闭或连接正在退出
			return
		}
	}
}

// writeLoop 将房间广播写回客户端，收到 Close 或写失败即返回
func writeLoop(ctx context.Context, conn *websocket.Conn, sub *roomService.Subscription, self int64, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-sub.C():
			if !ok || cmd.Method == roomService.MethodClose {
				deadline := time.Now().Add(writeWait)
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room closed")
				_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
				return
			}

			frame, ok := frameFor(cmd, self)
			if !ok {
				continue
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				logger.Debug().Err(err).Msg("websocket write error")
				return
			}
		}
	}
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
