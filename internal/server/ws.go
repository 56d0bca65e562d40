package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"relay-chat/internal/task"
)

const wsWriteTimeout = 10 * time.Second

// handleTaskWS WebSocket 版本的事件订阅，逐条下发与 SSE 相同的单行 JSON 记录。
// 给 SSE 被代理破坏的客户端使用。
func (s *Server) handleTaskWS(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	ch, cancel, err := s.Broker.Subscribe(taskID, fromIndex(r))
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer cancel()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Warnf("ws accept for task %s: %v", taskID, err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	// 不期待客户端发消息，CloseRead 在对端断开时取消 ctx。
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			log.Debugf("ws subscriber of task %s disconnected", taskID)
			return
		case ev, open := <-ch:
			if !open {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if ev.Type == task.EventHeartbeat {
				if err := pingConn(ctx, conn); err != nil {
					return
				}
				continue
			}
			data, err := ev.Encode()
			if err != nil {
				continue
			}
			if err := writeConn(ctx, conn, data); err != nil {
				log.Debugf("ws write for task %s: %v", taskID, err)
				return
			}
			if ev.Terminal() {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}
}

func writeConn(ctx context.Context, conn *websocket.Conn, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func pingConn(ctx context.Context, conn *websocket.Conn) error {
	pingCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Ping(pingCtx)
}
