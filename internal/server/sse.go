package server

import (
	"errors"
	"fmt"
	"net/http"

	"relay-chat/internal/task"
)

// handleTaskEvents 以 SSE 推送回放加直播的事件流。
// 心跳渲染为注释行，不携带 JSON 负载，终止事件之后连接关闭。
func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
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

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			// 客户端断开只取消自己的订阅，任务继续运行。
			log.Debugf("sse subscriber of task %s disconnected", taskID)
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if ev.Type == task.EventHeartbeat {
				fmt.Fprint(w, ": heartbeat\n\n")
				flusher.Flush()
				continue
			}
			data, err := ev.Encode()
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
			if ev.Terminal() {
				return
			}
		}
	}
}
