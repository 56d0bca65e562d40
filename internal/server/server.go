package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"relay-chat/internal/history"
	"relay-chat/internal/logger"
	"relay-chat/internal/task"
)

var log = logger.Named("server")

// Server 把任务控制面暴露为 HTTP 接口。传输层不拥有任何任务状态，
// 全部委托给 Registry/Broker/Runner。
type Server struct {
	Runner   *task.Runner
	Broker   *task.Broker
	Registry *task.Registry
	History  *history.Store
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/conversations/{id}/messages", s.handlePostMessage)
	mux.HandleFunc("GET /api/conversations/{id}/task", s.handleActiveTask)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleTaskStatus)
	mux.HandleFunc("GET /api/tasks/{id}/events", s.handleTaskEvents)
	mux.HandleFunc("GET /api/tasks/{id}/ws", s.handleTaskWS)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

// Run 启动 HTTP 服务并在 ctx 取消时优雅关闭。
// 正在运行的任务不受关闭影响，自行跑到终态。
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Infof("listening on %s", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// fromIndex 解析 ?from=k，缺省或非法时从 0 开始。
func fromIndex(r *http.Request) int {
	raw := r.URL.Query().Get("from")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
