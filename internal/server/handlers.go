package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"relay-chat/internal/agent"
	"relay-chat/internal/history"
	"relay-chat/internal/task"
)

type postMessageRequest struct {
	Text          string `json:"text"`
	SearchEnabled bool   `json:"search_enabled"`
	CodeEnabled   bool   `json:"code_enabled"`
}

type startedResponse struct {
	TaskID string `json:"task_id"`
}

// handlePostMessage 追加用户消息并启动一个后台任务，立即返回任务 id。
// 同一会话已有 running 任务时拒绝。
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	if activeID, ok := s.Registry.FindActiveByConversation(conversationID); ok {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "conversation already has a running task",
			"task_id": activeID,
		})
		return
	}

	if err := s.History.Append(conversationID, "user", req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.History.Load(conversationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	taskID := s.Runner.Start(conversationID, toAgentMessages(entries), task.ToolFlags{
		SearchEnabled: req.SearchEnabled,
		CodeEnabled:   req.CodeEnabled,
	})
	log.Infof("conversation %s started task %s (search=%v code=%v)",
		conversationID, taskID, req.SearchEnabled, req.CodeEnabled)
	writeJSON(w, http.StatusAccepted, startedResponse{TaskID: taskID})
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.Registry.Snapshot(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleActiveTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.Registry.FindActiveByConversation(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no active task")
		return
	}
	writeJSON(w, http.StatusOK, startedResponse{TaskID: taskID})
}

func toAgentMessages(entries []history.Message) []agent.Message {
	out := make([]agent.Message, 0, len(entries))
	for _, entry := range entries {
		switch entry.Role {
		case "assistant":
			out = append(out, agent.AssistantMessage(entry.Text))
		case "system":
			out = append(out, agent.SystemMessage(entry.Text))
		default:
			out = append(out, agent.UserMessage(entry.Text))
		}
	}
	return out
}
