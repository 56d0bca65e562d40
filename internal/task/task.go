package task

import (
	"strings"
	"sync"
	"time"

	"relay-chat/internal/logger"
)

var log = logger.Named("task")

// Status 任务状态机：running 进入 completed 或 error 之后不再变化。
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Task 一次后台生成作业。片段只由自己的 Runner 追加，
// 订阅集合则同时被 Runner（广播、关闭）与任意订阅方（加入、退出）修改，
// 所有可变字段统一由 mu 保护。
type Task struct {
	ID             string
	ConversationID string
	CreatedAt      time.Time

	mu          sync.Mutex
	status      Status
	fragments   []string
	fullText    strings.Builder
	errMsg      string
	completedAt time.Time
	subs        map[string]chan Event
}

func newTask(id, conversationID string) *Task {
	return &Task{
		ID:             id,
		ConversationID: conversationID,
		CreatedAt:      time.Now(),
		status:         StatusRunning,
		subs:           make(map[string]chan Event),
	}
}

// Snapshot 对外可见的任务快照，不包含订阅集合。
type Snapshot struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Status         Status    `json:"status"`
	FragmentCount  int       `json:"fragment_count"`
	FullText       string    `json:"full_text,omitempty"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	CompletedAt    time.Time `json:"completed_at,omitzero"`
}

// Snapshot 返回当前状态。FullText 只在任务完成后填充。
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := Snapshot{
		ID:             t.ID,
		ConversationID: t.ConversationID,
		Status:         t.status,
		FragmentCount:  len(t.fragments),
		Error:          t.errMsg,
		CreatedAt:      t.CreatedAt,
		CompletedAt:    t.completedAt,
	}
	if t.status == StatusCompleted {
		snap.FullText = t.fullText.String()
	}
	return snap
}

func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// FullText 返回到目前为止累计的全部片段文本。
func (t *Task) FullText() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fullText.String()
}

func (t *Task) FragmentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.fragments)
}
