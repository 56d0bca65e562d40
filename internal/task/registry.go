package task

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry 进程内任务表，是“这个会话是否还在生成”的唯一事实来源。
type Registry struct {
	mu     sync.RWMutex
	tasks  map[string]*Task
	timers map[string]*time.Timer
}

func NewRegistry() *Registry {
	return &Registry{
		tasks:  make(map[string]*Task),
		timers: make(map[string]*time.Timer),
	}
}

// Create 插入一个 running 状态的新任务并返回，不负责调度执行。
func (r *Registry) Create(conversationID string) *Task {
	t := newTask(uuid.NewString(), conversationID)
	r.mu.Lock()
	r.tasks[t.ID] = t
	r.mu.Unlock()
	log.Infof("task %s created for conversation %s", t.ID, conversationID)
	return t
}

func (r *Registry) Get(taskID string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[taskID]
	return t, ok
}

// Snapshot 按 id 查询任务快照，未知 id 返回 false 而不是错误。
func (r *Registry) Snapshot(taskID string) (Snapshot, bool) {
	t, ok := r.Get(taskID)
	if !ok {
		return Snapshot{}, false
	}
	return t.Snapshot(), true
}

// FindActiveByConversation 返回该会话当前 running 状态的任务 id。
// 任务基数很小，线性扫描足够。
func (r *Registry) FindActiveByConversation(conversationID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tasks {
		if t.ConversationID == conversationID && t.Status() == StatusRunning {
			return t.ID, true
		}
	}
	return "", false
}

// ScheduleRemoval 在 after 之后把任务从表中移除。重复调用或任务已不存在都是无害的。
func (r *Registry) ScheduleRemoval(taskID string, after time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[taskID]; !ok {
		return
	}
	if _, ok := r.timers[taskID]; ok {
		return
	}
	if after <= 0 {
		after = time.Nanosecond
	}
	r.timers[taskID] = time.AfterFunc(after, func() {
		r.remove(taskID)
	})
}

func (r *Registry) remove(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, taskID)
	delete(r.timers, taskID)
	log.Debugf("task %s removed from registry", taskID)
}

// Len 当前表中的任务数，测试和诊断用。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
