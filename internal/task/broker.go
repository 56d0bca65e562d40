package task

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrTaskNotFound 订阅或查询了未知的任务 id。
var ErrTaskNotFound = errors.New("task not found")

// liveBuffer 每个订阅者通道的直播缓冲容量。写满视为消费端已经停滞，
// 该订阅者会被移除。最后一个槽位保留给终止信号。
const liveBuffer = 64

// Broker 把任务的片段序列扇出给任意数量的订阅者，支持从指定下标回放。
// 推送永远不会阻塞 Runner。
type Broker struct {
	reg *Registry
}

func NewBroker(reg *Registry) *Broker {
	return &Broker{reg: reg}
}

// Subscribe 回放 fromIndex 起的全部已有片段，然后视任务状态决定是否接入直播。
// 回放在任务锁内同步完成，与直播注册之间不会漏掉或重复任何下标。
// 返回的 cancel 负责退订，可以重复调用。
func (b *Broker) Subscribe(taskID string, fromIndex int) (<-chan Event, func(), error) {
	t, ok := b.reg.Get(taskID)
	if !ok {
		return nil, nil, ErrTaskNotFound
	}
	if fromIndex < 0 {
		fromIndex = 0
	}

	t.mu.Lock()

	pending := len(t.fragments) - fromIndex
	if pending < 0 {
		pending = 0
	}
	ch := make(chan Event, pending+liveBuffer)
	for i := fromIndex; i < len(t.fragments); i++ {
		ch <- ChunkEvent(t.fragments[i], i)
	}

	if t.status != StatusRunning {
		ch <- t.terminalEventLocked()
		close(ch)
		t.mu.Unlock()
		return ch, func() {}, nil
	}

	id := uuid.NewString()
	t.subs[id] = ch
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if c, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(c)
		}
	}
	return ch, cancel, nil
}

// Publish 追加一个片段并广播给所有订阅者，返回分配的下标。
// 任务已终止时不再追加，返回 -1。
func (b *Broker) Publish(t *Task, text string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusRunning {
		return -1
	}
	index := len(t.fragments)
	t.fragments = append(t.fragments, text)
	t.fullText.WriteString(text)

	ev := ChunkEvent(text, index)
	for id, ch := range t.subs {
		// 保留一个槽位给终止信号，缓冲逼近上限即判定订阅者停滞。
		if len(ch) >= cap(ch)-1 {
			delete(t.subs, id)
			close(ch)
			log.Warnf("task %s dropped slow subscriber %s at index %d", t.ID, id, index)
			continue
		}
		ch <- ev
	}
	return index
}

// Heartbeat 向所有订阅者推送一次保活事件，尽力而为，不移除任何订阅者。
func (b *Broker) Heartbeat(t *Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusRunning {
		return
	}
	ev := HeartbeatEvent()
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Complete 把任务置为 completed，广播 done 并关闭所有订阅者。只生效一次。
func (b *Broker) Complete(t *Task) {
	b.finish(t, StatusCompleted, "")
}

// Fail 把任务置为 error 并记录错误信息，广播 error 并关闭所有订阅者。只生效一次。
func (b *Broker) Fail(t *Task, message string) {
	b.finish(t, StatusError, message)
}

func (b *Broker) finish(t *Task, status Status, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusRunning {
		return
	}
	t.status = status
	t.errMsg = message
	t.completedAt = time.Now()

	ev := t.terminalEventLocked()
	for id, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			log.Warnf("task %s subscriber %s lost terminal signal", t.ID, id)
		}
		close(ch)
		delete(t.subs, id)
	}
}

func (t *Task) terminalEventLocked() Event {
	if t.status == StatusError {
		return ErrorEvent(t.errMsg)
	}
	return DoneEvent()
}

// SubscriberCount 当前接入直播的订阅者数量，测试用。
func (b *Broker) SubscriberCount(t *Task) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}
