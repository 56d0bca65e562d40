package task

import (
	"encoding/json"
	"fmt"
)

// EventType 订阅事件类型。
type EventType string

const (
	EventChunk EventType = "chunk"
	EventDone  EventType = "done"
	EventError EventType = "error"
	// EventHeartbeat 仅用于保活，由传输层渲染为注释行，没有 JSON 负载。
	EventHeartbeat EventType = "heartbeat"
)

// Event 推送给订阅者的单条记录，chunk/done/error 与线格式一一对应。
type Event struct {
	Type    EventType
	Content string
	Index   int
	Err     string
}

func ChunkEvent(content string, index int) Event {
	return Event{Type: EventChunk, Content: content, Index: index}
}

func DoneEvent() Event {
	return Event{Type: EventDone}
}

func ErrorEvent(message string) Event {
	return Event{Type: EventError, Err: message}
}

func HeartbeatEvent() Event {
	return Event{Type: EventHeartbeat}
}

// Terminal 报告该事件是否结束订阅。
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// Encode 输出单行 JSON（不含换行符）。心跳没有线格式负载，调用方需要先行判断。
func (e Event) Encode() ([]byte, error) {
	switch e.Type {
	case EventChunk:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Content string `json:"content"`
			Index   int    `json:"index"`
		}{string(EventChunk), e.Content, e.Index})
	case EventDone:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{string(EventDone)})
	case EventError:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Error string `json:"error"`
		}{string(EventError), e.Err})
	default:
		return nil, fmt.Errorf("event type %q has no wire payload", e.Type)
	}
}
