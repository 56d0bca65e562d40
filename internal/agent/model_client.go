package agent

import (
	"context"
	"errors"

	"relay-chat/internal/logger"
)

// Completion 非流式调用的结果。文本与工具调用可能同时存在。
type Completion struct {
	Text      string
	ToolCalls []ToolCall
}

// StreamEventType 流式事件类型。
type StreamEventType string

const (
	StreamEventTextDelta StreamEventType = "text_delta"
	StreamEventToolCall  StreamEventType = "tool_call"
	StreamEventCompleted StreamEventType = "completed"
)

// StreamEvent 流式响应的单个事件：文本增量、工具调用或完成标记。
type StreamEvent struct {
	Type StreamEventType
	Text string
	Call *ToolCall
}

// ModelClient 定义模型客户端接口
type ModelClient interface {
	Complete(ctx context.Context, prompt Prompt) (Completion, error)
	Stream(ctx context.Context, prompt Prompt, onEvent func(StreamEvent)) error
}

// EchoClient is a fallback when no API key is available.
type EchoClient struct {
	Prefix string
}

func (c EchoClient) Complete(_ context.Context, prompt Prompt) (Completion, error) {
	if len(prompt.Messages) == 0 {
		return Completion{}, errors.New("no messages to echo")
	}
	last := prompt.Messages[len(prompt.Messages)-1]
	return Completion{Text: c.Prefix + last.Content}, nil
}

func (c EchoClient) Stream(ctx context.Context, prompt Prompt, onEvent func(StreamEvent)) error {
	completion, err := c.Complete(ctx, prompt)
	if err != nil {
		return err
	}
	onEvent(StreamEvent{Type: StreamEventTextDelta, Text: completion.Text})
	onEvent(StreamEvent{Type: StreamEventCompleted})
	return nil
}

// ToLLMMessages 将内部消息转换为日志友好的结构。
func ToLLMMessages(msgs []Message) []logger.LLMMessage {
	out := make([]logger.LLMMessage, 0, len(msgs))
	for _, msg := range msgs {
		content := msg.Content
		if msg.ToolResult != nil {
			content = msg.ToolResult.Content
		}
		out = append(out, logger.LLMMessage{
			Role:    string(msg.Role),
			Content: content,
		})
	}
	return out
}
