package agent

import "encoding/json"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ToolCall 模型发起的一次工具调用请求。
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResult 工具执行结果，作为 RoleTool 消息挂回对话。
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    string
}

type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolResult *ToolResult
}

// UserMessage/AssistantMessage/SystemMessage 构造纯文本消息。
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// ToolResultMessage 构造工具结果消息。
func ToolResultMessage(callID, name, content string) Message {
	return Message{
		Role: RoleTool,
		ToolResult: &ToolResult{
			ToolCallID: callID,
			Name:       name,
			Content:    content,
		},
	}
}
