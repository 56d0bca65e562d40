package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"relay-chat/internal/agent"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

type Options struct {
	APIKey  string
	BaseURL string
	Model   string
}

type Client struct {
	api   *openai.Client
	model string
}

// 确保Client实现了agent.ModelClient接口
var _ agent.ModelClient = (*Client)(nil)

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("missing OPENAI_API_KEY")
	}
	cfg := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg = append(cfg, option.WithBaseURL(strings.TrimRight(normalizeBaseURL(base), "/")))
	}
	client := openai.NewClient(cfg...)

	return &Client{
		api:   &client,
		model: opts.Model,
	}, nil
}

func (c *Client) resolveModel(model string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return c.model
}

func (c *Client) Complete(ctx context.Context, prompt agent.Prompt) (agent.Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.resolveModel(prompt.Model)),
		Messages: toChatMessages(prompt.Messages),
	}
	if len(prompt.Tools) > 0 {
		params.Tools = toChatTools(prompt.Tools)
		params.ParallelToolCalls = openai.Bool(prompt.ParallelToolCalls)
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return agent.Completion{}, wrapHTTPError(err)
	}
	if len(resp.Choices) == 0 {
		return agent.Completion{}, errors.New("no completion choices returned")
	}
	msg := resp.Choices[0].Message
	completion := agent.Completion{Text: msg.Content}
	for _, call := range msg.ToolCalls {
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			continue
		}
		completion.ToolCalls = append(completion.ToolCalls, agent.ToolCall{
			ID:        call.ID,
			Name:      name,
			Arguments: normalizeArguments(call.Function.Arguments),
		})
	}
	return completion, nil
}

func (c *Client) Stream(ctx context.Context, prompt agent.Prompt, onEvent func(agent.StreamEvent)) error {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.resolveModel(prompt.Model)),
		Messages: toChatMessages(prompt.Messages),
	}
	if len(prompt.Tools) > 0 {
		params.Tools = toChatTools(prompt.Tools)
		params.ParallelToolCalls = openai.Bool(prompt.ParallelToolCalls)
	}

	stream := c.api.Chat.Completions.NewStreaming(ctx, params)
	collector := newToolCallCollector()

	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				onEvent(agent.StreamEvent{Type: agent.StreamEventTextDelta, Text: choice.Delta.Content})
			}
			for _, call := range choice.Delta.ToolCalls {
				collector.Add(call.Index, call.ID, call.Function.Name, call.Function.Arguments)
			}
			switch choice.FinishReason {
			case "tool_calls", "function_call":
				for _, call := range collector.Flush() {
					onEvent(agent.StreamEvent{Type: agent.StreamEventToolCall, Call: call})
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return wrapHTTPError(err)
	}
	for _, call := range collector.Flush() {
		onEvent(agent.StreamEvent{Type: agent.StreamEventToolCall, Call: call})
	}
	onEvent(agent.StreamEvent{Type: agent.StreamEventCompleted})
	return nil
}

func toChatMessages(msgs []agent.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case agent.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case agent.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{
				ToolCalls: toAssistantToolCalls(msg.ToolCalls),
			}
			if content := strings.TrimSpace(msg.Content); content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(content),
				}
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case agent.RoleTool:
			if msg.ToolResult == nil {
				continue
			}
			content := msg.ToolResult.Content
			if content == "" {
				content = "{}"
			}
			out = append(out, openai.ToolMessage(content, msg.ToolResult.ToolCallID))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func toAssistantToolCalls(calls []agent.ToolCall) []openai.ChatCompletionMessageToolCallUnionParam {
	out := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(calls))
	for _, call := range calls {
		args := strings.TrimSpace(string(call.Arguments))
		if args == "" {
			args = "{}"
		}
		out = append(out, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: call.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      call.Name,
					Arguments: args,
				},
			},
		})
	}
	return out
}

func toChatTools(specs []agent.ToolSpec) []openai.ChatCompletionToolUnionParam {
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			continue
		}
		fn := shared.FunctionDefinitionParam{
			Name:       name,
			Parameters: spec.Parameters,
			Strict:     openai.Bool(true),
		}
		if desc := strings.TrimSpace(spec.Description); desc != "" {
			fn.Description = openai.String(desc)
		}
		tools = append(tools, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: fn,
			},
		})
	}
	return tools
}

func wrapHTTPError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		respDump := strings.TrimSpace(string(apiErr.DumpResponse(true)))
		if respDump != "" {
			return fmt.Errorf("http_%d: %s", apiErr.StatusCode, respDump)
		}
		raw := strings.TrimSpace(apiErr.RawJSON())
		if raw != "" {
			return fmt.Errorf("http_%d: %s", apiErr.StatusCode, raw)
		}
		return fmt.Errorf("http_%d: %v", apiErr.StatusCode, err)
	}
	return err
}

func normalizeArguments(args string) json.RawMessage {
	trimmed := strings.TrimSpace(args)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(trimmed)
}

// toolCallCollector 聚合按 index 分片下发的工具调用增量。
// 首个分片携带 id 和函数名，后续分片只有参数片段。
type toolCallCollector struct {
	calls map[int64]*pendingToolCall
	order []int64
}

type pendingToolCall struct {
	ID   string
	Name string
	Args strings.Builder
}

func newToolCallCollector() *toolCallCollector {
	return &toolCallCollector{
		calls: make(map[int64]*pendingToolCall),
	}
}

func (c *toolCallCollector) Add(index int64, id, name, args string) {
	if id == "" && name == "" && args == "" {
		return
	}
	entry := c.calls[index]
	if entry == nil {
		entry = &pendingToolCall{}
		c.calls[index] = entry
		c.order = append(c.order, index)
	}
	if id != "" {
		entry.ID = id
	}
	if name != "" {
		entry.Name = name
	}
	if args != "" {
		entry.Args.WriteString(args)
	}
}

func (c *toolCallCollector) Flush() []*agent.ToolCall {
	if len(c.calls) == 0 {
		return nil
	}
	out := make([]*agent.ToolCall, 0, len(c.calls))
	for _, index := range c.order {
		call := c.calls[index]
		if call == nil || strings.TrimSpace(call.Name) == "" {
			continue
		}
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call-%d", index+1)
		}
		out = append(out, &agent.ToolCall{
			ID:        id,
			Name:      call.Name,
			Arguments: normalizeArguments(call.Args.String()),
		})
	}
	c.calls = make(map[int64]*pendingToolCall)
	c.order = nil
	return out
}
