package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"relay-chat/internal/agent"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type Options struct {
	Token   string
	BaseURL string
	Model   string
}

// messageStream 抽象流式响应，便于测试注入。
type messageStream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
}

type Client struct {
	api       *anthropic.Client
	model     string
	newStream func(ctx context.Context, params anthropic.MessageNewParams) messageStream
}

var _ agent.ModelClient = (*Client)(nil)

func New(opts Options) (*Client, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, errors.New("missing token")
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(token),
	}
	if base := normalizeBaseURL(opts.BaseURL); base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}
	client := anthropic.NewClient(reqOpts...)
	c := &Client{
		api:   &client,
		model: strings.TrimSpace(opts.Model),
	}
	c.newStream = func(ctx context.Context, params anthropic.MessageNewParams) messageStream {
		return c.api.Messages.NewStreaming(ctx, params)
	}
	return c, nil
}

func normalizeBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/v1") {
		base = strings.TrimSuffix(base, "/v1")
		base = strings.TrimRight(base, "/")
	}
	return base
}

func (c *Client) resolveModel(m string) anthropic.Model {
	if strings.TrimSpace(m) != "" {
		return anthropic.Model(strings.TrimSpace(m))
	}
	return anthropic.Model(c.model)
}

func (c *Client) Complete(ctx context.Context, prompt agent.Prompt) (agent.Completion, error) {
	params := buildMessageParams(prompt, c.resolveModel(prompt.Model))
	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return agent.Completion{}, err
	}

	completion := agent.Completion{}
	var text strings.Builder
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(v.Text)
		case anthropic.ToolUseBlock:
			completion.ToolCalls = append(completion.ToolCalls, agent.ToolCall{
				ID:        v.ID,
				Name:      v.Name,
				Arguments: normalizeInput(v.Input),
			})
		}
	}
	completion.Text = strings.TrimSpace(text.String())
	return completion, nil
}

func (c *Client) Stream(ctx context.Context, prompt agent.Prompt, onEvent func(agent.StreamEvent)) error {
	params := buildMessageParams(prompt, c.resolveModel(prompt.Model))
	stream := c.newStream(ctx, params)
	state := newToolUseStreamState()

	for stream.Next() {
		event := stream.Current()
		switch v := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			state.Handle(v, onEvent)
		case anthropic.ContentBlockDeltaEvent:
			switch d := v.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if d.Text != "" {
					onEvent(agent.StreamEvent{Type: agent.StreamEventTextDelta, Text: d.Text})
				}
			case anthropic.InputJSONDelta:
				state.Handle(v, onEvent)
			}
		case anthropic.ContentBlockStopEvent:
			state.Handle(v, onEvent)
		case anthropic.MessageStopEvent:
			state.Handle(v, onEvent)
			return nil
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}
	state.flush(onEvent)
	onEvent(agent.StreamEvent{Type: agent.StreamEventCompleted})
	return nil
}

// toolUseStreamState 聚合 tool_use 块的 input_json_delta 分片，块结束时上报完整调用。
type toolUseStreamState struct {
	pending map[int64]*pendingToolUse
	order   []int64
}

type pendingToolUse struct {
	id   string
	name string
	args strings.Builder
}

func newToolUseStreamState() *toolUseStreamState {
	return &toolUseStreamState{pending: make(map[int64]*pendingToolUse)}
}

func (s *toolUseStreamState) Handle(event any, onEvent func(agent.StreamEvent)) {
	switch v := event.(type) {
	case anthropic.ContentBlockStartEvent:
		switch b := v.ContentBlock.AsAny().(type) {
		case anthropic.ToolUseBlock:
			entry := &pendingToolUse{id: b.ID, name: b.Name}
			if raw := strings.TrimSpace(string(b.Input)); raw != "" && raw != "{}" {
				entry.args.WriteString(raw)
			}
			s.pending[v.Index] = entry
			s.order = append(s.order, v.Index)
		}
	case anthropic.ContentBlockDeltaEvent:
		switch d := v.Delta.AsAny().(type) {
		case anthropic.InputJSONDelta:
			if entry := s.pending[v.Index]; entry != nil {
				entry.args.WriteString(d.PartialJSON)
			}
		}
	case anthropic.ContentBlockStopEvent:
		s.emit(v.Index, onEvent)
	case anthropic.MessageStopEvent:
		s.flush(onEvent)
		onEvent(agent.StreamEvent{Type: agent.StreamEventCompleted})
	}
}

func (s *toolUseStreamState) emit(index int64, onEvent func(agent.StreamEvent)) {
	entry := s.pending[index]
	if entry == nil {
		return
	}
	delete(s.pending, index)
	onEvent(agent.StreamEvent{Type: agent.StreamEventToolCall, Call: entry.toCall()})
}

func (s *toolUseStreamState) flush(onEvent func(agent.StreamEvent)) {
	for _, index := range s.order {
		s.emit(index, onEvent)
	}
	s.order = nil
}

func (p *pendingToolUse) toCall() *agent.ToolCall {
	return &agent.ToolCall{
		ID:        p.id,
		Name:      p.name,
		Arguments: normalizeInput(json.RawMessage(p.args.String())),
	}
}

func buildMessageParams(prompt agent.Prompt, model anthropic.Model) anthropic.MessageNewParams {
	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam

	for _, msg := range prompt.Messages {
		switch msg.Role {
		case agent.RoleSystem:
			if text := strings.TrimSpace(msg.Content); text != "" {
				system = append(system, anthropic.TextBlockParam{Text: text})
			}
		case agent.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if strings.TrimSpace(msg.Content) != "" || len(msg.ToolCalls) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, decodeInput(call.Arguments), call.Name))
			}
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		case agent.RoleTool:
			if msg.ToolResult == nil {
				continue
			}
			isError := strings.HasPrefix(msg.ToolResult.Content, "ERROR:")
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolResult.ToolCallID, msg.ToolResult.Content, isError),
			))
		default:
			if text := strings.TrimSpace(msg.Content); text != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			}
		}
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: 4096,
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(prompt.Tools) > 0 {
		params.Tools = toTools(prompt.Tools)
	}
	return params
}

func toTools(specs []agent.ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			continue
		}
		schema := anthropic.ToolInputSchemaParam{}
		schema.Type = schema.Type.Default()
		if props, ok := spec.Parameters["properties"]; ok {
			schema.Properties = props
		}
		switch required := spec.Parameters["required"].(type) {
		case []string:
			schema.Required = required
		case []any:
			for _, item := range required {
				if s, ok := item.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}
		tool := anthropic.ToolParam{
			Name:        name,
			InputSchema: schema,
		}
		if desc := strings.TrimSpace(spec.Description); desc != "" {
			tool.Description = anthropic.String(desc)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out
}

func normalizeInput(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(trimmed)
}

func decodeInput(raw json.RawMessage) any {
	var input any = map[string]any{}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return input
	}
	if err := json.Unmarshal([]byte(trimmed), &input); err != nil {
		return map[string]any{"__raw": trimmed}
	}
	return input
}
