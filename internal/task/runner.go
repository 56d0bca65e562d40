package task

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"relay-chat/internal/agent"
	"relay-chat/internal/logger"
	"relay-chat/internal/tools"
)

const (
	// DefaultMaxIterations 引擎往返次数的硬上限，防止工具调用无限循环。
	DefaultMaxIterations = 5
	// DefaultHeartbeat 保活推送间隔。
	DefaultHeartbeat = 30 * time.Second
	// DefaultRetention 终态任务在表中保留的时长。
	DefaultRetention = 10 * time.Minute
)

// ToolFlags 每个任务创建时解析一次的工具开关。
type ToolFlags struct {
	SearchEnabled bool
	CodeEnabled   bool
}

func (f ToolFlags) allows(name string) bool {
	switch name {
	case "web_search":
		return f.SearchEnabled
	case "execute_python":
		return f.CodeEnabled
	default:
		return false
	}
}

// Sink 落盘已完成的助手消息，每个任务最多调用一次。
type Sink interface {
	Append(conversationID, role, text string) error
}

// Runner 驱动单个任务的控制循环。每个任务在创建时启动一个 goroutine，
// 此后不会被外部重入，是任务可变字段的唯一写入方。
type Runner struct {
	Client   agent.ModelClient
	Model    string
	Tools    *tools.Registry
	Sink     Sink
	Broker   *Broker
	Registry *Registry

	MaxIterations int
	Heartbeat     time.Duration
	Retention     time.Duration
}

func (r *Runner) maxIterations() int {
	if r.MaxIterations > 0 {
		return r.MaxIterations
	}
	return DefaultMaxIterations
}

func (r *Runner) heartbeatInterval() time.Duration {
	if r.Heartbeat > 0 {
		return r.Heartbeat
	}
	return DefaultHeartbeat
}

func (r *Runner) retention() time.Duration {
	if r.Retention > 0 {
		return r.Retention
	}
	return DefaultRetention
}

// Start 创建任务并异步执行，立即返回任务 id，从不等待引擎。
func (r *Runner) Start(conversationID string, messages []agent.Message, flags ToolFlags) string {
	t := r.Registry.Create(conversationID)
	go r.run(t, messages, flags)
	return t.ID
}

func (r *Runner) run(t *Task, messages []agent.Message, flags ToolFlags) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("task %s panicked: %v", t.ID, rec)
			r.Broker.Fail(t, fmt.Sprintf("internal error: %v", rec))
		}
		r.Registry.ScheduleRemoval(t.ID, r.retention())
	}()

	stopHeartbeat := r.startHeartbeat(t)
	defer stopHeartbeat()

	if err := r.loop(context.Background(), t, messages, flags); err != nil {
		log.Errorf("task %s failed: %v", t.ID, err)
		r.Broker.Fail(t, err.Error())
		return
	}

	text := t.FullText()
	if text != "" && r.Sink != nil {
		if err := r.Sink.Append(t.ConversationID, "assistant", text); err != nil {
			log.Warnf("task %s persistence failed: %v", t.ID, err)
		}
	}
	r.Broker.Complete(t)
	log.Infof("task %s completed, %d fragments", t.ID, t.FragmentCount())
}

// loop 每轮决定流式或非流式。没有启用任何工具时从第一轮起就流式；
// 启用了工具时第一轮用非流式拿到完整的结构化工具调用，之后的轮次一律流式
// 且不再提供工具。流以纯文本结束即任务结束。
func (r *Runner) loop(ctx context.Context, t *Task, messages []agent.Message, flags ToolFlags) error {
	specs := r.enabledTools(flags)
	maxIter := r.maxIterations()

	for iteration := 1; iteration <= maxIter; iteration++ {
		if len(specs) > 0 && iteration == 1 {
			logger.LLMLog.Request(r.Model, agent.ToLLMMessages(messages), iteration)
			completion, err := r.Client.Complete(ctx, agent.Prompt{
				Model:    r.Model,
				Messages: messages,
				Tools:    specs,
			})
			if err != nil {
				logger.LLMLog.Error(r.Model, err, iteration)
				return err
			}
			logger.LLMLog.Response(r.Model, completion.Text, len(completion.ToolCalls), iteration)
			if len(completion.ToolCalls) == 0 {
				if completion.Text != "" {
					r.Broker.Publish(t, completion.Text)
				}
				return nil
			}
			messages = append(messages, agent.Message{
				Role:      agent.RoleAssistant,
				Content:   completion.Text,
				ToolCalls: completion.ToolCalls,
			})
			results, err := r.dispatch(ctx, t, completion.ToolCalls)
			if err != nil {
				return err
			}
			messages = append(messages, results...)
			continue
		}

		logger.LLMLog.Request(r.Model, agent.ToLLMMessages(messages), iteration)
		var streamed strings.Builder
		var calls []agent.ToolCall
		err := r.Client.Stream(ctx, agent.Prompt{
			Model:    r.Model,
			Messages: messages,
		}, func(ev agent.StreamEvent) {
			switch ev.Type {
			case agent.StreamEventTextDelta:
				if ev.Text == "" {
					return
				}
				streamed.WriteString(ev.Text)
				index := r.Broker.Publish(t, ev.Text)
				logger.LLMLog.StreamChunk(r.Model, ev.Text, index)
			case agent.StreamEventToolCall:
				if ev.Call != nil {
					calls = append(calls, *ev.Call)
				}
			}
		})
		if err != nil {
			logger.LLMLog.Error(r.Model, err, iteration)
			return err
		}
		logger.LLMLog.StreamComplete(r.Model, iteration)
		if len(calls) == 0 {
			return nil
		}

		// 没有提供工具模型仍然可能发起调用，执行后继续下一轮。
		messages = append(messages, agent.Message{
			Role:      agent.RoleAssistant,
			Content:   streamed.String(),
			ToolCalls: calls,
		})
		results, err := r.dispatch(ctx, t, calls)
		if err != nil {
			return err
		}
		messages = append(messages, results...)
	}

	log.Warnf("task %s hit iteration ceiling %d, completing with accumulated text", t.ID, maxIter)
	return nil
}

// dispatch 顺序执行每个工具调用，保证转写的确定性。
// 工具层面的失败已经在网关内编码为结果文本，只有未知工具名会让任务失败。
func (r *Runner) dispatch(ctx context.Context, t *Task, calls []agent.ToolCall) ([]agent.Message, error) {
	results := make([]agent.Message, 0, len(calls))
	for _, call := range calls {
		r.Broker.Publish(t, fmt.Sprintf("\n[executing tool %s...]\n", call.Name))

		args := call.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		result, err := r.Tools.Invoke(ctx, call.Name, args)
		if err != nil {
			return nil, err
		}
		log.Infof("task %s tool %s returned %d bytes", t.ID, call.Name, len(result))
		results = append(results, agent.ToolResultMessage(call.ID, call.Name, result))
	}
	return results, nil
}

func (r *Runner) enabledTools(flags ToolFlags) []agent.ToolSpec {
	if r.Tools == nil {
		return nil
	}
	var specs []agent.ToolSpec
	for _, spec := range r.Tools.Specs() {
		if flags.allows(spec.Name) {
			specs = append(specs, spec)
		}
	}
	return specs
}

func (r *Runner) startHeartbeat(t *Task) func() {
	ticker := time.NewTicker(r.heartbeatInterval())
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.Broker.Heartbeat(t)
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}
