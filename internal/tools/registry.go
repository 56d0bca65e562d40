package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"relay-chat/internal/agent"
)

// Tool 定义具体工具的执行入口。
type Tool interface {
	Spec() agent.ToolSpec
	Call(ctx context.Context, args json.RawMessage) (string, error)
}

// ErrUnknownTool 模型请求了未注册的工具。该错误会终止整个任务。
var ErrUnknownTool = errors.New("unknown tool")

type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

func (r *Registry) Register(t Tool) {
	if t == nil {
		return
	}
	name := t.Spec().Name
	if name == "" {
		return
	}
	r.mu.Lock()
	if r.tools == nil {
		r.tools = make(map[string]Tool)
	}
	r.tools[name] = t
	r.mu.Unlock()
}

// Specs 按名称排序返回全部工具定义。
func (r *Registry) Specs() []agent.ToolSpec {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]agent.ToolSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, r.tools[name].Spec())
	}
	r.mu.RUnlock()
	return specs
}

// Invoke 执行指定工具。工具自身的执行失败编码进结果文本返回，
// 只有未注册的工具名会以 error 形式上抛。
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	if r == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	result, err := t.Call(ctx, args)
	if err != nil {
		log.WithField("tool", name).Warnf("tool failed: %v", err)
		return "ERROR: " + err.Error(), nil
	}
	return result, nil
}
