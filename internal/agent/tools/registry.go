package tools

import (
	"context"
	"sync"
	"time"

	"tutor-platform/pkg/errors"
	"tutor-platform/pkg/metrics"
)

// Registry 工具注册表；每个子 Agent 持有自己的子集
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry 创建注册表，可直接传入初始工具
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register 注册工具；同名覆盖但保留原有顺序
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List 按注册顺序返回工具
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.tools[name])
	}
	return list
}

// Names 按注册顺序返回工具名
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Subset 以给定工具名构造新的注册表；名称不存在视为配置错误
func (r *Registry) Subset(names ...string) (*Registry, error) {
	sub := NewRegistry()
	for _, name := range names {
		t, ok := r.Get(name)
		if !ok {
			return nil, errors.Newf(errors.CodeUnknownTool, "tool %q is not registered", name)
		}
		sub.Register(t)
	}
	return sub, nil
}

// Invoke 校验并执行一次工具调用。
// 未注册返回 UNKNOWN_TOOL，参数不合法返回 INVALID_TOOL_ARGUMENTS 且不执行工具体；
// 两种情况以及工具自身错误都会同时返回 Success=false 的 Result。
func (r *Registry) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	t, ok := r.Get(inv.ToolName)
	if !ok {
		err := errors.Newf(errors.CodeUnknownTool, "tool %q is not available to this agent", inv.ToolName)
		metrics.ToolInvocationsTotal.WithLabelValues(inv.ToolName, string(err.Code)).Inc()
		return failed(inv.ToolName, err), err
	}
	args := inv.Arguments
	if args == nil {
		args = map[string]any{}
	}
	if err := t.Schema().Validate(args); err != nil {
		metrics.ToolInvocationsTotal.WithLabelValues(inv.ToolName, string(errors.CodeOf(err))).Inc()
		return failed(inv.ToolName, err), err
	}

	start := time.Now()
	value, err := t.Execute(ctx, args)
	metrics.ToolDuration.WithLabelValues(inv.ToolName).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ToolInvocationsTotal.WithLabelValues(inv.ToolName, string(errors.CodeOf(err))).Inc()
		return failed(inv.ToolName, err), err
	}
	metrics.ToolInvocationsTotal.WithLabelValues(inv.ToolName, "ok").Inc()
	return Result{ToolName: inv.ToolName, Success: true, Value: value}, nil
}

// ToolSchemaForLLM 供模型 function calling 使用的工具描述
type ToolSchemaForLLM struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// SchemasForLLM 按注册顺序返回工具描述
func (r *Registry) SchemasForLLM() []ToolSchemaForLLM {
	list := r.List()
	out := make([]ToolSchemaForLLM, 0, len(list))
	for _, t := range list {
		out = append(out, ToolSchemaForLLM{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema().JSONSchema(),
		})
	}
	return out
}
