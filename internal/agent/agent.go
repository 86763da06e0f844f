// Package agent 子 Agent：领域 system prompt + 工具子集 + 共享 Completion Service 的有界推理/工具循环
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tutor-platform/internal/agent/tools"
	"tutor-platform/internal/model/llm"
	"tutor-platform/internal/runtime/session"
	"tutor-platform/pkg/errors"
	"tutor-platform/pkg/log"
	"tutor-platform/pkg/metrics"
	"tutor-platform/pkg/retry"
	"tutor-platform/pkg/tracing"
)

// DefaultMaxIterations 单次 Run 的最大循环轮数（一次补全 + 其工具调用算一轮）
const DefaultMaxIterations = 5

// RunInput 单次 Run 的输入
type RunInput struct {
	Query   string
	History []session.Turn // 已由调用方截断到 history_limit
}

// ToolTrace 一次工具调用的记录（debug_info 使用）
type ToolTrace struct {
	Iteration  int            `json:"iteration"`
	ToolName   string         `json:"tool_name"`
	Arguments  map[string]any `json:"arguments"`
	Success    bool           `json:"success"`
	Value      any            `json:"value,omitempty"`
	Error      string         `json:"error,omitempty"`
	Code       errors.Code    `json:"code,omitempty"`
	DurationMs float64        `json:"duration_ms"`
}

// AgentResponse 子 Agent 成功运行的结果；Confidence 由编排器按路由决策填写
type AgentResponse struct {
	Answer     string      `json:"answer"`
	Agent      Kind        `json:"agent"`
	ToolsUsed  []string    `json:"tools_used"`
	Confidence float64     `json:"confidence"`
	Reasoning  string      `json:"reasoning"`
	Iterations int         `json:"iterations"`
	Trace      []ToolTrace `json:"trace,omitempty"`
}

// SubAgent 固定能力接口；具体变体由 Kind 决定
type SubAgent interface {
	Name() Kind
	SystemPrompt() string
	Tools() *tools.Registry
	Run(ctx context.Context, in RunInput) (*AgentResponse, error)
}

// Agent SubAgent 的通用实现
type Agent struct {
	kind          Kind
	prompt        string
	tools         *tools.Registry
	client        llm.Client
	maxIterations int
	toolPolicy    retry.Policy
	options       llm.Options
	logger        *log.Logger
}

// AgentOption 可选配置
type AgentOption func(*Agent)

// WithMaxIterations 设置单次 Run 最大轮数
func WithMaxIterations(n int) AgentOption {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithToolPolicy 设置工具调用的超时与重试策略
func WithToolPolicy(p retry.Policy) AgentOption {
	return func(a *Agent) { a.toolPolicy = p }
}

// WithCompletionOptions 设置补全选项（温度、最大 token）
func WithCompletionOptions(o llm.Options) AgentOption {
	return func(a *Agent) { a.options = o }
}

// WithLogger 设置日志器
func WithLogger(l *log.Logger) AgentOption {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

func newAgent(kind Kind, prompt string, registry *tools.Registry, client llm.Client, opts ...AgentOption) *Agent {
	a := &Agent{
		kind:          kind,
		prompt:        prompt,
		tools:         registry,
		client:        client,
		maxIterations: DefaultMaxIterations,
		toolPolicy:    retry.DefaultPolicy(),
		logger:        log.Nop(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Agent) Name() Kind             { return a.kind }
func (a *Agent) SystemPrompt() string   { return a.prompt }
func (a *Agent) Tools() *tools.Registry { return a.tools }

// Run 有界循环：补全 → 若有工具调用则经注册表执行并回填 → 重复，直到最终回答或超出轮数。
// UNKNOWN_TOOL 与 INVALID_TOOL_ARGUMENTS 立即终止；工具自身错误以失败结果回填给模型。
func (a *Agent) Run(ctx context.Context, in RunInput) (resp *AgentResponse, err error) {
	ctx, span := tracing.StartAgentSpan(ctx, string(a.kind))
	defer func() { tracing.EndSpan(span, err) }()
	logger := log.FromContext(ctx, a.logger).With("agent", string(a.kind))

	messages := a.initialMessages(in)
	specs := toolSpecs(a.tools)
	out := &AgentResponse{Agent: a.kind, ToolsUsed: []string{}}

	for iter := 1; iter <= a.maxIterations; iter++ {
		// 轮次之间的取消检查点
		if cerr := ctx.Err(); cerr != nil {
			return nil, errors.FromContext(cerr)
		}
		out.Iterations = iter

		completion, cerr := a.client.Complete(ctx, messages, specs, a.options)
		if cerr != nil {
			logger.Debug("completion failed", "iteration", iter, "error", cerr)
			return nil, cerr
		}

		if len(completion.ToolCalls) == 0 {
			answer := strings.TrimSpace(completion.Content)
			if answer == "" {
				return nil, errors.New(errors.CodeUpstreamUnavailable, "the language model returned an empty answer")
			}
			out.Answer = answer
			out.Reasoning = summarize(out)
			metrics.ToolLoopIterations.WithLabelValues(string(a.kind)).Observe(float64(iter))
			logger.Debug("final answer", "iteration", iter, "tools_used", out.ToolsUsed)
			return out, nil
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: completion.Content, ToolCalls: completion.ToolCalls})
		for _, call := range completion.ToolCalls {
			res, terr := a.invoke(ctx, iter, call, out)
			if terr != nil {
				return nil, terr
			}
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    encodeResult(res),
			})
		}
	}

	metrics.ToolLoopIterations.WithLabelValues(string(a.kind)).Observe(float64(a.maxIterations))
	return nil, errors.Newf(errors.CodeToolLoopExceeded, "no final answer after %d iterations", a.maxIterations).
		WithDetails(map[string]any{"agent": string(a.kind), "tools_used": out.ToolsUsed})
}

// invoke 执行一次工具调用并记录；返回非 nil error 表示循环必须终止
func (a *Agent) invoke(ctx context.Context, iter int, call llm.ToolCall, out *AgentResponse) (tools.Result, error) {
	tctx, span := tracing.StartToolSpan(ctx, call.Name, iter)
	start := time.Now()
	res, err := retry.Do(tctx, a.toolPolicy, func(ctx context.Context) (tools.Result, error) {
		return a.tools.Invoke(ctx, tools.Invocation{ToolName: call.Name, Arguments: call.Arguments})
	}, nil)
	tracing.EndSpan(span, err)

	if err != nil {
		e := errors.AsError(err)
		res = tools.Result{ToolName: call.Name, Success: false, Error: e.Message, Code: e.Code}
	}
	out.ToolsUsed = append(out.ToolsUsed, call.Name)
	out.Trace = append(out.Trace, ToolTrace{
		Iteration:  iter,
		ToolName:   call.Name,
		Arguments:  call.Arguments,
		Success:    res.Success,
		Value:      res.Value,
		Error:      res.Error,
		Code:       res.Code,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000,
	})
	log.FromContext(ctx, a.logger).Debug("tool invoked",
		"agent", string(a.kind), "iteration", iter, "tool", call.Name, "success", res.Success, "code", res.Code)

	if err == nil {
		return res, nil
	}
	switch errors.CodeOf(err) {
	case errors.CodeUnknownTool, errors.CodeInvalidToolArguments:
		return res, errors.AsError(err).WithDetails(map[string]any{"agent": string(a.kind), "iteration": iter})
	case errors.CodeCancelled:
		return res, err
	}
	if ctx.Err() != nil {
		return res, errors.FromContext(ctx.Err())
	}
	return res, nil
}

func (a *Agent) initialMessages(in RunInput) []llm.Message {
	msgs := make([]llm.Message, 0, 2+2*len(in.History))
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: a.prompt})
	for _, t := range in.History {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: t.QueryText},
			llm.Message{Role: llm.RoleAssistant, Content: t.AnswerText},
		)
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: in.Query})
}

func toolSpecs(r *tools.Registry) []llm.ToolSpec {
	if r == nil {
		return nil
	}
	schemas := r.SchemasForLLM()
	specs := make([]llm.ToolSpec, 0, len(schemas))
	for _, s := range schemas {
		specs = append(specs, llm.ToolSpec{Name: s.Name, Description: s.Description, Parameters: s.Parameters})
	}
	return specs
}

func encodeResult(res tools.Result) string {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Sprintf(`{"tool_name":%q,"success":false,"error":"result could not be encoded"}`, res.ToolName)
	}
	return string(data)
}

// summarize 生成对外的 reasoning 摘要，不包含 prompt 内容
func summarize(r *AgentResponse) string {
	if len(r.ToolsUsed) == 0 {
		return fmt.Sprintf("The %s agent answered directly without using tools.", r.Agent)
	}
	failed := 0
	for _, t := range r.Trace {
		if !t.Success {
			failed++
		}
	}
	s := fmt.Sprintf("The %s agent used %s over %d iteration(s)", r.Agent, strings.Join(r.ToolsUsed, ", "), r.Iterations)
	if failed > 0 {
		s += fmt.Sprintf("; %d tool call(s) failed and were reported back to the model", failed)
	}
	return s + "."
}
