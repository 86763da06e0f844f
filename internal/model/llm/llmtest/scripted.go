// Package llmtest 测试用的脚本化 Completion Service
package llmtest

import (
	"context"
	"sync"

	"tutor-platform/internal/model/llm"
	"tutor-platform/pkg/errors"
)

// Step 一次调用的预设返回
type Step struct {
	Completion *llm.Completion
	Err        error
}

// Scripted 按顺序返回预设结果；脚本耗尽后返回 INTERNAL_ERROR
type Scripted struct {
	mu    sync.Mutex
	steps []Step
	Calls [][]llm.Message // 每次调用收到的消息（副本）
	Tools [][]llm.ToolSpec
}

// New 创建脚本化客户端
func New(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

// Text 返回最终文本
func Text(s string) Step { return Step{Completion: &llm.Completion{Content: s}} }

// Call 返回一次工具调用
func Call(id, name string, args map[string]any) Step {
	return Step{Completion: &llm.Completion{ToolCalls: []llm.ToolCall{{ID: id, Name: name, Arguments: args}}}}
}

// Fail 返回错误
func Fail(err error) Step { return Step{Err: err} }

func (s *Scripted) Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec, opts llm.Options) (*llm.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, append([]llm.Message(nil), messages...))
	s.Tools = append(s.Tools, append([]llm.ToolSpec(nil), tools...))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.steps) == 0 {
		return nil, errors.New(errors.CodeInternal, "script exhausted")
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step.Completion, step.Err
}

// CallCount 已发生的调用次数
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

func (s *Scripted) Model() string    { return "scripted" }
func (s *Scripted) Provider() string { return "scripted" }
