package agent

import (
	"fmt"

	"tutor-platform/internal/agent/tools"
	"tutor-platform/internal/model/llm"
)

// Kind 子 Agent 变体标签（封闭集合）
type Kind string

const (
	KindMath    Kind = "math"
	KindPhysics Kind = "physics"
	KindGeneral Kind = "general"
)

// Kinds 全部变体，按声明顺序
func Kinds() []Kind { return []Kind{KindMath, KindPhysics, KindGeneral} }

// ParseKind 解析变体名
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

const mathPrompt = `You are an expert math tutor. Give clear, educational answers and show the steps of a solution when it helps.
Whenever the question needs arithmetic, call the calculator tool with a plain arithmetic expression (numbers, + - * / ^ and parentheses only) instead of computing it yourself, then explain the result.
If a tool reports an error, explain the problem to the student or correct the expression and try again.`

const physicsPrompt = `You are an expert physics tutor. Explain concepts clearly and relate them to everyday examples where possible.
Use the lookup tool to fetch the exact value and unit of physical constants or the form of standard formulas rather than quoting them from memory.
Use the calculator tool for any numeric computation. Always state units in the final answer.`

const generalPrompt = `You are a friendly academic tutor. Answer the student's question clearly and concisely.
If the question is about mathematics or physics, answer it as well as you can and suggest asking a more specific math or physics question for a detailed, tool-checked solution.`

// toolsFor 各变体允许使用的工具
func toolsFor(k Kind) []string {
	switch k {
	case KindMath:
		return []string{tools.CalculatorName}
	case KindPhysics:
		return []string{tools.LookupName, tools.CalculatorName}
	default:
		return nil
	}
}

func promptFor(k Kind) string {
	switch k {
	case KindMath:
		return mathPrompt
	case KindPhysics:
		return physicsPrompt
	default:
		return generalPrompt
	}
}

// New 按变体标签构造子 Agent；工具子集取自 registry
func New(kind Kind, client llm.Client, registry *tools.Registry, opts ...AgentOption) (SubAgent, error) {
	if _, ok := ParseKind(string(kind)); !ok {
		return nil, fmt.Errorf("unknown agent kind %q", kind)
	}
	sub, err := registry.Subset(toolsFor(kind)...)
	if err != nil {
		return nil, err
	}
	return newAgent(kind, promptFor(kind), sub, client, opts...), nil
}

// NewSet 构造全部变体
func NewSet(client llm.Client, registry *tools.Registry, opts ...AgentOption) (map[Kind]SubAgent, error) {
	set := make(map[Kind]SubAgent, len(Kinds()))
	for _, k := range Kinds() {
		a, err := New(k, client, registry, opts...)
		if err != nil {
			return nil, err
		}
		set[k] = a
	}
	return set, nil
}
