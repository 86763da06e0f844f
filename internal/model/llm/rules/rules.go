// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rules 离线规则 Completion Service：按问题文本决定工具调用并根据工具结果生成回答。
// 不访问网络，用于本地开发、CLI 演示与测试。
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"tutor-platform/internal/model/llm"
)

const (
	toolCalculator = "calculator"
	toolLookup     = "lookup"
)

// Client 规则驱动的 llm.Client
type Client struct{}

// New 创建规则客户端
func New() *Client { return &Client{} }

func (c *Client) Model() string    { return "rules-v1" }
func (c *Client) Provider() string { return "rules" }

// toolOutcome 回填消息中的工具结果（与工具注册表 Result 的 JSON 形状一致）
type toolOutcome struct {
	ToolName string         `json:"tool_name"`
	Success  bool           `json:"success"`
	Value    map[string]any `json:"value"`
	Error    string         `json:"error"`
	Code     string         `json:"code"`
}

type action struct {
	tool string
	args map[string]any
}

// Complete 按顺序执行计划中尚未完成的工具调用，全部完成后组织回答
func (c *Client) Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec, opts llm.Options) (*llm.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	question, turn := currentTurn(messages)

	available := make(map[string]bool, len(tools))
	for _, t := range tools {
		available[t.Name] = true
	}
	plan := planActions(question, available)

	called := make(map[string]bool)
	var outcomes []toolOutcome
	calls := 0
	for _, m := range turn {
		if m.Role == llm.RoleAssistant {
			for _, tc := range m.ToolCalls {
				called[tc.Name] = true
				calls++
			}
		}
		if m.Role == llm.RoleTool {
			var o toolOutcome
			if err := json.Unmarshal([]byte(m.Content), &o); err != nil {
				o = toolOutcome{ToolName: m.Name, Success: false, Error: m.Content}
			}
			if o.ToolName == "" {
				o.ToolName = m.Name
			}
			outcomes = append(outcomes, o)
		}
	}

	// 工具失败后不再继续调用，直接说明
	failed := false
	for _, o := range outcomes {
		if !o.Success {
			failed = true
		}
	}
	if !failed {
		for _, a := range plan {
			if called[a.tool] {
				continue
			}
			return &llm.Completion{ToolCalls: []llm.ToolCall{{
				ID:        fmt.Sprintf("call_%d", calls+1),
				Name:      a.tool,
				Arguments: a.args,
			}}}, nil
		}
	}
	return &llm.Completion{Content: compose(question, outcomes, len(tools) > 0)}, nil
}

// currentTurn 返回最后一条用户消息及其之后的消息；历史轮次不参与规则判断
func currentTurn(messages []llm.Message) (string, []llm.Message) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleUser {
			return messages[i].Content, messages[i+1:]
		}
	}
	return "", nil
}

func planActions(question string, available map[string]bool) []action {
	var plan []action
	if available[toolLookup] {
		if name, kind, ok := ExtractReference(question); ok {
			plan = append(plan, action{tool: toolLookup, args: map[string]any{"name": name, "kind": kind}})
		}
	}
	if available[toolCalculator] {
		if expr := ExtractExpression(question); expr != "" {
			plan = append(plan, action{tool: toolCalculator, args: map[string]any{"expression": expr}})
		}
	}
	return plan
}

func compose(question string, outcomes []toolOutcome, hadTools bool) string {
	if len(outcomes) == 0 {
		if hadTools {
			return "I could not find a calculation or a known constant or formula in your question. " +
				"Try writing the expression explicitly, for example 12*(3+4), or name the constant or formula you need."
		}
		return "I'm a tutor for math and physics questions. Ask me to evaluate an expression, " +
			"or ask about a physical constant or formula, and I'll walk you through it."
	}
	var parts []string
	for _, o := range outcomes {
		parts = append(parts, describe(o))
	}
	return strings.Join(parts, " ")
}

func describe(o toolOutcome) string {
	if !o.Success {
		switch o.ToolName {
		case toolCalculator:
			return fmt.Sprintf("I couldn't evaluate that expression: %s.", o.Error)
		case toolLookup:
			return fmt.Sprintf("I couldn't find that constant or formula: %s.", o.Error)
		}
		return fmt.Sprintf("The %s tool failed: %s.", o.ToolName, o.Error)
	}
	v := o.Value
	switch o.ToolName {
	case toolCalculator:
		answer := fmt.Sprintf("%v = %v.", v["expression"], v["formatted"])
		if steps := stringList(v["steps"]); len(steps) > 0 {
			answer += " Steps: " + strings.Join(steps, "; ") + "."
		}
		return answer
	case toolLookup:
		if v["kind"] == "formula" {
			return describeFormula(v)
		}
		return fmt.Sprintf("The %v (%v) is %v %v. %v.", v["name"], v["key"], v["formatted"], v["unit"], v["description"])
	}
	raw, _ := json.Marshal(v)
	return string(raw)
}

// stringList 工具结果经 JSON 往返后为 []any
func stringList(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func describeFormula(v map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The formula for %v is %v. %v.", v["name"], v["formula"], v["description"])
	vars, _ := v["variables"].(map[string]any)
	if len(vars) == 0 {
		return b.String()
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	defs := make([]string, 0, len(keys))
	for _, k := range keys {
		defs = append(defs, fmt.Sprintf("%s is %v", k, vars[k]))
	}
	b.WriteString(" Here ")
	b.WriteString(strings.Join(defs, ", "))
	b.WriteString(".")
	return b.String()
}
