package llm

import (
	"context"
	"fmt"
	"os"
)

// Role 消息角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message 对话消息；Role=tool 时 ToolCallID/Name 指向被回填的调用
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"` // 仅 assistant
}

// ToolCall 模型发起的一次工具调用
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolSpec 提供给模型的工具声明，Parameters 为 JSON Schema（object）
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Completion 一次补全结果：要么有最终文本，要么有工具调用（二者可同时出现）
type Completion struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Options 生成选项
type Options struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// Client Completion Service：给定消息与可用工具，返回文本或工具调用。
// 错误统一为 pkg/errors 错误码：UPSTREAM_TIMEOUT / UPSTREAM_UNAVAILABLE / RATE_LIMITED 可重试。
type Client interface {
	Complete(ctx context.Context, messages []Message, tools []ToolSpec, opts Options) (*Completion, error)
	// Model 返回模型名称
	Model() string
	// Provider 返回提供商名称
	Provider() string
}

// Config 远程 provider 配置
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NewClient 创建远程 LLM 客户端；qwen 等 OpenAI 兼容端点走 openai 分支
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiClient(cfg.Model, cfg.APIKey, cfg.BaseURL)
	case "claude":
		return NewClaudeClient(cfg.Model, cfg.APIKey, cfg.BaseURL)
	case "openai", "qwen":
		return NewOpenAIClient(ctx, cfg.Model, cfg.APIKey, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// baseURLOr 依次取显式配置、环境变量、默认值
func baseURLOr(explicit, envKey, def string) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return def
}
