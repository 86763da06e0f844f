package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"tutor-platform/pkg/errors"
)

// ClaudeClient Claude 客户端（Messages API + tool_use）
type ClaudeClient struct {
	provider string
	model    string
	apiKey   string
	baseURL  string
	client   *resty.Client
}

const claudeAPIVersion = "2023-06-01"

// NewClaudeClient 创建新的 Claude 客户端
func NewClaudeClient(model, apiKey, baseURL string) (*ClaudeClient, error) {
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	if apiKey == "" {
		return nil, errors.New(errors.CodeInternal, "claude api key is empty")
	}

	client := resty.New()
	client.SetTimeout(60 * time.Second)

	return &ClaudeClient{
		provider: "claude",
		model:    model,
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURLOr(baseURL, "ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"), "/"),
		client:   client,
	}, nil
}

type claudeBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

type claudeMessage struct {
	Role    string        `json:"role"`
	Content []claudeBlock `json:"content"`
}

// Complete 实现 Client
func (c *ClaudeClient) Complete(ctx context.Context, messages []Message, tools []ToolSpec, opts Options) (*Completion, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	var system []string
	var msgs []claudeMessage
	// 连续的 tool 结果需要合并到同一条 user 消息
	appendBlock := func(role string, b claudeBlock) {
		if n := len(msgs); n > 0 && msgs[n-1].Role == role && role == "user" && b.Type == "tool_result" {
			msgs[n-1].Content = append(msgs[n-1].Content, b)
			return
		}
		msgs = append(msgs, claudeMessage{Role: role, Content: []claudeBlock{b}})
	}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleUser:
			appendBlock("user", claudeBlock{Type: "text", Text: m.Content})
		case RoleAssistant:
			msg := claudeMessage{Role: "assistant"}
			if m.Content != "" {
				msg.Content = append(msg.Content, claudeBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := tc.Arguments
				if input == nil {
					input = map[string]any{}
				}
				msg.Content = append(msg.Content, claudeBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
			}
			msgs = append(msgs, msg)
		case RoleTool:
			appendBlock("user", claudeBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content})
		}
	}

	request := map[string]interface{}{
		"model":      c.model,
		"messages":   msgs,
		"max_tokens": maxTokens,
	}
	if len(system) > 0 {
		request["system"] = strings.Join(system, "\n\n")
	}
	if opts.Temperature > 0 {
		request["temperature"] = opts.Temperature
	}
	if len(tools) > 0 {
		specs := make([]map[string]any, 0, len(tools))
		for _, t := range tools {
			specs = append(specs, map[string]any{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": t.Parameters,
			})
		}
		request["tools"] = specs
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-api-key", c.apiKey).
		SetHeader("anthropic-version", claudeAPIVersion).
		SetBody(request).
		Post(c.baseURL + "/messages")
	if err != nil {
		return nil, transportError(c.provider, err)
	}
	if response.StatusCode() != http.StatusOK {
		// 529 overloaded 归入不可用
		return nil, statusError(c.provider, response.StatusCode(), response.String())
	}

	var result struct {
		Content []claudeBlock `json:"content"`
	}
	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return nil, errors.WithCode(err, errors.CodeUpstreamUnavailable, "invalid claude response")
	}

	out := &Completion{}
	var text []string
	for _, b := range result.Content {
		switch b.Type {
		case "text":
			text = append(text, b.Text)
		case "tool_use":
			args := b.Input
			if args == nil {
				args = map[string]any{}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}
	out.Content = strings.Join(text, "")
	return out, nil
}

// Ping 查询模型元数据
func (c *ClaudeClient) Ping(ctx context.Context) error {
	return pingModel(ctx, c.client, c.provider, c.baseURL+"/models/"+c.model, map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": claudeAPIVersion,
	})
}

// Model 返回模型名称
func (c *ClaudeClient) Model() string {
	return c.model
}

// Provider 返回提供商名称
func (c *ClaudeClient) Provider() string {
	return c.provider
}
