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

package llm

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/go-resty/resty/v2"

	"tutor-platform/pkg/errors"
)

// OpenAIClient 基于 eino-ext openai ChatModel 的客户端，兼容 Qwen/DashScope 等 OpenAI 协议端点
type OpenAIClient struct {
	provider string
	model    string
	chat     *openai.ChatModel

	// 健康探测走 resty，补全走 eino
	apiKey  string
	baseURL string
	http    *resty.Client
}

// NewOpenAIClient 创建 OpenAI 兼容客户端；baseURL 为空时用默认或 OPENAI_BASE_URL
func NewOpenAIClient(ctx context.Context, model, apiKey, baseURL string) (*OpenAIClient, error) {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if apiKey == "" {
		return nil, errors.New(errors.CodeInternal, "openai api key is empty")
	}
	baseURL = strings.TrimRight(baseURLOr(baseURL, "OPENAI_BASE_URL", "https://api.openai.com/v1"), "/")
	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: baseURL,
		Timeout: 60 * time.Second,
	})
	if err != nil {
		return nil, errors.WithCode(err, errors.CodeInternal, "create openai chat model")
	}
	return &OpenAIClient{
		provider: "openai",
		model:    model,
		chat:     chat,
		apiKey:   apiKey,
		baseURL:  baseURL,
		http:     resty.New().SetTimeout(10 * time.Second),
	}, nil
}

// Complete 实现 Client
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, tools []ToolSpec, opts Options) (*Completion, error) {
	var cm einomodel.BaseChatModel = c.chat
	if len(tools) > 0 {
		infos := make([]*schema.ToolInfo, 0, len(tools))
		for _, t := range tools {
			infos = append(infos, &schema.ToolInfo{
				Name:        t.Name,
				Desc:        t.Description,
				ParamsOneOf: paramsOneOf(t.Parameters),
			})
		}
		bound, err := c.chat.WithTools(infos)
		if err != nil {
			return nil, errors.WithCode(err, errors.CodeInternal, "bind tools")
		}
		cm = bound
	}

	var callOpts []einomodel.Option
	if opts.Temperature > 0 {
		callOpts = append(callOpts, einomodel.WithTemperature(float32(opts.Temperature)))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, einomodel.WithMaxTokens(opts.MaxTokens))
	}

	msg, err := cm.Generate(ctx, toSchemaMessages(messages), callOpts...)
	if err != nil {
		return nil, openAIError(c.provider, err)
	}

	out := &Completion{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			// 解析失败时保留空参数，由工具 Schema 校验报 INVALID_TOOL_ARGUMENTS
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return out, nil
}

func toSchemaMessages(messages []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, schema.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case RoleAssistant:
			calls := make([]schema.ToolCall, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				raw, _ := json.Marshal(tc.Arguments)
				calls = append(calls, schema.ToolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: schema.FunctionCall{Name: tc.Name, Arguments: string(raw)},
				})
			}
			out = append(out, schema.AssistantMessage(m.Content, calls))
		case RoleTool:
			out = append(out, schema.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

// paramsOneOf 将 JSON Schema（object）转为 eino 参数描述
func paramsOneOf(params map[string]any) *schema.ParamsOneOf {
	props, _ := params["properties"].(map[string]any)
	required := make(map[string]bool)
	if req, ok := params["required"].([]string); ok {
		for _, r := range req {
			required[r] = true
		}
	}
	infos := make(map[string]*schema.ParameterInfo, len(props))
	for name, raw := range props {
		p, _ := raw.(map[string]any)
		typ, _ := p["type"].(string)
		desc, _ := p["description"].(string)
		enum, _ := p["enum"].([]string)
		infos[name] = &schema.ParameterInfo{
			Type:     schema.DataType(typ),
			Desc:     desc,
			Enum:     enum,
			Required: required[name],
		}
	}
	return schema.NewParamsOneOfByParams(infos)
}

var statusCodePattern = regexp.MustCompile(`status code: (\d{3})`)

// openAIError 从 SDK 错误中提取 HTTP 状态码；取不到时按网络错误处理
func openAIError(provider string, err error) error {
	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		status, _ := strconv.Atoi(m[1])
		return statusError(provider, status, err.Error())
	}
	return transportError(provider, err)
}

// Model 返回模型名称
func (c *OpenAIClient) Model() string { return c.model }

// Ping 列出模型；OpenAI 兼容端点（含 DashScope compatible-mode）均提供 /models
func (c *OpenAIClient) Ping(ctx context.Context) error {
	return pingModel(ctx, c.http, c.provider, c.baseURL+"/models",
		map[string]string{"Authorization": "Bearer " + c.apiKey})
}

// Provider 返回提供商名称
func (c *OpenAIClient) Provider() string { return c.provider }
