package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"tutor-platform/pkg/errors"
)

// GeminiClient Gemini 客户端（generateContent + function calling）
type GeminiClient struct {
	provider string
	model    string
	apiKey   string
	baseURL  string
	client   *resty.Client
}

// NewGeminiClient 创建新的 Gemini 客户端；重试由上层 ResilientClient 负责，resty 不再重试
func NewGeminiClient(model, apiKey, baseURL string) (*GeminiClient, error) {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if apiKey == "" {
		return nil, errors.New(errors.CodeInternal, "gemini api key is empty")
	}

	client := resty.New()
	client.SetTimeout(60 * time.Second)

	return &GeminiClient{
		provider: "gemini",
		model:    model,
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURLOr(baseURL, "GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"), "/"),
		client:   client,
	}, nil
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Tools             []map[string]any `json:"tools,omitempty"`
	GenerationConfig  map[string]any   `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Complete 实现 Client
func (c *GeminiClient) Complete(ctx context.Context, messages []Message, tools []ToolSpec, opts Options) (*Completion, error) {
	req := geminiRequest{GenerationConfig: map[string]any{}}
	if opts.Temperature > 0 {
		req.GenerationConfig["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		req.GenerationConfig["maxOutputTokens"] = opts.MaxTokens
	}

	var system []string
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleUser:
			req.Contents = append(req.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		case RoleAssistant:
			content := geminiContent{Role: "model"}
			if m.Content != "" {
				content.Parts = append(content.Parts, geminiPart{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				content.Parts = append(content.Parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: tc.Arguments}})
			}
			req.Contents = append(req.Contents, content)
		case RoleTool:
			req.Contents = append(req.Contents, geminiContent{Role: "user", Parts: []geminiPart{{
				FunctionResponse: &geminiFunctionResponse{Name: m.Name, Response: toolResponseObject(m.Content)},
			}}})
		}
	}
	if len(system) > 0 {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(system, "\n\n")}}}
	}
	if len(tools) > 0 {
		decls := make([]map[string]any, 0, len(tools))
		for _, t := range tools {
			decls = append(decls, map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			})
		}
		req.Tools = []map[string]any{{"functionDeclarations": decls}}
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-goog-api-key", c.apiKey).
		SetBody(req).
		Post(c.baseURL + "/models/" + c.model + ":generateContent")
	if err != nil {
		return nil, transportError(c.provider, err)
	}
	if response.StatusCode() != http.StatusOK {
		return nil, statusError(c.provider, response.StatusCode(), response.String())
	}

	var result geminiResponse
	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return nil, errors.WithCode(err, errors.CodeUpstreamUnavailable, "invalid gemini response")
	}
	if len(result.Candidates) == 0 {
		return nil, errors.New(errors.CodeUpstreamUnavailable, "gemini returned no candidates")
	}

	out := &Completion{}
	var text []string
	for _, p := range result.Candidates[0].Content.Parts {
		if p.FunctionCall != nil {
			args := p.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			// Gemini 不返回调用 id，本地生成以便回填时关联
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: "call_" + uuid.NewString(), Name: p.FunctionCall.Name, Arguments: args})
			continue
		}
		if p.Text != "" {
			text = append(text, p.Text)
		}
	}
	out.Content = strings.Join(text, "")
	return out, nil
}

// toolResponseObject functionResponse.response 必须是对象
func toolResponseObject(content string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"result": content}
}

// Ping 查询模型元数据
func (c *GeminiClient) Ping(ctx context.Context) error {
	return pingModel(ctx, c.client, c.provider, c.baseURL+"/models/"+c.model,
		map[string]string{"x-goog-api-key": c.apiKey})
}

// Model 返回模型名称
func (c *GeminiClient) Model() string {
	return c.model
}

// Provider 返回提供商名称
func (c *GeminiClient) Provider() string {
	return c.provider
}
