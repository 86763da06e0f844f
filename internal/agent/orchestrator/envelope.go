package orchestrator

import (
	"net/http"

	"tutor-platform/internal/agent"
	"tutor-platform/internal/agent/router"
	"tutor-platform/pkg/errors"
)

// Query 一次调用方查询
type Query struct {
	Text      string
	SessionID string
	UserID    string
	Debug     bool
	RequestID string
}

// AgentDetails 成功响应中的 Agent 元数据
type AgentDetails struct {
	Name       string   `json:"name"`
	Confidence float64  `json:"confidence"`
	ToolsUsed  []string `json:"tools_used"`
	Reasoning  string   `json:"reasoning"`
}

// DebugInfo 仅在请求 debug 时返回
type DebugInfo struct {
	States          []Transition       `json:"states"`
	Classification  *router.Decision   `json:"classification,omitempty"`
	ToolInvocations []agent.ToolTrace  `json:"tool_invocations"`
	Iterations      int                `json:"iterations"`
	TimingsMs       map[string]float64 `json:"timings_ms"`
	HistoryTurns    int                `json:"history_turns"`
	UserID          string             `json:"user_id,omitempty"`
}

// ErrorInfo 失败响应的错误记录
type ErrorInfo struct {
	Code    errors.Code    `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	TraceID string         `json:"trace_id"`
	Retry   bool           `json:"retry"`
}

// Response 响应信封：Answer/AgentDetails 与 Error 互斥
type Response struct {
	RequestID    string        `json:"request_id"`
	SessionID    string        `json:"session_id"`
	Query        string        `json:"query"`
	Answer       string        `json:"answer,omitempty"`
	AgentDetails *AgentDetails `json:"agent_details,omitempty"`
	DebugInfo    *DebugInfo    `json:"debug_info,omitempty"`
	Error        *ErrorInfo    `json:"error,omitempty"`
}

// OK 是否为成功响应
func (r *Response) OK() bool { return r.Error == nil }

// StatusCode 对应的 HTTP 状态码
func (r *Response) StatusCode() int {
	if r.Error == nil {
		return http.StatusOK
	}
	return errors.HTTPStatus(r.Error.Code)
}

func successEnvelope(q Query, sessionID string, resp *agent.AgentResponse, debug *DebugInfo) *Response {
	tools := resp.ToolsUsed
	if tools == nil {
		tools = []string{}
	}
	return &Response{
		RequestID: q.RequestID,
		SessionID: sessionID,
		Query:     q.Text,
		Answer:    resp.Answer,
		AgentDetails: &AgentDetails{
			Name:       string(resp.Agent),
			Confidence: resp.Confidence,
			ToolsUsed:  tools,
			Reasoning:  resp.Reasoning,
		},
		DebugInfo: debug,
	}
}

// RejectedResponse 入口校验失败等未进入编排的请求的错误信封；不回显 session_id
func RejectedResponse(q Query, err error, traceID string) *Response {
	return errorEnvelope(q, "", err, traceID)
}

// errorEnvelope 只暴露错误码表中的对外文案与 Details，不含底层 cause
func errorEnvelope(q Query, sessionID string, err error, traceID string) *Response {
	e := errors.AsError(err)
	return &Response{
		RequestID: q.RequestID,
		SessionID: sessionID,
		Query:     q.Text,
		Error: &ErrorInfo{
			Code:    e.Code,
			Message: e.Message,
			Details: e.Details,
			TraceID: traceID,
			Retry:   e.Retryable,
		},
	}
}
