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

package http

import (
	"bytes"
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"tutor-platform/internal/agent/orchestrator"
	"tutor-platform/internal/api/http/middleware"
	"tutor-platform/pkg/errors"
	"tutor-platform/pkg/metrics"
)

// QueryService 查询编排能力（由 orchestrator.Orchestrator 实现）
type QueryService interface {
	Handle(ctx context.Context, q orchestrator.Query) *orchestrator.Response
	Health(ctx context.Context) *orchestrator.HealthReport
}

// ServiceInfo GET / 返回的服务信息
type ServiceInfo struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description"`
	Agents      []string          `json:"agents"`
	Endpoints   map[string]string `json:"endpoints"`
}

// QueryRequest POST /api/query 请求体
type QueryRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Debug     bool   `json:"debug,omitempty"`
}

// Handler HTTP 处理器
type Handler struct {
	svc  QueryService
	info ServiceInfo
}

// NewHandler 创建新的 HTTP 处理器
func NewHandler(svc QueryService, info ServiceInfo) *Handler {
	return &Handler{svc: svc, info: info}
}

// Info 服务信息
// GET /
func (h *Handler) Info(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, h.info)
}

// Health 健康检查；degraded 时返回 503
// GET /health
func (h *Handler) Health(ctx context.Context, c *app.RequestContext) {
	report := h.svc.Health(ctx)
	status := consts.StatusOK
	if !report.Healthy() {
		status = consts.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// Metrics Prometheus 文本格式
// GET /metrics
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		hlog.CtxErrorf(ctx, "write metrics: %v", err)
		middleware.AbortWithError(ctx, c, err)
		return
	}
	c.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

// Query 提交问题
// POST /api/query
func (h *Handler) Query(ctx context.Context, c *app.RequestContext) {
	var req QueryRequest
	if err := c.BindJSON(&req); err != nil {
		middleware.AbortWithError(ctx, c, errors.New(errors.CodeValidation, "request body must be a JSON object").
			WithDetails(map[string]any{"field": "body"}))
		return
	}
	q, err := orchestrator.Normalize(orchestrator.Query{
		Text:      req.Question,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Debug:     req.Debug,
		RequestID: c.GetString(middleware.RequestIDKey),
	})
	if err != nil {
		middleware.AbortWithError(ctx, c, err)
		return
	}

	resp := h.svc.Handle(ctx, q)
	if !resp.OK() {
		hlog.CtxInfof(ctx, "query %s failed: %s", resp.RequestID, resp.Error.Code)
	}
	c.JSON(resp.StatusCode(), resp)
}

// Preflight CORS 预检占位；实际响应由 CORS 中间件写出
func (h *Handler) Preflight(ctx context.Context, c *app.RequestContext) {
	c.Status(consts.StatusNoContent)
}
