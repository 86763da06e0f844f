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

package middleware

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"tutor-platform/pkg/errors"
	"tutor-platform/pkg/tracing"
)

const (
	HeaderRequestID   = "X-Request-ID"
	HeaderProcessTime = "X-Process-Time"

	// RequestIDKey RequestContext 中保存 request id 的键
	RequestIDKey = "request_id"
)

// Middleware 中间件管理器
type Middleware struct {
	allowOrigins []string
	limiter      *rate.Limiter
}

// Option 中间件配置
type Option func(*Middleware)

// WithAllowOrigins 设置 CORS 允许的来源；空表示 *
func WithAllowOrigins(origins []string) Option {
	return func(m *Middleware) { m.allowOrigins = origins }
}

// WithRateLimit 全局每秒请求数；<=0 不限流
func WithRateLimit(rps int) Option {
	return func(m *Middleware) {
		if rps > 0 {
			m.limiter = rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}

// NewMiddleware 创建新的中间件管理器
func NewMiddleware(opts ...Option) *Middleware {
	m := &Middleware{}
	for _, o := range opts {
		o(m)
	}
	return m
}

// RequestID 透传或生成 X-Request-ID，并在响应头写入 X-Process-Time（秒）
func (m *Middleware) RequestID() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		id := strings.TrimSpace(c.Request.Header.Get(HeaderRequestID))
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(RequestIDKey, id)
		c.Next(ctx)
		c.Header(HeaderRequestID, id)
		c.Header(HeaderProcessTime, strconv.FormatFloat(time.Since(start).Seconds(), 'f', 6, 64))
	}
}

// CORS 跨域；OPTIONS 预检直接返回 204
func (m *Middleware) CORS() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		origin := c.Request.Header.Get("Origin")
		if allowed := m.allowOrigin(origin); allowed != "" {
			c.Header("Access-Control-Allow-Origin", allowed)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-Process-Time")
			c.Header("Access-Control-Max-Age", "86400")
		}
		if string(c.Request.Method()) == consts.MethodOptions {
			c.AbortWithStatus(consts.StatusNoContent)
			return
		}
		c.Next(ctx)
	}
}

func (m *Middleware) allowOrigin(origin string) string {
	if len(m.allowOrigins) == 0 {
		return "*"
	}
	for _, o := range m.allowOrigins {
		if o == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

// RateLimit 令牌桶限流，超限返回 RATE_LIMITED
func (m *Middleware) RateLimit() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if m.limiter != nil && !m.limiter.Allow() {
			AbortWithError(ctx, c, errors.New(errors.CodeRateLimited, ""))
			return
		}
		c.Next(ctx)
	}
}

// Recover 将 panic 转为 INTERNAL_ERROR 信封
func (m *Middleware) Recover() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		defer func() {
			if r := recover(); r != nil {
				hlog.CtxErrorf(ctx, "panic recovered: %v", r)
				c.Abort()
				AbortWithError(ctx, c, errors.WithCode(fmt.Errorf("panic: %v", r), errors.CodeInternal, ""))
			}
		}()
		c.Next(ctx)
	}
}

// ErrorBody 中间件层错误的信封（与查询失败信封同形）
type ErrorBody struct {
	RequestID string    `json:"request_id"`
	SessionID string    `json:"session_id"`
	Query     string    `json:"query"`
	Error     ErrorInfo `json:"error"`
}

// ErrorInfo 错误记录
type ErrorInfo struct {
	Code    errors.Code    `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	TraceID string         `json:"trace_id"`
	Retry   bool           `json:"retry"`
}

// AbortWithError 写入错误信封并终止后续 handler
func AbortWithError(ctx context.Context, c *app.RequestContext, err error) {
	e := errors.AsError(err)
	c.AbortWithStatusJSON(errors.HTTPStatus(e.Code), ErrorBody{
		RequestID: c.GetString(RequestIDKey),
		Error: ErrorInfo{
			Code:    e.Code,
			Message: e.Message,
			Details: e.Details,
			TraceID: tracing.TraceID(ctx),
			Retry:   e.Retryable,
		},
	})
}
