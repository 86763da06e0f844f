package llm

import (
	"context"
	"time"

	"tutor-platform/pkg/errors"
	"tutor-platform/pkg/log"
	"tutor-platform/pkg/metrics"
	"tutor-platform/pkg/retry"
	"tutor-platform/pkg/tracing"
)

// ResilientClient 为每次补全加单次超时与瞬时错误重试，并记录 span 与指标
type ResilientClient struct {
	inner  Client
	policy retry.Policy
	logger *log.Logger
}

// NewResilientClient 包装 Client；logger 为 nil 时不输出重试日志
func NewResilientClient(inner Client, policy retry.Policy, logger *log.Logger) *ResilientClient {
	if logger == nil {
		logger = log.Nop()
	}
	return &ResilientClient{inner: inner, policy: policy, logger: logger}
}

// Complete 实现 Client
func (c *ResilientClient) Complete(ctx context.Context, messages []Message, tools []ToolSpec, opts Options) (*Completion, error) {
	provider := c.inner.Provider()
	ctx, span := tracing.StartCompletionSpan(ctx, provider, c.inner.Model())
	start := time.Now()

	out, err := retry.Do(ctx, c.policy, func(ctx context.Context) (*Completion, error) {
		return c.inner.Complete(ctx, messages, tools, opts)
	}, func(err error, attempt int, wait time.Duration) {
		code := errors.CodeOf(err)
		metrics.CompletionRetriesTotal.WithLabelValues(provider, string(code)).Inc()
		log.FromContext(ctx, c.logger).Warn("completion failed, retrying",
			"provider", provider, "attempt", attempt, "code", code, "wait", wait, "error", err)
	})

	metrics.CompletionDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	tracing.EndSpan(span, err)
	return out, err
}

// Ping 单次探测，不重试
func (c *ResilientClient) Ping(ctx context.Context) error { return Ping(ctx, c.inner) }

// Model 返回底层 Client 的模型名称。
func (c *ResilientClient) Model() string { return c.inner.Model() }

// Provider 返回底层 Client 的提供商名称。
func (c *ResilientClient) Provider() string { return c.inner.Provider() }
