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
	"time"

	"tutor-platform/pkg/metrics"
)

// RateLimitedClient 包装任意 Client，在真实调用前后执行限流控制。
type RateLimitedClient struct {
	inner   Client
	limiter *RateLimiter
}

// NewRateLimitedClient 创建带限流的客户端。limiter 为 nil 时退化为直接调用。
func NewRateLimitedClient(inner Client, limiter *RateLimiter) *RateLimitedClient {
	return &RateLimitedClient{inner: inner, limiter: limiter}
}

// Complete 实现 Client，调用前等待配额，调用后释放并发 slot。
func (c *RateLimitedClient) Complete(ctx context.Context, messages []Message, tools []ToolSpec, opts Options) (*Completion, error) {
	if c.limiter != nil {
		provider := c.inner.Provider()
		start := time.Now()
		if err := c.limiter.Wait(ctx, provider, estimateTokens(messages, opts.MaxTokens)); err != nil {
			return nil, err
		}
		if waited := time.Since(start); waited > 100*time.Millisecond {
			metrics.RateLimitWaitSeconds.WithLabelValues("llm", provider).Observe(waited.Seconds())
		}
		defer c.limiter.Release(provider)
	}
	return c.inner.Complete(ctx, messages, tools, opts)
}

// Ping 探测不占用限流配额
func (c *RateLimitedClient) Ping(ctx context.Context) error { return Ping(ctx, c.inner) }

// Model 返回底层 Client 的模型名称。
func (c *RateLimitedClient) Model() string { return c.inner.Model() }

// Provider 返回底层 Client 的提供商名称。
func (c *RateLimitedClient) Provider() string { return c.inner.Provider() }

// estimateTokens 粗略估算请求的 token 数（4 字符 ≈ 1 token）。
func estimateTokens(msgs []Message, maxTokens int) int {
	chars := 0
	for _, m := range msgs {
		chars += len(m.Content)
	}
	estimated := chars / 4
	if maxTokens > 0 {
		estimated += maxTokens
	}
	return max(estimated, 1)
}
