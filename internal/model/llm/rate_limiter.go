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
	"sync"

	"golang.org/x/time/rate"

	"tutor-platform/pkg/config"
	"tutor-platform/pkg/errors"
)

// LimiterStats 单个 provider 的限流快照
type LimiterStats struct {
	RequestsPerMinute float64 `json:"requests_per_minute"`
	TokensPerMinute   int     `json:"tokens_per_minute"`
	MaxConcurrent     int     `json:"max_concurrent"`
	InFlight          int     `json:"in_flight"`
}

// RateLimiter LLM Provider 维度的限流器：请求速率 + token 预算 + 并发上限
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*providerLimiter
	defaults config.LLMRateLimitConfig
}

type providerLimiter struct {
	cfg       config.LLMRateLimitConfig
	requests  *rate.Limiter
	tokens    *rate.Limiter
	semaphore chan struct{}
}

// NewRateLimiter 创建限流器；未配置的 provider 使用 defaults
func NewRateLimiter(configs map[string]config.LLMRateLimitConfig, defaults *config.LLMRateLimitConfig) *RateLimiter {
	d := config.LLMRateLimitConfig{RequestsPerMinute: 60, TokensPerMinute: 90000, MaxConcurrent: 8}
	if defaults != nil {
		d = *defaults
	}
	l := &RateLimiter{limiters: make(map[string]*providerLimiter), defaults: d}
	for provider, cfg := range configs {
		l.limiters[provider] = newProviderLimiter(cfg)
	}
	return l
}

func newProviderLimiter(cfg config.LLMRateLimitConfig) *providerLimiter {
	pl := &providerLimiter{cfg: cfg}
	if cfg.RequestsPerMinute > 0 {
		// burst = 2 秒的配额
		burst := int(cfg.RequestsPerMinute / 60 * 2)
		pl.requests = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60), max(burst, 1))
	}
	if cfg.TokensPerMinute > 0 {
		burst := cfg.TokensPerMinute / 60 * 2
		pl.tokens = rate.NewLimiter(rate.Limit(float64(cfg.TokensPerMinute)/60), max(burst, 1))
	}
	if cfg.MaxConcurrent > 0 {
		pl.semaphore = make(chan struct{}, cfg.MaxConcurrent)
	}
	return pl
}

func (l *RateLimiter) get(provider string) *providerLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	pl, ok := l.limiters[provider]
	if !ok {
		pl = newProviderLimiter(l.defaults)
		l.limiters[provider] = pl
	}
	return pl
}

// Wait 阻塞直到可以发起调用；ctx 结束返回 CANCELLED。
// 超过 token burst 的单次估算按 burst 计，避免永远无法满足。
func (l *RateLimiter) Wait(ctx context.Context, provider string, estimatedTokens int) error {
	pl := l.get(provider)
	if pl.requests != nil {
		if err := pl.requests.Wait(ctx); err != nil {
			return waitError(ctx, err)
		}
	}
	if pl.tokens != nil && estimatedTokens > 0 {
		if err := pl.tokens.WaitN(ctx, min(estimatedTokens, pl.tokens.Burst())); err != nil {
			return waitError(ctx, err)
		}
	}
	if pl.semaphore != nil {
		select {
		case pl.semaphore <- struct{}{}:
		case <-ctx.Done():
			return waitError(ctx, ctx.Err())
		}
	}
	return nil
}

// Release 释放并发 slot（在 LLM 调用完成后调用）
func (l *RateLimiter) Release(provider string) {
	pl := l.get(provider)
	if pl.semaphore == nil {
		return
	}
	select {
	case <-pl.semaphore:
	default:
	}
}

// Stats 返回 provider 的限流配置与当前并发
func (l *RateLimiter) Stats(provider string) LimiterStats {
	pl := l.get(provider)
	s := LimiterStats{
		RequestsPerMinute: pl.cfg.RequestsPerMinute,
		TokensPerMinute:   pl.cfg.TokensPerMinute,
		MaxConcurrent:     pl.cfg.MaxConcurrent,
	}
	if pl.semaphore != nil {
		s.InFlight = len(pl.semaphore)
	}
	return s
}

// waitError rate.Limiter 在截止时间不足时立即返回非 ctx 错误，此时视为限流
func waitError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.FromContext(ctx.Err())
	}
	return errors.WithCode(err, errors.CodeRateLimited, "")
}
