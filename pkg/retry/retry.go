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

// Package retry 对外部调用做单次超时 + 指数退避重试；只重试瞬时错误
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"tutor-platform/pkg/errors"
)

// Policy 重试策略
type Policy struct {
	MaxRetries      int           // 不含首次调用
	AttemptTimeout  time.Duration // 单次调用超时，0 表示不限
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy 单次 30s、最多重试 2 次
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      2,
		AttemptTimeout:  30 * time.Second,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// Notify 每次重试前回调；attempt 为刚失败的调用序号（从 1 开始）
type Notify func(err error, attempt int, wait time.Duration)

// Transient 是否为可重试的瞬时错误：上游超时、上游不可用、限流
func Transient(err error) bool {
	switch errors.CodeOf(err) {
	case errors.CodeUpstreamTimeout, errors.CodeUpstreamUnavailable, errors.CodeRateLimited:
		return true
	}
	return false
}

// Do 执行 op，瞬时错误按 Policy 重试。
// 父 ctx 结束时立即返回（取消为 CANCELLED，截止为 UPSTREAM_TIMEOUT），不再重试；单次超时映射为 UPSTREAM_TIMEOUT。
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), notify Notify) (T, error) {
	var (
		out     T
		attempt int
	)
	if err := ctx.Err(); err != nil {
		return out, cancelled(err)
	}

	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(maxRetries)), ctx)

	operation := func() error {
		attempt++
		actx, cancel := ctx, context.CancelFunc(func() {})
		if p.AttemptTimeout > 0 {
			actx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		v, err := op(actx)
		cancel()
		if err == nil {
			out = v
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(cancelled(ctx.Err()))
		}
		if errors.Is(err, context.DeadlineExceeded) && errors.CodeOf(err) != errors.CodeUpstreamTimeout {
			err = errors.WithCode(err, errors.CodeUpstreamTimeout, "")
		}
		if !Transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.RetryNotify(operation, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(err, attempt, wait)
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return out, cancelled(ctx.Err())
		}
		return out, err
	}
	return out, nil
}

func cancelled(cause error) error {
	return errors.FromContext(cause)
}
