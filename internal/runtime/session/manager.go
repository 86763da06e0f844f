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

package session

import (
	"context"
	"sync"

	"tutor-platform/pkg/errors"
	"tutor-platform/pkg/log"
	"tutor-platform/pkg/metrics"
)

// DefaultHistoryLimit 传给 Agent 的历史轮数上限
const DefaultHistoryLimit = 10

// SessionManager 管理 Session 生命周期与按会话串行化
type SessionManager interface {
	GetOrCreate(ctx context.Context, id string) (*Session, error)
	Append(ctx context.Context, id string, turn Turn) error
	Acquire(ctx context.Context, id string) (func(), error)
	HistoryLimit() int
	Ping(ctx context.Context) error
}

// Manager 基于 Store 的实现
type Manager struct {
	store        Store
	historyLimit int
	locks        *keyedLocks
	logger       *log.Logger
}

// Option Manager 选项
type Option func(*Manager)

// WithHistoryLimit 设置历史轮数上限
func WithHistoryLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.historyLimit = n
		}
	}
}

// WithLogger 设置日志器
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager 创建 SessionManager
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{store: store, historyLimit: DefaultHistoryLimit, locks: newKeyedLocks(), logger: log.Nop()}
	for _, o := range opts {
		o(m)
	}
	return m
}

// GetOrCreate id 为空时生成新会话；id 未知时以该 id 创建新会话
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	if id != "" {
		s, err := m.store.Get(ctx, id)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, errors.ErrNotFound) {
			return nil, storeError(err, "load session")
		}
	}
	s := New(id)
	if err := m.store.Put(ctx, s); err != nil {
		return nil, storeError(err, "create session")
	}
	log.FromContext(ctx, m.logger).Debug("session created", "session_id", s.ID)
	return s, nil
}

// Append 追加一轮问答。调用方须持有该会话的锁（Acquire）
func (m *Manager) Append(ctx context.Context, id string, turn Turn) error {
	s, err := m.store.Get(ctx, id)
	if errors.Is(err, errors.ErrNotFound) {
		s, err = New(id), nil
	}
	if err != nil {
		return storeError(err, "load session")
	}
	s.append(turn)
	if err := m.store.Put(ctx, s); err != nil {
		return storeError(err, "save session")
	}
	return nil
}

// Acquire 获取会话锁；同一会话的查询依次执行
func (m *Manager) Acquire(ctx context.Context, id string) (func(), error) {
	release, err := m.locks.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	metrics.SessionsInFlight.Inc()
	var once sync.Once
	return func() {
		once.Do(func() {
			release()
			metrics.SessionsInFlight.Dec()
		})
	}, nil
}

// HistoryLimit 传给 Agent 的历史轮数上限
func (m *Manager) HistoryLimit() int { return m.historyLimit }

// Ping 检查存储可用性
func (m *Manager) Ping(ctx context.Context) error { return m.store.Ping(ctx) }

// Close 关闭底层存储
func (m *Manager) Close() error { return m.store.Close() }

func storeError(err error, op string) error {
	switch errors.CodeOf(err) {
	case errors.CodeCancelled, errors.CodeUpstreamTimeout:
		return errors.AsError(err)
	}
	return errors.WithCode(err, errors.CodeInternal, "session store unavailable: "+op)
}
