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

// Package orchestrator 查询编排：会话加锁 → 分类 → 委派子 Agent → 组装响应。
// 每个查询恰好结束于 Done 或 Errored；只有成功才写入会话历史。
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tutor-platform/internal/agent"
	"tutor-platform/internal/agent/router"
	"tutor-platform/internal/runtime/session"
	"tutor-platform/pkg/errors"
	"tutor-platform/pkg/log"
	"tutor-platform/pkg/metrics"
	"tutor-platform/pkg/redaction"
	"tutor-platform/pkg/tracing"
)

// Orchestrator 顶层状态机
type Orchestrator struct {
	router   router.Classifier
	agents   map[agent.Kind]agent.SubAgent
	sessions session.SessionManager
	logger   *log.Logger
	timeout  time.Duration
	probes   []Probe
	redactor *redaction.Redactor
}

// Option 可选配置
type Option func(*Orchestrator)

// WithLogger 设置日志器
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTimeout 单次查询整体截止时间；0 表示只受调用方 ctx 约束
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithRedactor 日志中问题文本的脱敏方式；未设置时不记录问题文本
func WithRedactor(r *redaction.Redactor) Option {
	return func(o *Orchestrator) { o.redactor = r }
}

// WithProbe 注册健康检查组件
func WithProbe(p Probe) Option {
	return func(o *Orchestrator) { o.probes = append(o.probes, p) }
}

// New 创建编排器；agents 须包含 router 可能返回的全部变体
func New(r router.Classifier, agents map[agent.Kind]agent.SubAgent, sessions session.SessionManager, opts ...Option) (*Orchestrator, error) {
	if r == nil || sessions == nil {
		return nil, errors.New(errors.CodeInternal, "orchestrator requires a router and a session manager")
	}
	for _, k := range agent.Kinds() {
		if agents[k] == nil {
			return nil, fmt.Errorf("orchestrator: no sub-agent registered for %q", k)
		}
	}
	o := &Orchestrator{router: r, agents: agents, sessions: sessions, logger: log.Nop()}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// run 单次查询的可变上下文
type run struct {
	q         Query
	sessionID string
	traceID   string
	m         *machine
	decision  *router.Decision
	resp      *agent.AgentResponse
	history   int
	timings   map[string]float64
	logger    *log.Logger
}

func (r *run) stage(name string, start time.Time) {
	r.timings[name] = float64(time.Since(start).Microseconds()) / 1000
}

// Handle 处理一次查询；总是返回完整的成功或失败信封，不返回 error
func (o *Orchestrator) Handle(ctx context.Context, q Query) *Response {
	if q.RequestID == "" {
		q.RequestID = uuid.New().String()
	}
	q.Text = strings.TrimSpace(q.Text)
	sessionID := q.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	ctx, span := tracing.StartQuerySpan(ctx, q.RequestID, sessionID)
	traceID := tracing.TraceID(ctx)
	logger := log.FromContext(ctx, o.logger).With("request_id", q.RequestID, "session_id", sessionID, "trace_id", traceID)
	if o.redactor != nil {
		logger = logger.With("question", o.redactor.String(q.Text))
	}
	ctx = log.IntoContext(ctx, logger)

	r := &run{
		q:         q,
		sessionID: sessionID,
		traceID:   traceID,
		timings:   make(map[string]float64),
		logger:    logger,
	}
	r.m = newMachine(func(t Transition) {
		logger.Debug("state transition", "from", t.From.String(), "to", t.To.String(), "reason", t.Reason)
	})

	err := o.execute(ctx, r)
	tracing.EndSpan(span, err)
	r.stage("total", r.m.started)

	agentLabel := "none"
	if r.decision != nil {
		agentLabel = string(r.decision.Agent)
	}
	metrics.QueryDuration.WithLabelValues(agentLabel).Observe(r.timings["total"] / 1000)

	if err != nil {
		e := errors.AsError(err)
		r.m.fail(string(e.Code))
		metrics.QueryTotal.WithLabelValues(agentLabel, string(e.Code)).Inc()
		if e.Code == errors.CodeInternal || e.Code == errors.CodeUnknownTool {
			logger.Error("query failed", "code", e.Code, "error", err)
		} else {
			logger.Warn("query failed", "code", e.Code, "error", err)
		}
		return errorEnvelope(q, sessionID, e, traceID)
	}

	metrics.QueryTotal.WithLabelValues(agentLabel, "ok").Inc()
	logger.Info("query completed",
		"agent", agentLabel,
		"tools_used", r.resp.ToolsUsed,
		"duration_ms", r.timings["total"],
	)
	var debug *DebugInfo
	if q.Debug {
		debug = &DebugInfo{
			States:          r.m.history,
			Classification:  r.decision,
			ToolInvocations: r.resp.Trace,
			Iterations:      r.resp.Iterations,
			TimingsMs:       r.timings,
			HistoryTurns:    r.history,
			UserID:          q.UserID,
		}
		if debug.ToolInvocations == nil {
			debug.ToolInvocations = []agent.ToolTrace{}
		}
	}
	return successEnvelope(q, sessionID, r.resp, debug)
}

// execute 按状态推进；返回的错误由 Handle 转为错误记录
func (o *Orchestrator) execute(ctx context.Context, r *run) error {
	if r.q.Text == "" {
		return errors.New(errors.CodeValidation, "question must not be empty")
	}

	start := time.Now()
	release, err := o.sessions.Acquire(ctx, r.sessionID)
	if err != nil {
		return err
	}
	defer release()
	sess, err := o.sessions.GetOrCreate(ctx, r.sessionID)
	if err != nil {
		return err
	}
	history := sess.Recent(o.sessions.HistoryLimit())
	r.history = len(history)
	r.stage("session_load", start)

	// Received → Classifying
	if err := r.m.advance(StateClassifying, "session loaded"); err != nil {
		return errors.WithCode(err, errors.CodeInternal, "")
	}
	start = time.Now()
	decision, err := o.router.Classify(ctx, r.q.Text, history)
	r.stage("classification", start)
	if err != nil {
		return err
	}
	r.decision = decision

	// Classifying → Delegated
	if err := r.m.advance(StateDelegated, fmt.Sprintf("%s (%.2f, %s)", decision.Agent, decision.Confidence, decision.Method)); err != nil {
		return errors.WithCode(err, errors.CodeInternal, "")
	}
	sub, ok := o.agents[decision.Agent]
	if !ok {
		return errors.Newf(errors.CodeInternal, "no agent registered for %q", decision.Agent)
	}
	if err := checkpoint(ctx); err != nil {
		return err
	}

	// Delegated → ToolLoop
	if err := r.m.advance(StateToolLoop, ""); err != nil {
		return errors.WithCode(err, errors.CodeInternal, "")
	}
	start = time.Now()
	resp, err := sub.Run(ctx, agent.RunInput{Query: r.q.Text, History: history})
	r.stage("agent", start)
	if err != nil {
		return err
	}
	resp.Confidence = decision.Confidence
	r.resp = resp

	// ToolLoop → Responding；写入历史前最后一次取消检查
	if err := r.m.advance(StateResponding, fmt.Sprintf("%d iteration(s)", resp.Iterations)); err != nil {
		return errors.WithCode(err, errors.CodeInternal, "")
	}
	if err := checkpoint(ctx); err != nil {
		return err
	}
	start = time.Now()
	turn := session.Turn{
		QueryText:  r.q.Text,
		AnswerText: resp.Answer,
		AgentName:  string(resp.Agent),
		Timestamp:  time.Now().UTC(),
	}
	if err := o.sessions.Append(ctx, r.sessionID, turn); err != nil {
		return err
	}
	r.stage("session_save", start)

	// Responding → Done
	if err := r.m.advance(StateDone, ""); err != nil {
		return errors.WithCode(err, errors.CodeInternal, "")
	}
	return nil
}

func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.FromContext(err)
	}
	return nil
}
