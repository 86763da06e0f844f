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

// Package router 问题分类：词法信号打分，歧义时可选地交给 Completion Service 裁决
package router

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"tutor-platform/internal/agent"
	"tutor-platform/internal/model/llm"
	"tutor-platform/internal/runtime/session"
	"tutor-platform/pkg/errors"
	"tutor-platform/pkg/log"
	"tutor-platform/pkg/metrics"
	"tutor-platform/pkg/tracing"
)

const (
	DefaultMargin    = 0.1
	DefaultThreshold = 0.4

	// RationaleAmbiguous 回落决策的固定 rationale
	RationaleAmbiguous = "ambiguous"

	baseScore = 0.7
	hitScore  = 0.1
	maxScore  = 0.95

	// 浮点比较容差：0.8-0.7 之类的差值不应因舍入越过 margin
	epsilon = 1e-9
)

// 决策来源，用于指标与 debug_info
const (
	MethodLexical  = "lexical"
	MethodDelegate = "delegate"
	MethodFallback = "fallback"
)

// Decision 每个查询恰好一个
type Decision struct {
	Agent      agent.Kind             `json:"agent_name"`
	Confidence float64                `json:"confidence"`
	Rationale  string                 `json:"rationale"`
	Method     string                 `json:"method"`
	Scores     map[agent.Kind]float64 `json:"scores"`
}

// Classifier 路由接口，编排器依赖它
type Classifier interface {
	Classify(ctx context.Context, query string, history []session.Turn) (*Decision, error)
}

// Router 词法分类器；配置 delegate 后歧义交由模型裁决
type Router struct {
	domains   []Domain
	fallback  agent.Kind
	margin    float64
	threshold float64
	delegate  llm.Client
	logger    *log.Logger
}

// Option 可选配置
type Option func(*Router)

// WithMargin 设置歧义分差
func WithMargin(m float64) Option {
	return func(r *Router) {
		if m >= 0 {
			r.margin = m
		}
	}
}

// WithThreshold 设置最低置信度
func WithThreshold(t float64) Option {
	return func(r *Router) {
		if t > 0 && t <= 1 {
			r.threshold = t
		}
	}
}

// WithDelegate 歧义时调用 client 裁决；此时 client 不可用即分类失败
func WithDelegate(c llm.Client) Option {
	return func(r *Router) { r.delegate = c }
}

// WithDomains 替换领域定义
func WithDomains(d []Domain) Option {
	return func(r *Router) { r.domains = d }
}

// WithLogger 设置日志器
func WithLogger(l *log.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// New 创建 Router，默认 math/physics 领域、general 回落
func New(opts ...Option) *Router {
	r := &Router{
		domains:   DefaultDomains(),
		fallback:  agent.KindGeneral,
		margin:    DefaultMargin,
		threshold: DefaultThreshold,
		logger:    log.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Threshold 当前最低置信度
func (r *Router) Threshold() float64 { return r.threshold }

type candidate struct {
	agent agent.Kind
	score float64
}

// Classify 词法打分不依赖 history；history 只进入裁决 prompt
func (r *Router) Classify(ctx context.Context, query string, history []session.Turn) (d *Decision, err error) {
	ctx, span := tracing.StartClassifySpan(ctx)
	defer func() { tracing.EndSpan(span, err) }()
	defer func() {
		if d != nil {
			metrics.ClassificationTotal.WithLabelValues(string(d.Agent), d.Method).Inc()
		}
	}()

	scores := r.Score(query)
	ranked := make([]candidate, 0, len(scores))
	for _, dom := range r.domains {
		ranked = append(ranked, candidate{agent: dom.Agent, score: scores[dom.Agent]})
	}
	// 稳定排序保证同分时按领域声明顺序
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) == 0 || ranked[0].score <= r.threshold {
		return r.fallbackDecision(scores), nil
	}
	top := ranked[0]
	if len(ranked) == 1 || top.score-ranked[1].score > r.margin+epsilon {
		return &Decision{
			Agent:      top.agent,
			Confidence: top.score,
			Rationale:  fmt.Sprintf("lexical match for %s (score %.2f)", top.agent, top.score),
			Method:     MethodLexical,
			Scores:     scores,
		}, nil
	}

	// 前两名在 margin 内
	tied := []candidate{top}
	for _, c := range ranked[1:] {
		if top.score-c.score <= r.margin+epsilon && c.score > r.threshold {
			tied = append(tied, c)
		}
	}
	if r.delegate == nil {
		return r.fallbackDecision(scores), nil
	}
	picked, err := r.askDelegate(ctx, query, history, tied)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.FromContext(ctx.Err())
		}
		log.FromContext(ctx, r.logger).Warn("classification delegate failed", "error", err)
		return nil, errors.WithCode(err, errors.CodeClassificationUnavailable, "question classification is temporarily unavailable")
	}
	for _, c := range tied {
		if c.agent == picked {
			return &Decision{
				Agent:      c.agent,
				Confidence: c.score,
				Rationale:  fmt.Sprintf("ambiguous lexical signal resolved by the language model in favour of %s", c.agent),
				Method:     MethodDelegate,
				Scores:     scores,
			}, nil
		}
	}
	log.FromContext(ctx, r.logger).Debug("classification delegate named no candidate", "answer", picked)
	return r.fallbackDecision(scores), nil
}

func (r *Router) fallbackDecision(scores map[agent.Kind]float64) *Decision {
	return &Decision{
		Agent:      r.fallback,
		Confidence: r.threshold,
		Rationale:  RationaleAmbiguous,
		Method:     MethodFallback,
		Scores:     scores,
	}
}

// Score 各领域词法得分：命中数 n>0 时 min(0.7+0.1n, 0.95)，否则 0
func (r *Router) Score(query string) map[agent.Kind]float64 {
	lower := strings.ToLower(query)
	words := wordSet(lower)
	scores := make(map[agent.Kind]float64, len(r.domains))
	for _, dom := range r.domains {
		hits := 0
		for _, kw := range dom.Keywords {
			if words[kw] || words[kw+"s"] || words[kw+"es"] {
				hits++
			}
		}
		for _, p := range dom.Patterns {
			if p.MatchString(lower) {
				hits++
			}
		}
		scores[dom.Agent] = score(hits)
	}
	return scores
}

func score(hits int) float64 {
	if hits <= 0 {
		return 0
	}
	return min(baseScore+hitScore*float64(hits), maxScore)
}

func wordSet(s string) map[string]bool {
	words := strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

const delegatePrompt = `You route student questions to a specialised tutor.
Reply with exactly one word: the name of the tutor best suited to the question. Valid names: %s.`

// askDelegate 返回模型给出的 agent 名（小写去标点）；不在候选中的回答由调用方按歧义处理
func (r *Router) askDelegate(ctx context.Context, query string, history []session.Turn, tied []candidate) (agent.Kind, error) {
	names := make([]string, 0, len(tied))
	for _, c := range tied {
		names = append(names, string(c.agent))
	}
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: fmt.Sprintf(delegatePrompt, strings.Join(names, ", "))}}
	for _, t := range history {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: t.QueryText},
			llm.Message{Role: llm.RoleAssistant, Content: t.AnswerText},
		)
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: query})

	completion, err := r.delegate.Complete(ctx, msgs, nil, llm.Options{Temperature: 0, MaxTokens: 8})
	if err != nil {
		return "", err
	}
	answer := strings.ToLower(strings.TrimFunc(completion.Content, func(r rune) bool {
		return !unicode.IsLetter(r)
	}))
	return agent.Kind(answer), nil
}
