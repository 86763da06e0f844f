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

// Package metrics Prometheus 指标定义与导出
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// DefaultRegistry 进程内指标注册表
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		QueryDuration, QueryTotal,
		ClassificationTotal,
		ToolDuration, ToolInvocationsTotal, ToolLoopIterations,
		CompletionDuration, CompletionRetriesTotal,
		RateLimitWaitSeconds,
		SessionsInFlight,
	)
}

// QueryDuration 单次查询端到端耗时
var QueryDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "tutor_query_duration_seconds",
		Help:    "查询端到端耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"agent"},
)

// QueryTotal 查询总数（按结果）
var QueryTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tutor_query_total",
		Help: "查询总数（按 agent 与错误码，成功为 ok）",
	},
	[]string{"agent", "code"},
)

var ClassificationTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tutor_classification_total",
		Help: "分类结果总数",
	},
	[]string{"agent", "method"}, // method: lexical | delegated | fallback
)

var ToolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "tutor_tool_duration_seconds",
		Help:    "工具调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"tool"},
)

var ToolInvocationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tutor_tool_invocations_total",
		Help: "工具调用总数",
	},
	[]string{"tool", "result"}, // result: ok | 错误码
)

// ToolLoopIterations 每次子 Agent 运行的循环轮数
var ToolLoopIterations = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "tutor_tool_loop_iterations",
		Help:    "子 Agent 工具循环轮数",
		Buckets: []float64{1, 2, 3, 4, 5, 8, 13},
	},
	[]string{"agent"},
)

var CompletionDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "tutor_completion_duration_seconds",
		Help:    "Completion Service 单次调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"provider"},
)

var CompletionRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tutor_completion_retries_total",
		Help: "瞬时错误导致的重试次数",
	},
	[]string{"provider", "code"},
)

// RateLimitWaitSeconds 限流等待时间
var RateLimitWaitSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "tutor_rate_limit_wait_seconds",
		Help:    "限流等待时间（秒）",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	},
	[]string{"kind", "name"},
)

var SessionsInFlight = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "tutor_sessions_in_flight",
		Help: "当前持有会话锁的查询数",
	},
)

// WritePrometheus 以文本格式输出全部指标
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
