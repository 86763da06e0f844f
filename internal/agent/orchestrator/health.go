package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"

	probeTimeout = 3 * time.Second
)

// Probe 一个外部依赖的健康检查
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthReport GET /health 的响应体
type HealthReport struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Healthy 所有组件正常
func (h *HealthReport) Healthy() bool { return h.Status == StatusHealthy }

// Health 并发检查 session_store 与已注册的探针；任一失败即 degraded
func (o *Orchestrator) Health(ctx context.Context) *HealthReport {
	probes := append([]Probe{
		{Name: "orchestrator", Check: func(context.Context) error { return nil }},
		{Name: "session_store", Check: o.sessions.Ping},
	}, o.probes...)

	var mu sync.Mutex
	components := make(map[string]string, len(probes))
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range probes {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, probeTimeout)
			defer cancel()
			status := StatusHealthy
			if err := p.Check(pctx); err != nil {
				// 原始错误只进日志，可能含主机或 DSN
				status = StatusUnhealthy
				o.logger.Warn("health probe failed", "component", p.Name, "error", err)
			}
			mu.Lock()
			components[p.Name] = status
			mu.Unlock()
			// 不返回错误，避免取消其他探针
			return nil
		})
	}
	_ = g.Wait()

	report := &HealthReport{Status: StatusHealthy, Components: components, Timestamp: time.Now().UTC()}
	for _, s := range components {
		if s != StatusHealthy {
			report.Status = StatusDegraded
		}
	}
	return report
}
