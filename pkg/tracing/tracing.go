// Package tracing 封装 OpenTelemetry span 与 trace id，不依赖 internal
package tracing

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceID 返回当前 span 的 trace id；未启用追踪时生成随机 id，保证错误记录总能关联
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return uuid.New().String()
}
