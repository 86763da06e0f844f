package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTraceID_FallbackIsUnique(t *testing.T) {
	a := TraceID(context.Background())
	b := TraceID(context.Background())
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestTraceID_FromSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	id := TraceID(ctx)
	assert.Equal(t, span.SpanContext().TraceID().String(), id)

	EndSpan(span, errors.New("boom"))
	ended := rec.Ended()
	if assert.Len(t, ended, 1) {
		assert.Equal(t, "boom", ended[0].Status().Description)
	}
}
