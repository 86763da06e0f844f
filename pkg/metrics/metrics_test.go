package metrics

import (
	"bytes"
	"strings"
	"testing"
)

func TestWritePrometheus(t *testing.T) {
	QueryTotal.WithLabelValues("math", "ok").Inc()
	ToolInvocationsTotal.WithLabelValues("calculator", "ok").Inc()

	var buf bytes.Buffer
	if err := WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, name := range []string{"tutor_query_total", "tutor_tool_invocations_total", "tutor_sessions_in_flight"} {
		if !strings.Contains(out, name) {
			t.Errorf("output missing %s", name)
		}
	}
}
