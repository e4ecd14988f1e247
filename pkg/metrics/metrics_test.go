package metrics

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWritePrometheus(t *testing.T) {
	TrajectoryTotal.WithLabelValues("succeeded").Inc()
	ToolCallTotal.WithLabelValues("google_search", "ok").Inc()

	var buf bytes.Buffer
	if err := WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, name := range []string{"search_agent_trajectory_total", "search_agent_tool_call_total"} {
		if !strings.Contains(out, name) {
			t.Errorf("output missing %s", name)
		}
	}
	if got := testutil.ToFloat64(TrajectoryTotal.WithLabelValues("succeeded")); got < 1 {
		t.Errorf("trajectory counter: got %v", got)
	}
}
