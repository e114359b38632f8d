package metrics

import (
	"strings"
	"testing"
)

func TestName(t *testing.T) {
	tests := []struct {
		base   string
		labels []string
		want   string
	}{
		{"cache_hits_total", nil, "xinventories_cache_hits_total"},
		{"storage_errors_total", []string{"backend", "sqlite"},
			`xinventories_storage_errors_total{backend="sqlite"}`},
		{"flush_duration_seconds", []string{"backend", "mysql", "outcome", "ok"},
			`xinventories_flush_duration_seconds{backend="mysql",outcome="ok"}`},
	}
	for _, tc := range tests {
		if got := Name(tc.base, tc.labels...); got != tc.want {
			t.Errorf("Name(%q, %v) = %q, want %q", tc.base, tc.labels, got, tc.want)
		}
	}
}

func TestCounterAppearsInExposition(t *testing.T) {
	c := GetOrCreateCounter("test_events_total", "kind", "unit")
	c.Inc()

	var buf strings.Builder
	WritePrometheus(&buf)
	if !strings.Contains(buf.String(), `xinventories_test_events_total{kind="unit"} 1`) {
		t.Fatalf("counter missing from exposition:\n%s", buf.String())
	}
}
