// Package metrics centralises metric naming and exposition. Components
// register their own counters and gauges against the default set; this
// package only owns the shared prefix and the Prometheus text dump.
package metrics

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// Prefix is the namespace every metric name starts with.
const Prefix = "xinventories_"

// Name builds a prefixed metric name, optionally with label pairs.
// Labels must come in key, value order.
func Name(base string, labels ...string) string {
	if len(labels) == 0 {
		return Prefix + base
	}
	s := Prefix + base + "{"
	for i := 0; i+1 < len(labels); i += 2 {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%s=%q", labels[i], labels[i+1])
	}
	return s + "}"
}

// GetOrCreateCounter returns the prefixed counter, registering it on
// first use.
func GetOrCreateCounter(base string, labels ...string) *metrics.Counter {
	return metrics.GetOrCreateCounter(Name(base, labels...))
}

// GetOrCreateGauge returns the prefixed gauge backed by f, registering
// it on first use.
func GetOrCreateGauge(base string, f func() float64) *metrics.Gauge {
	return metrics.GetOrCreateGauge(Name(base), f)
}

// WritePrometheus dumps every registered metric in Prometheus text
// format, including process metrics.
func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, true)
}
