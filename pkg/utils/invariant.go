// Invariants are conditions that must hold unless there is a bug in slotcache itself, e.g. the recency list and
// the slot index disagreeing on which slots are occupied. Violations are logged, counted in a Prometheus counter and,
// in test builds, turned into panics so that tests fail loudly.
//
// It is still up to the caller to handle the erroneous case after raising, e.g. by returning early.
// Do not raise invariants for conditions that depend on external factors; a constructor failing to open a file is
// an error, not an invariant violation.

package utils

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	promclient "github.com/prometheus/client_model/go"
)

var invariantsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "invariants_total",
	Help: "The total number of invariant violations",
}, []string{
	"module", // The module in which this invariant occurred.
	"type",   // The type of the invariant that occurred.
})

// RaiseInvariant records a violated invariant of `invariantType` in `module`.
func RaiseInvariant(module, invariantType, msg string, args ...any) {
	invariantsMetric.WithLabelValues(module, invariantType).Inc()
	slog.With("invariant", invariantType, "module", module).Error(msg, args...)
	if IsTestMode {
		panic("invariant violated: " + invariantType)
	}
}

// GetMetricValue returns the number of times the invariant `invariantType` of `module` has been raised.
func GetMetricValue(module, invariantType string) int {
	return CounterValue(invariantsMetric.WithLabelValues(module, invariantType))
}

// CounterValue reads the current value of a Prometheus counter; mostly useful in tests.
func CounterValue(counter prometheus.Counter) int {
	var metric = &promclient.Metric{}
	if err := counter.Write(metric); err != nil {
		slog.Error("Failed to read counter value.", "error", err)
		return 0
	}
	return int(metric.Counter.GetValue())
}
