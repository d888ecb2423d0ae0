// Package metrics exposes Prometheus instrumentation for dispatch
// lifecycle events, matching the project's other HTTP processors, which
// all register a client_golang registry and serve it on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups the coordinator's counters and histograms. StallsTotal
// and LLMCallDuration are registered and exposed, but nothing in this
// module increments or observes them.
type Registry struct {
	DispatchTotal   *prometheus.CounterVec
	ServiceOutcomes *prometheus.CounterVec
	StallsTotal     prometheus.Counter
	LLMCallDuration *prometheus.HistogramVec
}

// NewRegistry creates and registers all coordinator metrics against reg.
// Pass prometheus.NewRegistry() in tests to avoid collisions with the
// global default registry.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		DispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_dispatch_total",
			Help: "Total number of /api/dispatch calls, by outcome.",
		}, []string{"outcome"}),
		ServiceOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_service_outcomes_total",
			Help: "Per-service dispatch outcomes (executed, error, skipped).",
		}, []string{"service_id", "outcome"}),
		StallsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_dispatch_stalls_total",
			Help: "Total number of no-progress stall passes across all dispatches.",
		}),
		LLMCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coordinator_llm_call_duration_seconds",
			Help:    "Latency of chat/embedding calls to the LLM backend.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}
