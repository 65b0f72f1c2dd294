// Package metrics exposes the core's Prometheus collectors: scoring
// latency, dispatch attempts, capacity-counter rejections, and ledger
// transitions, grounded on
// services/pricing_service/src/PricingController.go's ControllerMetrics
// field-of-named-collectors shape.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every collector the core publishes, registered
// once at boot against a single prometheus.Registerer.
type Registry struct {
	ScoringLatency     prometheus.Histogram
	ScoringTotal       *prometheus.CounterVec
	DispatchAttempts   *prometheus.CounterVec
	DispatchOutcomes   *prometheus.CounterVec
	CapacityRejections *prometheus.CounterVec
	LedgerTransitions  *prometheus.CounterVec
	RoutingDecisions   *prometheus.CounterVec
}

// New builds and registers a Registry against reg.
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		ScoringLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aurum_core",
			Subsystem: "scoring",
			Name:      "latency_seconds",
			Help:      "Time to compute one ScoreSnapshot.",
			Buckets:   prometheus.DefBuckets,
		}),
		ScoringTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aurum_core",
			Subsystem: "scoring",
			Name:      "snapshots_total",
			Help:      "ScoreSnapshots produced, labeled by resulting tier.",
		}, []string{"tier"}),
		DispatchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aurum_core",
			Subsystem: "dispatch",
			Name:      "attempts_total",
			Help:      "Transport send attempts, labeled by platform and delivery method.",
		}, []string{"platform", "delivery_method"}),
		DispatchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aurum_core",
			Subsystem: "dispatch",
			Name:      "outcomes_total",
			Help:      "Terminal dispatch outcomes, labeled by platform and outcome.",
		}, []string{"platform", "outcome"}),
		CapacityRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aurum_core",
			Subsystem: "capacity",
			Name:      "rejections_total",
			Help:      "check_and_increment calls that returned allowed=false, labeled by key window.",
		}, []string{"window"}),
		LedgerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aurum_core",
			Subsystem: "ledger",
			Name:      "transitions_total",
			Help:      "Revenue ledger state transitions applied from buyer feedback, labeled by resulting (status,payment_status).",
		}, []string{"status", "payment_status"}),
		RoutingDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aurum_core",
			Subsystem: "routing",
			Name:      "decisions_total",
			Help:      "Routing outcomes, labeled by chosen platform or failure reason.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.ScoringLatency, m.ScoringTotal, m.DispatchAttempts, m.DispatchOutcomes,
		m.CapacityRejections, m.LedgerTransitions, m.RoutingDecisions,
	)
	return m
}
