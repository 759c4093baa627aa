package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the governance engine.
type Metrics struct {
	// Terminal decisions by path (auto_approved, approved, denied, expired,
	// rate_limited, circuit_blocked).
	DecisionsTotal *prometheus.CounterVec

	// Synchronous authorize latency (classification through decision/pending).
	AuthorizeLatency prometheus.Histogram

	// Approvals currently awaiting a human decision.
	PendingApprovals prometheus.Gauge

	// Executions by outcome (success, failure).
	ExecutionsTotal *prometheus.CounterVec

	// Circuit trips by scope (resource name or "global").
	CircuitTrips *prometheus.CounterVec
}

// New creates and registers all governance metrics.
func New() *Metrics {
	return &Metrics{
		DecisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_governance_decisions_total",
			Help: "Terminal governance decisions by path and risk level",
		}, []string{"path", "risk"}),

		AuthorizeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_governance_authorize_duration_seconds",
			Help:    "Duration of the synchronous authorize call",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
		}),

		PendingApprovals: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "warden_governance_pending_approvals",
			Help: "Approval requests currently awaiting a human decision",
		}),

		ExecutionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_governance_executions_total",
			Help: "Executor invocations by outcome",
		}, []string{"outcome"}),

		CircuitTrips: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_governance_circuit_trips_total",
			Help: "Circuit breaker trips by scope",
		}, []string{"scope"}),
	}
}

// ObserveDecision records one terminal decision.
func (m *Metrics) ObserveDecision(path, risk string) {
	if m != nil {
		m.DecisionsTotal.WithLabelValues(path, risk).Inc()
	}
}

// ObserveAuthorize records the synchronous authorize duration.
func (m *Metrics) ObserveAuthorize(d time.Duration) {
	if m != nil {
		m.AuthorizeLatency.Observe(d.Seconds())
	}
}

// SetPendingApprovals updates the pending-approvals gauge.
func (m *Metrics) SetPendingApprovals(n int) {
	if m != nil {
		m.PendingApprovals.Set(float64(n))
	}
}

// ObserveExecution records one executor invocation.
func (m *Metrics) ObserveExecution(outcome string) {
	if m != nil {
		m.ExecutionsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveCircuitTrip records a breaker opening.
func (m *Metrics) ObserveCircuitTrip(scope string) {
	if m != nil {
		m.CircuitTrips.WithLabelValues(scope).Inc()
	}
}
