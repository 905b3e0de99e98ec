package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Deployment metrics
	DeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctos_deployments_total",
			Help: "Total number of deployment attempts by action and terminal outcome",
		},
		[]string{"action", "outcome"},
	)

	DeploymentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ctos_deployment_duration_seconds",
			Help:    "End-to-end duration of deployment attempts",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
		},
	)

	DeploymentsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ctos_deployments_in_flight",
			Help: "Number of deployment state machines currently running",
		},
	)

	RollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctos_rollbacks_total",
			Help: "Total number of rollback attempts by trigger (auto or manual)",
		},
		[]string{"trigger"},
	)

	// Health probe metrics
	ProbeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ctos_probe_duration_seconds",
			Help:    "Duration of individual health check observations",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Audit metrics
	AuditWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ctos_audit_write_failures_total",
			Help: "Audit records that fell back to stderr due to storage errors",
		},
	)
)

func init() {
	// Register all metrics with the default registry
	prometheus.MustRegister(DeploymentsTotal)
	prometheus.MustRegister(DeploymentDuration)
	prometheus.MustRegister(DeploymentsInFlight)
	prometheus.MustRegister(RollbacksTotal)
	prometheus.MustRegister(ProbeDuration)
	prometheus.MustRegister(AuditWriteFailures)
}

// Handler returns an HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
