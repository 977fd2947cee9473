package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	// WaitingJobs tracks candidates waiting in the queue.
	WaitingJobs prometheus.Gauge
	// RunningJobs tracks candidates currently being synchronized.
	RunningJobs prometheus.Gauge
	// LiveWorkers tracks workers in the supervised set.
	LiveWorkers prometheus.Gauge
	// SyncOutcomes counts finished synchronization attempts by result.
	SyncOutcomes *prometheus.CounterVec
	// CredentialOps counts credential operations by operation and result.
	CredentialOps *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		WaitingJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedsync_queue_waiting_jobs",
			Help: "Number of candidates waiting to be synchronized.",
		}),
		RunningJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedsync_queue_running_jobs",
			Help: "Number of candidates currently being synchronized.",
		}),
		LiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedsync_workers_live",
			Help: "Number of workers in the supervised set.",
		}),
		SyncOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fedsync_sync_outcomes_total",
			Help: "Finished synchronization attempts by result.",
		}, []string{"result"}),
		CredentialOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fedsync_credential_operations_total",
			Help: "Credential operations by operation and result.",
		}, []string{"operation", "result"}),
	}
	registry.MustRegister(m.WaitingJobs, m.RunningJobs, m.LiveWorkers, m.SyncOutcomes, m.CredentialOps)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
