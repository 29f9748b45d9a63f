package metrics

import (
	"time"

	"sector-registry/sectorhub/internal/constants"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsRegistry holds all Prometheus metrics for the sector registry.
// A nil *MetricsRegistry is valid and records nothing.
type MetricsRegistry struct {
	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec

	// Business Metrics
	MappingMutationsTotal  *prometheus.CounterVec
	TransitionRunsTotal    *prometheus.CounterVec
	TransitionRecordsTotal *prometheus.CounterVec
	TransitionRunDuration  *prometheus.HistogramVec
	TransitionLastSuccess  prometheus.Gauge
}

// NewMetricsRegistry registers every metric on reg. Pass prometheus.DefaultRegisterer
// in the server and prometheus.NewRegistry() in tests.
func NewMetricsRegistry(reg prometheus.Registerer) *MetricsRegistry {
	factory := promauto.With(reg)
	return &MetricsRegistry{
		// HTTP Metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sectorhub_http_requests_total",
				Help: "Total HTTP requests processed by endpoint, method, and status code",
			},
			[]string{"endpoint", "method", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sectorhub_http_request_duration_seconds",
				Help:    "HTTP request latency distribution in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint", "method"},
		),
		HTTPRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sectorhub_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"endpoint"},
		),

		// Business Metrics
		MappingMutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sectorhub_mapping_records_mutated_total",
				Help: "Mapping records written by the mapping service, by action",
			},
			[]string{"action"},
		),
		TransitionRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sectorhub_transition_runs_total",
				Help: "Transition engine runs by trigger and outcome",
			},
			[]string{"trigger", "status"},
		),
		TransitionRecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sectorhub_transition_records_total",
				Help: "Mapping records flipped by the transition engine, by action",
			},
			[]string{"action"},
		),
		TransitionRunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sectorhub_transition_run_duration_seconds",
				Help:    "Transition engine run time in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"trigger"},
		),
		TransitionLastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sectorhub_transition_last_success_timestamp_seconds",
				Help: "Unix time of the last successful transition run",
			},
		),
	}
}

// ObserveMutation counts records written by one service operation
func (m *MetricsRegistry) ObserveMutation(action string, records int64) {
	if m == nil || records <= 0 {
		return
	}
	m.MappingMutationsTotal.WithLabelValues(action).Add(float64(records))
}

// ObserveTransitionRun records the outcome of one engine run
func (m *MetricsRegistry) ObserveTransitionRun(trigger, status string, took time.Duration, deactivated, activated int, finished time.Time) {
	if m == nil {
		return
	}
	m.TransitionRunsTotal.WithLabelValues(trigger, status).Inc()
	m.TransitionRunDuration.WithLabelValues(trigger).Observe(took.Seconds())
	if deactivated > 0 {
		m.TransitionRecordsTotal.WithLabelValues(constants.TransitionDeactivated).Add(float64(deactivated))
	}
	if activated > 0 {
		m.TransitionRecordsTotal.WithLabelValues(constants.TransitionActivated).Add(float64(activated))
	}
	if status == constants.TransitionRunSucceeded {
		m.TransitionLastSuccess.Set(float64(finished.Unix()))
	}
}
