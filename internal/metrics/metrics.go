// Package metrics provides Prometheus metrics for the intake flow.
package metrics

import (
	"net/http"

	"github.com/ashureev/remodel-intake/internal/intake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements intake.Recorder on its own registry.
type PrometheusRecorder struct {
	registry        *prometheus.Registry
	turnsTotal      *prometheus.CounterVec
	sessionsStarted *prometheus.CounterVec
	sessionsEnded   *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	activeSessions  prometheus.Gauge
}

// NewPrometheusRecorder creates a recorder with Go and process collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_turns_total",
				Help: "Inbound messages processed, by outcome",
			},
			[]string{"outcome"},
		),
		sessionsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_sessions_started_total",
				Help: "Sessions started, split into fresh starts and restarts",
			},
			[]string{"kind"},
		),
		sessionsEnded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_sessions_ended_total",
				Help: "Sessions ended, by terminal phase",
			},
			[]string{"phase"},
		),
		submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_submissions_total",
				Help: "Finalized submissions, by administrator delivery status",
			},
			[]string{"status"},
		),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "intake_active_sessions",
			Help: "Sessions currently collecting answers",
		}),
	}
}

// ObserveTurn counts one processed message.
func (p *PrometheusRecorder) ObserveTurn(kind intake.OutcomeKind) {
	p.turnsTotal.WithLabelValues(kind.String()).Inc()
}

// IncSessionStarted counts a start or restart.
func (p *PrometheusRecorder) IncSessionStarted(restart bool) {
	kind := "start"
	if restart {
		kind = "restart"
	}
	p.sessionsStarted.WithLabelValues(kind).Inc()
}

// IncSessionEnded counts a session reaching phase.
func (p *PrometheusRecorder) IncSessionEnded(phase string) {
	p.sessionsEnded.WithLabelValues(phase).Inc()
}

// IncSubmission counts a finalized submission.
func (p *PrometheusRecorder) IncSubmission(delivered bool) {
	status := "delivered"
	if !delivered {
		status = "failed"
	}
	p.submissions.WithLabelValues(status).Inc()
}

// SetActiveSessions sets the active session gauge.
func (p *PrometheusRecorder) SetActiveSessions(n int) {
	p.activeSessions.Set(float64(n))
}

// Registry returns the underlying registry.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

var _ intake.Recorder = (*PrometheusRecorder)(nil)
