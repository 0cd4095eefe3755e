// Package metrics exposes Prometheus counters for the analysis pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/ericksa/contractrisk/internal/risk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "contractrisk"

// Metrics owns its registry so several instances can coexist in tests.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	analyses *prometheus.CounterVec
	findings *prometheus.CounterVec
	score    prometheus.Histogram
	duration prometheus.Histogram
	uploads  *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		// Labels: status (analyzed, failed)
		analyses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "total",
			Help:      "Contract analyses by outcome",
		}, []string{"status"}),
		// Labels: severity (high, medium, low)
		findings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "findings_total",
			Help:      "Risk findings by severity",
		}, []string{"severity"}),
		score: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "risk_score",
			Help:      "Distribution of contract risk scores",
			Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Time from upload to persisted analysis",
			Buckets:   prometheus.DefBuckets,
		}),
		// Labels: result (accepted, rejected)
		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "total",
			Help:      "Upload requests by result",
		}, []string{"result"}),
	}
}

// ObserveAnalysis records a successful analysis.
func (m *Metrics) ObserveAnalysis(report risk.Report, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues("analyzed").Inc()
	for _, f := range report.Risks {
		m.findings.WithLabelValues(string(f.Severity)).Inc()
	}
	m.score.Observe(float64(report.RiskScore))
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveFailure() {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues("failed").Inc()
}

func (m *Metrics) ObserveUpload(accepted bool) {
	if m == nil {
		return
	}
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	m.uploads.WithLabelValues(result).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
