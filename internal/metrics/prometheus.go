package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sshguard/internal/model"
)

const namespace = "sshguard"

// Collectors holds the exported counters. Each instance owns its registry so
// tests can build several side by side.
type Collectors struct {
	Registry        *prometheus.Registry
	AttemptsTotal   *prometheus.CounterVec
	DroppedTotal    *prometheus.CounterVec
	AlertsTotal     *prometheus.CounterVec
	AnalyzeDuration prometheus.Histogram
	StoredAttempts  prometheus.Gauge
	SinkErrors      prometheus.Counter
}

func NewCollectors() *Collectors {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Collectors{
		Registry: reg,
		AttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Connection attempts ingested, by source and result.",
		}, []string{"source", "result"}),
		DroppedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_dropped_total",
			Help:      "Connection attempts dropped because the ingest channel was full.",
		}, []string{"source"}),
		AlertsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts raised, by type and severity.",
		}, []string{"type", "severity"}),
		AnalyzeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analyze_duration_seconds",
			Help:      "Time spent in one analysis pass.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		StoredAttempts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_attempts",
			Help:      "Attempts currently held in the event store.",
		}),
		SinkErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Alert persistence failures.",
		}),
	}
}

func (c *Collectors) ObserveAttempt(att model.ConnectionAttempt) {
	if c == nil {
		return
	}
	result := "failure"
	if att.Success {
		result = "success"
	}
	source := att.Source
	if source == "" {
		source = "direct"
	}
	c.AttemptsTotal.WithLabelValues(source, result).Inc()
}

func (c *Collectors) ObserveDrop(source string) {
	if c == nil {
		return
	}
	c.DroppedTotal.WithLabelValues(source).Inc()
}

func (c *Collectors) ObserveAnalysis(d time.Duration, stored int, alerts []model.Alert) {
	if c == nil {
		return
	}
	c.AnalyzeDuration.Observe(d.Seconds())
	c.StoredAttempts.Set(float64(stored))
	for _, a := range alerts {
		c.AlertsTotal.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
	}
}

func (c *Collectors) ObserveSinkError() {
	if c == nil {
		return
	}
	c.SinkErrors.Inc()
}

func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{Registry: c.Registry})
}
