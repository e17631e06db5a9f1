// Package metrics exposes Prometheus counters and histograms for the HTTP service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry         *prometheus.Registry
	loads            *prometheus.CounterVec
	cleanings        *prometheus.CounterVec
	forecasts        *prometheus.CounterVec
	forecastDuration prometheus.Histogram
	requests         *prometheus.CounterVec
	sessions         prometheus.Gauge
}

// New registers every collector plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gradecast",
			Name:      "loads_total",
			Help:      "Tables loaded, by source kind and outcome.",
		}, []string{"source", "outcome"}),
		cleanings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gradecast",
			Name:      "cleanings_total",
			Help:      "Cleaning operations, by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		forecasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gradecast",
			Name:      "forecasts_total",
			Help:      "Forecast runs, by outcome.",
		}, []string{"outcome"}),
		forecastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gradecast",
			Name:      "forecast_duration_seconds",
			Help:      "Wall time of successful forecast runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gradecast",
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route pattern and status code class.",
		}, []string{"route", "code"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gradecast",
			Name:      "sessions_active",
			Help:      "Live sessions.",
		}),
	}
	m.registry.MustRegister(
		m.loads, m.cleanings, m.forecasts, m.forecastDuration, m.requests, m.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// ObserveLoad counts one load from source ("upload" or "sample").
func (m *Metrics) ObserveLoad(source string, err error) {
	m.loads.WithLabelValues(source, outcome(err)).Inc()
}

// ObserveClean counts one cleaning run.
func (m *Metrics) ObserveClean(strategy string, err error) {
	m.cleanings.WithLabelValues(strategy, outcome(err)).Inc()
}

// ObserveForecast counts one forecast run and records its duration on success.
func (m *Metrics) ObserveForecast(d time.Duration, err error) {
	m.forecasts.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.forecastDuration.Observe(d.Seconds())
	}
}

// ObserveRequest counts one HTTP response.
func (m *Metrics) ObserveRequest(route string, status int) {
	m.requests.WithLabelValues(route, codeClass(status)).Inc()
}

// SetSessions reports the live session count.
func (m *Metrics) SetSessions(n int) { m.sessions.Set(float64(n)) }

func codeClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
