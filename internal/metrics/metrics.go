// Package metrics exposes Prometheus collectors for detection and fill
// cycles. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autofill"

type Metrics struct {
	registry *prometheus.Registry

	DetectionsTotal   *prometheus.CounterVec
	DetectionDuration prometheus.Histogram
	FormsDetected     prometheus.Gauge
	FieldsDetected    prometheus.Gauge

	FillsTotal       *prometheus.CounterVec
	FillDuration     prometheus.Histogram
	FieldWritesTotal *prometheus.CounterVec
	ResolutionsTotal *prometheus.CounterVec

	MatcherRequestsTotal   *prometheus.CounterVec
	MatcherRequestDuration prometheus.Histogram

	HTTPRequestsTotal *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		DetectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Detection passes by outcome (found, empty, error).",
		}, []string{"outcome"}),
		DetectionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_duration_seconds",
			Help:      "Duration of one detection pass.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		FormsDetected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "forms_detected",
			Help:      "Forms found by the latest detection pass.",
		}),
		FieldsDetected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fields_detected",
			Help:      "Fields found by the latest detection pass.",
		}),
		FillsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_total",
			Help:      "Fill cycles by outcome (success, partial, failure, rejected).",
		}, []string{"outcome"}),
		FillDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fill_duration_seconds",
			Help:      "Duration of one fill cycle.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		FieldWritesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "field_writes_total",
			Help:      "Field writes by control type and result.",
		}, []string{"type", "result"}),
		ResolutionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Field resolutions by source tier.",
		}, []string{"source"}),
		MatcherRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matcher_requests_total",
			Help:      "AI matcher calls by status.",
		}, []string{"status"}),
		MatcherRequestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "matcher_request_duration_seconds",
			Help:      "AI matcher call duration.",
			Buckets:   prometheus.DefBuckets,
		}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Control API requests.",
		}, []string{"method", "route", "status"}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordDetection(outcome string, forms, fields int, d time.Duration) {
	if m == nil {
		return
	}
	m.DetectionsTotal.WithLabelValues(outcome).Inc()
	m.DetectionDuration.Observe(d.Seconds())
	if outcome != "error" {
		m.FormsDetected.Set(float64(forms))
		m.FieldsDetected.Set(float64(fields))
	}
}

func (m *Metrics) RecordFill(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FillsTotal.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.FillDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) RecordWrite(controlType string, applied bool, reason string) {
	if m == nil {
		return
	}
	result := "applied"
	if !applied {
		result = reason
	}
	m.FieldWritesTotal.WithLabelValues(controlType, result).Inc()
}

func (m *Metrics) RecordResolution(source string) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordMatcher(err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.MatcherRequestsTotal.WithLabelValues(status).Inc()
	m.MatcherRequestDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
