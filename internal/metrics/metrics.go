// Package metrics exposes extraction counters on a dedicated Prometheus
// registry. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "namefinder"

// Outcome labels for extractions.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder owns the registry and every collector registered on it.
type Recorder struct {
	registry       *prometheus.Registry
	extractions    *prometheus.CounterVec
	rateLimited    prometheus.Counter
	ocrInFlight    prometheus.Gauge
	ocrDuration    prometheus.Histogram
	namesExtracted prometheus.Histogram
}

// NewRecorder builds a Recorder with Go runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Extraction attempts by text source and outcome.",
		}, []string{"source", "outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		ocrInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ocr_in_flight",
			Help:      "OCR jobs currently holding a slot.",
		}),
		ocrDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ocr_duration_seconds",
			Help:      "Wall time of completed OCR engine calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}),
		namesExtracted: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "names_extracted",
			Help:      "Name candidates returned per successful extraction.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.extractions,
		r.rateLimited,
		r.ocrInFlight,
		r.ocrDuration,
		r.namesExtracted,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) ObserveExtraction(source, outcome string, names int) {
	if r == nil {
		return
	}
	if source == "" {
		source = "none"
	}
	r.extractions.WithLabelValues(source, outcome).Inc()
	if outcome == OutcomeSuccess {
		r.namesExtracted.Observe(float64(names))
	}
}

func (r *Recorder) IncRateLimited() {
	if r == nil {
		return
	}
	r.rateLimited.Inc()
}

// SetOCRInFlight and ObserveOCRDuration satisfy ocr.Observer.
func (r *Recorder) SetOCRInFlight(n int64) {
	if r == nil {
		return
	}
	r.ocrInFlight.Set(float64(n))
}

func (r *Recorder) ObserveOCRDuration(seconds float64) {
	if r == nil {
		return
	}
	r.ocrDuration.Observe(seconds)
}
