// Package metrics exposes Prometheus collectors for extraction traffic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nerapi"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	requests    *prometheus.CounterVec
	duration    prometheus.Histogram
	entities    prometheus.Counter
	fallbacks   prometheus.Counter
	cacheLookup *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extract_requests_total",
			Help:      "Extraction requests by outcome.",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extract_duration_seconds",
			Help:      "Engine time per extraction request.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		entities: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extracted_entities_total",
			Help:      "Entities returned to callers.",
		}),
		fallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_fallback_calls_total",
			Help:      "Extractions retried with entity type names only.",
		}),
		cacheLookup: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extract_cache_lookups_total",
			Help:      "Result cache lookups by result.",
		}, []string{"result"}),
	}
}

// WatchModelState publishes the model handle state (0 unloaded, 1 loading,
// 2 loaded).
func WatchModelState(reg prometheus.Registerer, model string, state func() float64) {
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "model_state",
		Help:        "Model handle state: 0 unloaded, 1 loading, 2 loaded.",
		ConstLabels: prometheus.Labels{"model": model},
	}, state)
}

func (m *Metrics) ObserveExtract(outcome string, d time.Duration, entities int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		m.duration.Observe(d.Seconds())
		m.entities.Add(float64(entities))
	}
}

func (m *Metrics) Fallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookup.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookup.WithLabelValues("miss").Inc()
}

const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
