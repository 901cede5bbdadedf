package loader

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects loader metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	fetches     *prometheus.CounterVec
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	shared      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics creates and registers the loader metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_fetches_total",
			Help:      "Dataset source fetch attempts by resource and outcome.",
		}, []string{"resource", "outcome"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_cache_hits_total",
			Help:      "Dataset loads served from the cache.",
		}, []string{"resource"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_cache_misses_total",
			Help:      "Dataset loads that needed a fetch.",
		}, []string{"resource"}),
		shared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_shared_loads_total",
			Help:      "Dataset loads that joined a load already in flight.",
		}, []string{"resource"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dataset_load_duration_seconds",
			Help:      "Time spent walking the source list of a resource.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource"}),
	}
	m.registry.MustRegister(m.fetches, m.cacheHits, m.cacheMisses, m.shared, m.duration)
	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) fetch(r Resource, outcome string) {
	if m != nil {
		m.fetches.WithLabelValues(string(r), outcome).Inc()
	}
}

func (m *Metrics) hit(r Resource) {
	if m != nil {
		m.cacheHits.WithLabelValues(string(r)).Inc()
	}
}

func (m *Metrics) miss(r Resource) {
	if m != nil {
		m.cacheMisses.WithLabelValues(string(r)).Inc()
	}
}

func (m *Metrics) joined(r Resource) {
	if m != nil {
		m.shared.WithLabelValues(string(r)).Inc()
	}
}

func (m *Metrics) observe(r Resource, d time.Duration) {
	if m != nil {
		m.duration.WithLabelValues(string(r)).Observe(d.Seconds())
	}
}
