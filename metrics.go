package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blocknetprivacy/blocksim/chain"
)

const metricsNamespace = "blocksim"

// Metrics groups the simulator's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	hashes             prometheus.Counter
	blocksMined        *prometheus.CounterVec
	searches           *prometheus.CounterVec
	searchSeconds      prometheus.Histogram
	tampers            prometheus.Counter
	validationFailures *prometheus.CounterVec
	activeLength       prometheus.Gauge
	tips               prometheus.Gauge
	mempoolSize        prometheus.Gauge
}

// NewMetrics registers all collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		hashes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "hashes_total",
			Help:      "Digests computed by proof-of-work searches.",
		}),
		blocksMined: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "blocks_mined_total",
			Help:      "Blocks appended after a successful search.",
		}, []string{"miner"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "searches_total",
			Help:      "Proof-of-work searches by outcome.",
		}, []string{"miner", "outcome"}),
		searchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "search_duration_seconds",
			Help:      "Wall time of successful searches.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		tampers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tampers_total",
			Help:      "Blocks whose transactions were replaced after mining.",
		}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "validation_failures_total",
			Help:      "First-failure validation errors observed on the active path.",
		}, []string{"kind"}),
		activeLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_path_length",
			Help:      "Blocks on the active root-to-tip path.",
		}),
		tips: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "tips",
			Help:      "Current number of chain tips.",
		}),
		mempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "mempool_transactions",
			Help:      "Pending transactions.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.hashes, m.blocksMined, m.searches, m.searchSeconds, m.tampers,
		m.validationFailures, m.activeLength, m.tips, m.mempoolSize,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) addHashes(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.hashes.Add(float64(n))
}

func (m *Metrics) searchFinished(miner, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(miner, outcome).Inc()
	if outcome == "found" {
		m.searchSeconds.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) blockMined(miner string) {
	if m == nil {
		return
	}
	m.blocksMined.WithLabelValues(miner).Inc()
}

func (m *Metrics) tampered() {
	if m == nil {
		return
	}
	m.tampers.Inc()
}

func (m *Metrics) observeView(v View, tips, mempool int) {
	if m == nil {
		return
	}
	m.activeLength.Set(float64(v.Result.Length))
	m.tips.Set(float64(tips))
	m.mempoolSize.Set(float64(mempool))
}

func (m *Metrics) validationFailed(kind chain.Kind) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(kind.String()).Inc()
}
