// Package observability provides Prometheus metrics for the feed.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "midgard_feed"

// Metrics holds the feed's collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	TicksTotal        prometheus.Counter
	TickFailures      prometheus.Counter
	FetchRetries      prometheus.Counter
	EventsEmitted     *prometheus.CounterVec
	RecordsDropped    *prometheus.CounterVec
	TickDuration      prometheus.Histogram
	TxCacheSize       prometheus.Gauge
	ClientsConnected  prometheus.Gauge
	JournalWriteFails *prometheus.CounterVec
}

// NewMetrics registers all collectors on reg. A nil reg uses the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "ticks_total",
			Help:      "Total number of realtime ticks run",
		}),
		TickFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "tick_failures_total",
			Help:      "Ticks skipped after exhausting fetch attempts",
		}),
		FetchRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "fetch_retries_total",
			Help:      "Tick bodies retried after a failed attempt",
		}),
		EventsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Domain events delivered to the listener by kind",
		}, []string{"kind"}),
		RecordsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "midgard",
			Name:      "records_dropped_total",
			Help:      "Malformed wire records dropped by source",
		}, []string{"source"}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one tick including retries",
			Buckets:   prometheus.DefBuckets,
		}),
		TxCacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "tx_cache_size",
			Help:      "Transactions held by the lifecycle tracker",
		}),
		ClientsConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients_connected",
			Help:      "Websocket clients currently subscribed",
		}),
		JournalWriteFails: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "write_failures_total",
			Help:      "Journal writes that failed by sink",
		}, []string{"sink"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves the metrics gathered by g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordTick(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.TicksTotal.Inc()
	m.TickDuration.Observe(duration.Seconds())
	if err != nil {
		m.TickFailures.Inc()
	}
}

func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.FetchRetries.Inc()
}

func (m *Metrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	m.EventsEmitted.WithLabelValues(kind).Inc()
}

// RecordDropped counts n malformed records from source ("pools", "actions").
func (m *Metrics) RecordDropped(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsDropped.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) SetTxCacheSize(n int) {
	if m == nil {
		return
	}
	m.TxCacheSize.Set(float64(n))
}

func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.ClientsConnected.Set(float64(n))
}

func (m *Metrics) RecordJournalFailure(sink string) {
	if m == nil {
		return
	}
	m.JournalWriteFails.WithLabelValues(sink).Inc()
}
