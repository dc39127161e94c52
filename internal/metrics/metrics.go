// Package metrics exposes client-side synchronization metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	MessagesMerged  *prometheus.CounterVec
	FetchFailures   *prometheus.CounterVec
	WriteFailures   *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	SendsTotal      *prometheus.CounterVec
	SocketReconnect prometheus.Counter
	Online          prometheus.Gauge
	CacheHits       prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		MessagesMerged: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirechat_messages_merged_total",
				Help: "Messages merged into the canonical store, by source",
			},
			[]string{"source"},
		),
		FetchFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirechat_fetch_failures_total",
				Help: "Failed backend calls, by operation and error kind",
			},
			[]string{"op", "kind"},
		),
		WriteFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirechat_write_failures_total",
				Help: "Failed message edits and deletions, by operation and error kind",
			},
			[]string{"op", "kind"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wirechat_fetch_duration_seconds",
				Help:    "History fetch latency in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 15},
			},
			[]string{"kind"},
		),
		SendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirechat_sends_total",
				Help: "Message sends, by outcome",
			},
			[]string{"outcome"},
		),
		SocketReconnect: factory.NewCounter(prometheus.CounterOpts{
			Name: "wirechat_socket_reconnects_total",
			Help: "Socket reconnect attempts after a dropped connection",
		}),
		Online: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wirechat_online",
			Help: "1 while the socket is connected",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "wirechat_cache_preloads_total",
			Help: "Room activations painted from the local cache",
		}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Merged(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MessagesMerged.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) FetchFailed(op, kind string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(op, kind).Inc()
}

func (m *Metrics) WriteFailed(op, kind string) {
	if m == nil {
		return
	}
	m.WriteFailures.WithLabelValues(op, kind).Inc()
}

func (m *Metrics) ObserveFetch(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) Send(outcome string) {
	if m == nil {
		return
	}
	m.SendsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.SocketReconnect.Inc()
}

func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.Online.Set(1)
	} else {
		m.Online.Set(0)
	}
}

func (m *Metrics) CachePreload() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}
