package observability

import (
	"net/http"

	"github.com/newsdesk/apiserver/internal/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the auth and cache layers.
type Metrics struct {
	registry *prometheus.Registry

	AuthFailuresTotal *prometheus.CounterVec
	TokensIssuedTotal *prometheus.CounterVec
	RefreshTotal      *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		AuthFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsdesk_auth_failures_total",
				Help: "Rejected authentication attempts by reason",
			},
			[]string{"reason"},
		),
		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsdesk_tokens_issued_total",
				Help: "Signed tokens issued by kind",
			},
			[]string{"kind"},
		),
		RefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsdesk_session_refresh_total",
				Help: "Refresh attempts by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.AuthFailuresTotal,
		m.TokensIssuedTotal,
		m.RefreshTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// AuthFailed counts a rejected request. Nil receivers are ignored so
// handlers can run without metrics.
func (m *Metrics) AuthFailed(reason string) {
	if m == nil {
		return
	}
	m.AuthFailuresTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) TokenIssued(kind string) {
	if m == nil {
		return
	}
	m.TokensIssuedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) Refreshed(outcome string) {
	if m == nil {
		return
	}
	m.RefreshTotal.WithLabelValues(outcome).Inc()
}

// ObserveCache exports the counters of c as Prometheus series.
func (m *Metrics) ObserveCache(c *cache.ResponseCache) {
	counter := func(name, help string, read func(cache.Stats) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, func() float64 {
			return float64(read(c.Stats()))
		})
	}
	m.registry.MustRegister(
		counter("newsdesk_cache_hits_total", "Response cache hits", func(s cache.Stats) int64 { return s.Hits }),
		counter("newsdesk_cache_misses_total", "Response cache misses", func(s cache.Stats) int64 { return s.Misses }),
		counter("newsdesk_cache_invalidations_total", "Entries removed by prefix invalidation", func(s cache.Stats) int64 { return s.Invalidations }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "newsdesk_cache_entries",
			Help: "Entries currently held by the response cache",
		}, func() float64 { return float64(c.Len()) }),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
