// Package metrics exposes the engine's Prometheus gauges and counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements match.Metrics and tournament.Metrics.
type Collector struct {
	registry *prometheus.Registry

	activeMatches     prometheus.Gauge
	activeTournaments prometheus.Gauge
	matchesEnded      *prometheus.CounterVec
}

// New creates a collector backed by its own registry, with the Go and
// process collectors included.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		activeMatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pong",
			Name:      "active_matches",
			Help:      "Matches currently registered, waiting or in play.",
		}),
		activeTournaments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pong",
			Name:      "active_tournaments",
			Help:      "Tournaments that are pending or ongoing.",
		}),
		matchesEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pong",
			Name:      "matches_ended_total",
			Help:      "Finished matches by end reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.activeMatches,
		c.activeTournaments,
		c.matchesEnded,
	)
	return c
}

// Registerer lets other packages add their collectors to the same registry.
func (c *Collector) Registerer() prometheus.Registerer {
	return c.registry
}

func (c *Collector) SetActiveMatches(n int) {
	c.activeMatches.Set(float64(n))
}

func (c *Collector) MatchEnded(reason string) {
	c.matchesEnded.WithLabelValues(reason).Inc()
}

func (c *Collector) SetActiveTournaments(n int) {
	c.activeTournaments.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
