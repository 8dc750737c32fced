// Package metrics holds the Prometheus collectors for the service.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chorepoints"

type Metrics struct {
	registry *prometheus.Registry

	transitions   *prometheus.CounterVec
	pointsSettled prometheus.Counter
	redemptions   *prometheus.CounterVec
	authzDenied   *prometheus.CounterVec
	badgeUnlocks  prometheus.Counter
	spawned       prometheus.Counter
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New registers all collectors, plus the Go runtime and process collectors,
// on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chore",
			Name:      "transitions_total",
			Help:      "Chore assignment state transitions.",
		}, []string{"from", "to"}),
		pointsSettled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "points_settled_total",
			Help:      "Points credited by chore approval.",
		}),
		redemptions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reward",
			Name:      "redemptions_total",
			Help:      "Reward redemption attempts by result.",
		}, []string{"result"}),
		authzDenied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "denied_total",
			Help:      "Denied authorization decisions by action.",
		}, []string{"action"}),
		badgeUnlocks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "badge",
			Name:      "unlocks_total",
			Help:      "Badges newly unlocked after a settlement.",
		}),
		spawned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chore",
			Name:      "spawned_total",
			Help:      "Recurring assignments created by the spawner.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) PointsSettled(points int) {
	if m == nil {
		return
	}
	m.pointsSettled.Add(float64(points))
}

func (m *Metrics) Redemption(result string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(result).Inc()
}

func (m *Metrics) AuthzDenied(action string) {
	if m == nil {
		return
	}
	m.authzDenied.WithLabelValues(action).Inc()
}

func (m *Metrics) BadgesUnlocked(n int) {
	if m == nil || n == 0 {
		return
	}
	m.badgeUnlocks.Add(float64(n))
}

func (m *Metrics) Spawned(n int) {
	if m == nil || n == 0 {
		return
	}
	m.spawned.Add(float64(n))
}

func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
