package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	stamps          *prometheus.CounterVec
	commits         *prometheus.CounterVec
	commitDuration  prometheus.Histogram
	authzDecisions  *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpInFlight    prometheus.Gauge
	feedSubscribers prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stamps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_stamps_total",
			Help: "Audit stamps applied at commit, by entity and kind.",
		}, []string{"entity", "kind"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unit_of_work_commits_total",
			Help: "Units of work finished, by outcome.",
		}, []string{"outcome"}),
		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "unit_of_work_duration_seconds",
			Help:    "Wall time of a unit of work including flush and commit.",
			Buckets: prometheus.DefBuckets,
		}),
		authzDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Permission checks, by permission key and result.",
		}, []string{"permission", "allowed"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		feedSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audit_feed_subscribers",
			Help: "Connected audit feed websocket clients.",
		}),
	}
	m.registry.MustRegister(
		m.stamps, m.commits, m.commitDuration, m.authzDecisions,
		m.httpRequests, m.httpDuration, m.httpInFlight, m.feedSubscribers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveStamp(entity, kind string) {
	if m == nil {
		return
	}
	m.stamps.WithLabelValues(entity, kind).Inc()
}

func (m *Metrics) ObserveCommit(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "committed"
	if err != nil {
		outcome = "rolled_back"
	}
	m.commits.WithLabelValues(outcome).Inc()
	m.commitDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveDecision(permission string, allowed bool) {
	if m == nil {
		return
	}
	m.authzDecisions.WithLabelValues(permission, strconv.FormatBool(allowed)).Inc()
}

func (m *Metrics) SubscriberDelta(n int) {
	if m == nil {
		return
	}
	m.feedSubscribers.Add(float64(n))
}

// GinMiddleware records request count, latency and in-flight gauge per route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		m.httpInFlight.Inc()
		start := time.Now()
		c.Next()
		m.httpInFlight.Dec()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequests.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}
