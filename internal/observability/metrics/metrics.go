// Package metrics exposes prometheus instrumentation for the HTTP API and
// the generation scheduler.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the static labels attached to every metric.
type Config struct {
	ServiceName string
	Environment string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = "financeiro"
	}
	return c
}

// HTTPMetrics instruments inbound HTTP traffic.
type HTTPMetrics struct {
	cfg      Config
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics(cfg Config) *HTTPMetrics {
	cfg = cfg.withDefaults()
	m := &HTTPMetrics{
		cfg: cfg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "financeiro_http_requests_total",
			Help: "Total HTTP requests by route, method and status.",
		}, []string{"service", "env", "route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "financeiro_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service", "env", "route", "method"}),
	}
	prometheus.DefaultRegisterer.MustRegister(m.requests, m.duration)
	return m
}

// GinMiddleware records request counts and latency.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(
			m.cfg.ServiceName,
			m.cfg.Environment,
			route,
			method,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.duration.WithLabelValues(
			m.cfg.ServiceName,
			m.cfg.Environment,
			route,
			method,
		).Observe(time.Since(start).Seconds())
	}
}
