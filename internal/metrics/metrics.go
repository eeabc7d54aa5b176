// Package metrics exposes Prometheus collectors for the API and worker.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors registered by the service.
type Metrics struct {
	Recorded     *prometheus.CounterVec
	Duplicates   *prometheus.CounterVec
	Failures     *prometheus.CounterVec
	Events       *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Recorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backoffice",
			Subsystem: "attendance",
			Name:      "recorded_total",
			Help:      "Attendance records created, by attendee kind, status and verification method.",
		}, []string{"kind", "status", "method"}),
		Duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backoffice",
			Subsystem: "attendance",
			Name:      "duplicates_total",
			Help:      "Recording attempts rejected because a record already existed.",
		}, []string{"kind"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backoffice",
			Subsystem: "attendance",
			Name:      "failures_total",
			Help:      "Recording attempts that failed, by error code.",
		}, []string{"kind", "code"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backoffice",
			Subsystem: "worker",
			Name:      "events_total",
			Help:      "Queue messages handled by the worker, by type and result.",
		}, []string{"type", "result"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "backoffice",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.Recorded, m.Duplicates, m.Failures, m.Events, m.HTTPDuration)
	return m
}

// GinMiddleware observes request latency per matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
