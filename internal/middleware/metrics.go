package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics counts requests and observes their latency
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewHTTPMetrics registers the HTTP metrics of one server with reg
func NewHTTPMetrics(reg prometheus.Registerer, server string) *HTTPMetrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"server": server}
	return &HTTPMetrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "opstracker_http_requests_total",
				Help:        "HTTP requests by route, method and status",
				ConstLabels: labels,
			},
			[]string{"route", "method", "status"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "opstracker_http_request_duration_seconds",
				Help:        "HTTP request latency by route",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}
}

// Handler returns the middleware recording into m
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// Unmatched paths share one label to bound cardinality
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}
