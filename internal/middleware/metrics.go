package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration tracks request latency by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "path", "status"},
	)

	// OrdersTotal counts order operations by kind and side.
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderbook_orders_total",
			Help: "Total order operations by kind and side",
		},
		[]string{"kind", "side"},
	)

	// MatchedLevelsTotal counts consumed price levels.
	MatchedLevelsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orderbook_matched_levels_total",
			Help: "Total price levels consumed by takers",
		},
	)

	// ClaimsTotal counts successful claims.
	ClaimsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orderbook_claims_total",
			Help: "Total successful order claims",
		},
	)

	// CancelsTotal counts successful cancels.
	CancelsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orderbook_cancels_total",
			Help: "Total successful order cancels",
		},
	)

	// RejectionsTotal counts failed operations by error kind.
	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderbook_rejections_total",
			Help: "Total rejected operations by error kind",
		},
		[]string{"reason"},
	)

	// ObservationSeq tracks the last committed observation sequence.
	ObservationSeq = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orderbook_observation_sequence",
			Help: "Last committed observation sequence number",
		},
	)
)

// PrometheusMiddleware records request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
		).Observe(duration)
	}
}
