package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pilRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pil_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	pilRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pil_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	pilActivitiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pil_activities_logged_total",
		Help: "Total activity entries logged, by activity type.",
	}, []string{"activity_type"})

	pilVerificationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pil_verifications_total",
		Help: "Total entries verified.",
	})

	pilDisputesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pil_disputes_total",
		Help: "Total entries disputed.",
	})

	pilAuditDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pil_audit_deliveries_total",
		Help: "Total audit webhook deliveries by success status.",
	}, []string{"status"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		pilRequestsTotal.WithLabelValues(method, path, status).Inc()
		pilRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordActivityLogged records a successful LogActivity call.
func RecordActivityLogged(activityType string) {
	pilActivitiesTotal.WithLabelValues(activityType).Inc()
}

// RecordVerification records a successful VerifyActivity call.
func RecordVerification() {
	pilVerificationsTotal.Inc()
}

// RecordDispute records a successful DisputeActivity call.
func RecordDispute() {
	pilDisputesTotal.Inc()
}

// RecordAuditDelivery records an audit webhook delivery attempt.
func RecordAuditDelivery(success bool) {
	if success {
		pilAuditDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		pilAuditDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}
