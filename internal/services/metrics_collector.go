package services

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/temcen/homeser/internal/usage"
)

// MetricsCollector owns the service's Prometheus series.
type MetricsCollector struct {
	requests atomic.Int64

	httpRequests      *prometheus.CounterVec
	httpLatency       *prometheus.HistogramVec
	throttleDecisions *prometheus.CounterVec
	usageValue        *prometheus.GaugeVec
	usagePercentage   *prometheus.GaugeVec
	usageWithin       prometheus.Gauge
	checkouts         *prometheus.CounterVec
	payments          *prometheus.CounterVec
	reviews           prometheus.Counter
}

// NewMetricsCollector registers every series on reg. Tests pass a fresh
// prometheus.NewRegistry().
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(reg)

	return &MetricsCollector{
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),

		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"method", "route"}),

		throttleDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "throttle_decisions_total",
			Help: "Rate-limit decisions by scope and outcome",
		}, []string{"scope", "outcome"}),

		usageValue: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "usage_metric_value",
			Help: "Latest hosted-service consumption reading",
		}, []string{"metric"}),

		usagePercentage: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "usage_metric_percentage",
			Help: "Latest consumption as a percentage of its quota",
		}, []string{"metric"}),

		usageWithin: factory.NewGauge(prometheus.GaugeOpts{
			Name: "usage_within_limits",
			Help: "1 when every consumption counter is below its quota",
		}),

		checkouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "checkouts_total",
			Help: "Checkout attempts by outcome",
		}, []string{"outcome"}),

		payments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_notifications_total",
			Help: "Processed payment notifications by resulting status",
		}, []string{"status"}),

		reviews: factory.NewCounter(prometheus.CounterOpts{
			Name: "reviews_created_total",
			Help: "Reviews created",
		}),
	}
}

func (mc *MetricsCollector) RecordRequest(method, route string, status int, duration time.Duration) {
	mc.requests.Add(1)
	if route == "" {
		route = "unmatched"
	}
	mc.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	mc.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Requests is the number of requests served since start.
func (mc *MetricsCollector) Requests() int64 {
	return mc.requests.Load()
}

func (mc *MetricsCollector) RecordThrottle(scope string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	mc.throttleDecisions.WithLabelValues(scope, outcome).Inc()
}

func (mc *MetricsCollector) RecordUsage(snap usage.Snapshot) {
	c := snap.Counters()
	mc.usageValue.WithLabelValues(usage.MetricVercel).Set(c.VercelInvocations)
	mc.usageValue.WithLabelValues(usage.MetricSupabase).Set(c.SupabaseMAU)
	mc.usageValue.WithLabelValues(usage.MetricRedis).Set(c.RedisMemory)
	mc.usageValue.WithLabelValues(usage.MetricCloudinary).Set(c.CloudinaryCredits)

	for name, pct := range snap.UsagePercentage() {
		mc.usagePercentage.WithLabelValues(name).Set(pct)
	}

	if snap.IsWithinLimits() {
		mc.usageWithin.Set(1)
	} else {
		mc.usageWithin.Set(0)
	}
}

func (mc *MetricsCollector) RecordCheckout(outcome string) {
	mc.checkouts.WithLabelValues(outcome).Inc()
}

func (mc *MetricsCollector) RecordPayment(status string) {
	mc.payments.WithLabelValues(status).Inc()
}

func (mc *MetricsCollector) RecordReview() {
	mc.reviews.Inc()
}
