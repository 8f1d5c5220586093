package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Credit metrics
	CreditsConsumed    prometheus.Counter
	CreditDenials      prometheus.Counter
	CreditResets       *prometheus.CounterVec
	AdminAdjustments   *prometheus.CounterVec
	TransientFailures  prometheus.Counter

	// Quota metrics
	SlotsConsumed        prometheus.Counter
	QuotaRequestsFiled   prometheus.Counter
	QuotaRequestsResolved *prometheus.CounterVec

	// Chat upstream metrics
	CompletionLatency  prometheus.Histogram
	CompletionRequests *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits prometheus.Counter

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

var metrics *Metrics

// Init initializes all Prometheus metrics
func Init() *Metrics {
	if metrics != nil {
		return metrics
	}

	metrics = &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		// Credit metrics
		CreditsConsumed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "credits_consumed_total",
				Help: "Total credits debited for chat usage",
			},
		),
		CreditDenials: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "credit_denials_total",
				Help: "Total chat requests refused for insufficient credits",
			},
		),
		CreditResets: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_resets_total",
				Help: "Total credit refills by trigger",
			},
			[]string{"trigger"},
		),
		AdminAdjustments: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admin_adjustments_total",
				Help: "Total administrative balance adjustments",
			},
			[]string{"action"},
		),
		TransientFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "transient_failures_total",
				Help: "Total operations abandoned after transaction retry exhaustion",
			},
		),

		// Quota metrics
		SlotsConsumed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "project_slots_consumed_total",
				Help: "Total project slots claimed",
			},
		),
		QuotaRequestsFiled: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "quota_requests_filed_total",
				Help: "Total quota increase requests filed",
			},
		),
		QuotaRequestsResolved: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quota_requests_resolved_total",
				Help: "Total quota requests resolved by decision",
			},
			[]string{"decision"},
		),

		// Chat upstream metrics
		CompletionLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "completion_latency_seconds",
				Help:    "Completion upstream response latency in seconds",
				Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 60},
			},
		),
		CompletionRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "completion_requests_total",
				Help: "Total requests to the completion upstream",
			},
			[]string{"status"},
		),

		// Rate limiting metrics
		RateLimitHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
		),

		// Cache metrics
		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		// Database metrics
		DBConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	return metrics
}

// Get returns the global metrics instance
func Get() *Metrics {
	if metrics == nil {
		return Init()
	}
	return metrics
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// GinHandler returns a Gin-compatible handler for Prometheus metrics
func GinHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// MetricsMiddleware is a Gin middleware for collecting HTTP metrics
func MetricsMiddleware() gin.HandlerFunc {
	m := Get()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// RecordCreditsConsumed records a successful chat debit
func RecordCreditsConsumed(amount float64) {
	Get().CreditsConsumed.Add(amount)
}

// RecordCreditDenial records a chat request refused for insufficient credits
func RecordCreditDenial() {
	Get().CreditDenials.Inc()
}

// RecordCreditReset records a credit refill; trigger is "daily" or "admin"
func RecordCreditReset(trigger string) {
	Get().CreditResets.WithLabelValues(trigger).Inc()
}

// RecordAdminAdjustment records an administrative balance adjustment
func RecordAdminAdjustment(action string) {
	Get().AdminAdjustments.WithLabelValues(action).Inc()
}

// RecordTransientFailure records an operation abandoned after retries
func RecordTransientFailure() {
	Get().TransientFailures.Inc()
}

// RecordSlotConsumed records a claimed project slot
func RecordSlotConsumed() {
	Get().SlotsConsumed.Inc()
}

// RecordQuotaRequestFiled records a new quota increase request
func RecordQuotaRequestFiled() {
	Get().QuotaRequestsFiled.Inc()
}

// RecordQuotaRequestResolved records a resolved quota request
func RecordQuotaRequestResolved(decision string) {
	Get().QuotaRequestsResolved.WithLabelValues(decision).Inc()
}

// RecordCompletionLatency records completion upstream latency
func RecordCompletionLatency(duration time.Duration) {
	Get().CompletionLatency.Observe(duration.Seconds())
}

// RecordCompletionRequest records a completion upstream request
func RecordCompletionRequest(status string) {
	Get().CompletionRequests.WithLabelValues(status).Inc()
}

// RecordRateLimitHit records a rate limit hit
func RecordRateLimitHit() {
	Get().RateLimitHits.Inc()
}

// RecordCacheHit records a cache hit
func RecordCacheHit(cacheType string) {
	Get().CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(cacheType string) {
	Get().CacheMisses.WithLabelValues(cacheType).Inc()
}

// SetDBConnections sets database connection metrics
func SetDBConnections(active, idle int) {
	Get().DBConnectionsActive.Set(float64(active))
	Get().DBConnectionsIdle.Set(float64(idle))
}
