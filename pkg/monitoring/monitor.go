package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 关键词自增路径
const (
	PathInPlace  = "in_place"
	PathAppended = "appended"
	PathCreated  = "created"
	PathRetried  = "retried"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	KeywordIncrements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_keyword_increments_total",
			Help: "Keyword counter updates by store backend and protocol path",
		},
		[]string{"backend", "path"},
	)

	DashboardStatsDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_dashboard_stats_duration_seconds",
			Help:    "Time spent assembling dashboard statistics",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"scope", "cache"},
	)

	registerOnce sync.Once
)

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(KeywordIncrements)
		prometheus.MustRegister(DashboardStatsDuration)
	})
}

func ObserveKeywordIncrement(backend, path string) {
	KeywordIncrements.WithLabelValues(backend, path).Inc()
}

// ObserveDashboardStats scope 只区分 user/global，避免把用户 id 作为标签
func ObserveDashboardStats(global, cacheHit bool, elapsed time.Duration) {
	scope := "user"
	if global {
		scope = "global"
	}
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	DashboardStatsDuration.WithLabelValues(scope, cache).Observe(elapsed.Seconds())
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
