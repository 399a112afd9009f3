package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveKeywordIncrement(t *testing.T) {
	before := testutil.ToFloat64(KeywordIncrements.WithLabelValues("sql", PathCreated))
	ObserveKeywordIncrement("sql", PathCreated)
	ObserveKeywordIncrement("sql", PathCreated)
	assert.Equal(t, before+2, testutil.ToFloat64(KeywordIncrements.WithLabelValues("sql", PathCreated)))
}

func TestInitIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}

func TestMetricsEndpointExposesCounters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	Init()

	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", PrometheusHandler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
	ObserveDashboardStats(true, false, 15*time.Millisecond)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `http_requests_total{endpoint="/ping",method="GET",status="204"}`)
	assert.Contains(t, w.Body.String(), "analysis_dashboard_stats_duration_seconds")
}
