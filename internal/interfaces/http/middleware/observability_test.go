package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"

	"github.com/turtacn/renewguard/internal/infrastructure/monitoring"
)

func TestObservabilityMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer := otel.Tracer("test-tracer")
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	router.Use(ObservabilityMiddleware(tracer, metrics))
	router.GET("/test/:id", func(c *gin.Context) {
		c.Status(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test/42", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/test/:id", "GET", "418")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.HTTPActiveConns))

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/missing", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("not_found", "GET", "404")))
}
