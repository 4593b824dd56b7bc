package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/renewguard/internal/domain/service"
	"github.com/turtacn/renewguard/pkg/logger"
)

// Pinger is satisfied by the Redis connection manager.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	redis   Pinger
	limiter service.RateLimitService
	timeout time.Duration
	log     logger.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(redis Pinger, limiter service.RateLimitService, log logger.Logger) *HealthHandler {
	return &HealthHandler{
		redis:   redis,
		limiter: limiter,
		timeout: 2 * time.Second,
		log:     log,
	}
}

// HealthCheck godoc
// @Summary      Health Check
// @Description  Reports the shared store and the limiter guard state. The limiter fails open,
// @Description  so a store outage degrades the service without making it unhealthy.
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	checks := map[string]string{"redis": h.checkRedis(c.Request.Context())}
	system := h.limiter.SystemStatus(c.Request.Context())

	status := "healthy"
	if checks["redis"] != "ok" || system.BypassActive || system.CircuitState != "CLOSED" {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
		"limiter":   system,
	})
}

// ReadinessCheck godoc
// @Summary      Readiness Check
// @Description  Ready once the shared store answers a ping.
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /ready [get]
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	redisStatus := h.checkRedis(c.Request.Context())
	httpStatus := http.StatusOK
	status := "ready"
	if redisStatus != "ok" {
		httpStatus = http.StatusServiceUnavailable
		status = "not_ready"
	}
	c.JSON(httpStatus, gin.H{
		"status": status,
		"checks": map[string]string{"redis": redisStatus},
	})
}

// LivenessCheck godoc
// @Summary      Liveness Check
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /live [get]
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (h *HealthHandler) checkRedis(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := h.redis.Ping(ctx); err != nil {
		h.log.Warn(ctx, "Redis health check failed", logger.Fields{"error": err.Error()})
		return "error: " + err.Error()
	}
	return "ok"
}

//Personal.AI order the ending
