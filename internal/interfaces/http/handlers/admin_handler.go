package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/renewguard/internal/domain/models"
	"github.com/turtacn/renewguard/internal/domain/service"
	"github.com/turtacn/renewguard/pkg/constants"
	"github.com/turtacn/renewguard/pkg/errors"
	"github.com/turtacn/renewguard/pkg/logger"
)

// ResetRequest is the body of POST /admin/ratelimit/reset.
type ResetRequest struct {
	Key       string `json:"key" binding:"required"`
	LimitType string `json:"limitType" binding:"required"`
}

// StatusResponse is returned by GET /admin/ratelimit/status.
type StatusResponse struct {
	Key          string                    `json:"key"`
	Statuses     map[string]*models.Status `json:"statuses"`
	ActiveBlocks []models.BlockDescriptor  `json:"activeBlocks"`
}

// AdminHandler exposes the rate limiter's administrative operations.
type AdminHandler struct {
	limiter service.RateLimitService
	log     logger.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(limiter service.RateLimitService, log logger.Logger) *AdminHandler {
	return &AdminHandler{
		limiter: limiter,
		log:     log.WithComponent("admin_handler"),
	}
}

// Register mounts the admin routes on g.
func (h *AdminHandler) Register(g *gin.RouterGroup) {
	g.GET("/status", h.GetStatus)
	g.POST("/reset", h.ResetLimit)
	g.GET("/blocks", h.GetActiveBlocks)
	g.GET("/system", h.SystemStatus)
	g.POST("/cleanup", h.Cleanup)
}

// GetStatus godoc
// @Summary      Rate limit status
// @Description  Per-type snapshots for key plus the active blocks whose identifier equals key.
// @Tags         admin
// @Produce      json
// @Param        key        query  string  true   "identifier"
// @Param        limitType  query  string  false  "limit type; all when omitted"
// @Success      200  {object}  StatusResponse
// @Router       /admin/ratelimit/status [get]
func (h *AdminHandler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()
	key := c.Query("key")
	if key == "" {
		SendError(c, errors.ErrInvalidRequest("key is required"))
		return
	}

	var types []constants.LimitType
	if lt := constants.LimitType(c.Query("limitType")); lt != "" {
		if !lt.IsValid() {
			SendError(c, errors.ErrInvalidRequest("unknown limitType "+string(lt)))
			return
		}
		types = []constants.LimitType{lt}
	} else {
		for _, lt := range constants.AllLimitTypes {
			if lt != constants.LimitTypeFailedOperations {
				types = append(types, lt)
			}
		}
	}

	resp := StatusResponse{
		Key:          key,
		Statuses:     make(map[string]*models.Status, len(types)),
		ActiveBlocks: []models.BlockDescriptor{},
	}
	for _, lt := range types {
		status, err := h.limiter.GetStatus(ctx, key, lt)
		if err != nil {
			h.log.Error(ctx, "Failed to read rate limit status", err, logger.Fields{"limit_type": string(lt)})
			SendError(c, err)
			return
		}
		resp.Statuses[string(lt)] = status
	}

	blocks, err := h.limiter.GetActiveBlocks(ctx)
	if err != nil {
		SendError(c, err)
		return
	}
	for _, b := range blocks {
		if b.Identifier == key {
			resp.ActiveBlocks = append(resp.ActiveBlocks, b)
		}
	}

	c.JSON(http.StatusOK, resp)
}

// ResetLimit godoc
// @Summary      Reset a rate limit
// @Description  Deletes the window and block of (key, limitType). limitType "failures" clears a failure block.
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        request  body  ResetRequest  true  "reset request"
// @Success      200  {object}  map[string]interface{}
// @Router       /admin/ratelimit/reset [post]
func (h *AdminHandler) ResetLimit(c *gin.Context) {
	var req ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendError(c, errors.ErrInvalidRequest(err.Error()))
		return
	}
	lt := constants.LimitType(req.LimitType)
	if !lt.IsValid() && req.LimitType != constants.FailureBlockType {
		SendError(c, errors.ErrInvalidRequest("unknown limitType "+req.LimitType))
		return
	}

	ok := h.limiter.ResetLimit(c.Request.Context(), req.Key, lt)
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"success":   ok,
		"key":       req.Key,
		"limitType": req.LimitType,
	})
}

// GetActiveBlocks godoc
// @Summary      Active blocks
// @Tags         admin
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /admin/ratelimit/blocks [get]
func (h *AdminHandler) GetActiveBlocks(c *gin.Context) {
	blocks, err := h.limiter.GetActiveBlocks(c.Request.Context())
	if err != nil {
		SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"blocks": blocks,
		"count":  len(blocks),
	})
}

// SystemStatus godoc
// @Summary      Guard state of this instance
// @Tags         admin
// @Produce      json
// @Success      200  {object}  models.SystemStatus
// @Router       /admin/ratelimit/system [get]
func (h *AdminHandler) SystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.limiter.SystemStatus(c.Request.Context()))
}

// Cleanup godoc
// @Summary      Run the maintenance sweep
// @Tags         admin
// @Produce      json
// @Success      200  {object}  models.CleanupReport
// @Router       /admin/ratelimit/cleanup [post]
func (h *AdminHandler) Cleanup(c *gin.Context) {
	report, err := h.limiter.Cleanup(c.Request.Context())
	if err != nil {
		SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

//Personal.AI order the ending
