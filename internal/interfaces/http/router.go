package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/renewguard/internal/config"
	"github.com/turtacn/renewguard/internal/domain/service"
	"github.com/turtacn/renewguard/internal/interfaces/http/handlers"
	"github.com/turtacn/renewguard/internal/interfaces/http/middleware"
	"github.com/turtacn/renewguard/pkg/constants"
	"github.com/turtacn/renewguard/pkg/logger"
)

// RouterDeps 路由器依赖
type RouterDeps struct {
	Limiter  service.RateLimitService
	Health   *handlers.HealthHandler
	Admin    *handlers.AdminHandler
	Proxy    *handlers.ProxyHandler
	Observer middleware.RequestObserver
	Tracer   trace.Tracer
	Gatherer prometheus.Gatherer
	Clock    service.Clock
}

// Router HTTP 路由器
type Router struct {
	engine *gin.Engine
	config *config.Config
	logger logger.Logger
	deps   RouterDeps
	server *http.Server
}

// NewRouter 创建路由器
func NewRouter(cfg *config.Config, log logger.Logger, deps RouterDeps) *Router {
	// 设置 Gin 模式
	if cfg.Server.Env() == constants.EnvironmentProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	r := &Router{
		engine: gin.New(),
		config: cfg,
		logger: log.WithComponent("http"),
		deps:   deps,
	}
	r.setupTrustedProxies()
	r.setupRoutes()
	return r
}

// setupTrustedProxies 设置可信代理；未配置时 ClientIP 始终取连接对端地址，
// 客户端伪造的 X-Forwarded-For 不会改变限流键
func (r *Router) setupTrustedProxies() {
	var proxies []string
	if len(r.config.Server.TrustedProxies) > 0 {
		proxies = r.config.Server.TrustedProxies
	}
	if err := r.engine.SetTrustedProxies(proxies); err != nil {
		r.logger.Error(context.Background(), "Invalid trusted proxies, trusting none", err,
			logger.Fields{"trusted_proxies": proxies})
		_ = r.engine.SetTrustedProxies(nil)
	}
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 全局中间件
	r.engine.Use(handlers.RecoveryMiddleware(r.logger))
	r.engine.Use(handlers.RequestIDMiddleware())
	if r.deps.Observer != nil && r.deps.Tracer != nil {
		r.engine.Use(middleware.ObservabilityMiddleware(r.deps.Tracer, r.deps.Observer))
	}
	r.engine.Use(handlers.LoggingMiddleware(r.logger))

	// CORS 配置
	if len(r.config.Server.AllowedOrigins) > 0 {
		r.engine.Use(cors.New(cors.Config{
			AllowOrigins: r.config.Server.AllowedOrigins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization", constants.HeaderRequestID,
				constants.HeaderUserTier, constants.HeaderCountryCode},
			ExposeHeaders: []string{constants.HeaderRequestID, constants.HeaderRetryAfter,
				constants.HeaderRateLimitLimit, constants.HeaderRateLimitRemaining, constants.HeaderRateLimitReset},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// 健康检查路由（不需要认证）
	r.engine.GET("/health", r.deps.Health.HealthCheck)
	r.engine.GET("/ready", r.deps.Health.ReadinessCheck)
	r.engine.GET("/live", r.deps.Health.LivenessCheck)

	// Prometheus metrics
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.deps.Gatherer, promhttp.HandlerOpts{})))

	// Pprof 性能分析（仅在非生产环境）
	if r.config.Server.Env() != constants.EnvironmentProduction {
		pprof.Register(r.engine)
	}

	// 受保护的业务路由
	rl := r.config.RateLimit
	env := r.config.Server.Env()
	renewal := middleware.RenewalAdmission(env, rl.HomeCountry, rl.FailureStatuses)
	renewal.Clock = r.deps.Clock
	payment := middleware.PaymentVerificationAdmission(env, rl.HomeCountry, rl.FailureStatuses)
	payment.Clock = r.deps.Clock

	v1 := r.engine.Group("/api/v1")
	{
		v1.POST("/hospitals/:hospital_id/subscription/renew",
			middleware.Admission(r.deps.Limiter, renewal, r.logger), r.deps.Proxy.Forward)
		v1.POST("/payments/:order_id/verify",
			middleware.Admission(r.deps.Limiter, payment, r.logger), r.deps.Proxy.Forward)
	}

	// 管理路由
	if r.config.Admin.Enabled {
		admin := r.engine.Group("/admin/ratelimit", handlers.AdminAuthMiddleware(r.config.Admin.Token))
		r.deps.Admin.Register(admin)
	}

	// 404 处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "The requested resource was not found",
			"code":  "not_found",
		})
	})
}

// Engine returns the gin engine, mainly for tests.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Start 启动 HTTP 服务器，阻塞直到 Stop 被调用
func (r *Router) Start() error {
	addr := r.config.Server.Addr()
	r.server = &http.Server{
		Addr:           addr,
		Handler:        r.engine,
		ReadTimeout:    time.Duration(r.config.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(r.config.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	r.logger.Info(context.Background(), "Starting HTTP server", logger.Fields{"address": addr})

	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop 停止 HTTP 服务器
func (r *Router) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}

	r.logger.Info(ctx, "Stopping HTTP server...")
	return r.server.Shutdown(ctx)
}

//Personal.AI order the ending
