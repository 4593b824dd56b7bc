package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	appservice "github.com/turtacn/renewguard/internal/application/service"
	"github.com/turtacn/renewguard/internal/config"
	domainservice "github.com/turtacn/renewguard/internal/domain/service"
	"github.com/turtacn/renewguard/internal/infrastructure/audit"
	"github.com/turtacn/renewguard/internal/infrastructure/monitoring"
	"github.com/turtacn/renewguard/internal/infrastructure/persistence/redis"
	"github.com/turtacn/renewguard/internal/infrastructure/ratelimit"
	"github.com/turtacn/renewguard/internal/interfaces/http"
	"github.com/turtacn/renewguard/internal/interfaces/http/handlers"
	"github.com/turtacn/renewguard/pkg/logger"
)

func main() {
	configFile := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	// Load config
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	ctx := context.Background()

	// Initialize tracing
	tracing, err := monitoring.NewTracingManager(cfg.Tracing, cfg.Server.Environment, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize tracer", err)
	}

	// Initialize Redis
	redisConn := redis.NewRedisConnection(cfg.Redis, appLogger)
	if err := redisConn.Connect(ctx); err != nil {
		appLogger.Fatal(ctx, "Failed to connect to Redis", err)
	}

	// Initialize infrastructure
	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	store := ratelimit.NewRedisCounterStore(redisConn.GetClient(), appLogger)
	breaker := ratelimit.NewCircuitBreaker(ratelimit.CircuitBreakerConfig{
		FailureThreshold: cfg.RateLimit.CircuitBreaker.FailureThreshold,
		Timeout:          cfg.RateLimit.CircuitBreaker.Timeout,
	}, appLogger, metrics)
	emergency := ratelimit.NewEmergencyController(ratelimit.EmergencyConfig{
		FailureRateThreshold: cfg.RateLimit.Emergency.FailureRateThreshold,
		ConsecutiveFailures:  cfg.RateLimit.Emergency.ConsecutiveFailures,
	}, appLogger, metrics)
	publisher := audit.NewPublisher(cfg.Kafka, appLogger)

	// Initialize application services
	limiter := appservice.NewRateLimitAppService(appservice.RateLimiterDeps{
		Resolver:  domainservice.NewConfigResolver(cfg.RateLimit.ToPolicySet()),
		Store:     store,
		Breaker:   breaker,
		Emergency: emergency,
		Publisher: publisher,
		Metrics:   metrics,
		Tracer:    tracing.Tracer(),
		Logger:    appLogger,
	}, appservice.OptionsFromConfig(cfg.RateLimit))

	scheduler := appservice.NewCleanupScheduler(limiter, cfg.RateLimit.CleanupSchedule, appLogger)
	if err := scheduler.Start(); err != nil {
		appLogger.Fatal(ctx, "Failed to start cleanup scheduler", err)
	}

	// Initialize HTTP handlers and router
	proxy, err := handlers.NewProxyHandler(cfg.Server.UpstreamURL, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "Invalid upstream URL", err)
	}
	router := http.NewRouter(cfg, appLogger, http.RouterDeps{
		Limiter:  limiter,
		Health:   handlers.NewHealthHandler(redisConn, limiter, appLogger),
		Admin:    handlers.NewAdminHandler(limiter, appLogger),
		Proxy:    proxy,
		Observer: metrics,
		Tracer:   tracing.Tracer(),
		Gatherer: prometheus.DefaultGatherer,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- router.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		appLogger.Info(ctx, "Shutdown signal received", logger.Fields{"signal": sig.String()})
	case err := <-serverErr:
		if err != nil {
			appLogger.Error(ctx, "HTTP server failed", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	shutdown(shutdownCtx, appLogger, router, scheduler, limiter, tracing, redisConn)
}

// shutdown stops components in reverse start order so in-flight requests
// can still reach the store and the event publisher.
func shutdown(
	ctx context.Context,
	log logger.Logger,
	router *http.Router,
	scheduler *appservice.CleanupScheduler,
	limiter *appservice.RateLimitAppService,
	tracing *monitoring.TracingManager,
	redisConn *redis.RedisConnection,
) {
	if err := router.Stop(ctx); err != nil {
		log.Error(ctx, "HTTP server shutdown failed", err)
	}
	scheduler.Stop()
	if err := limiter.Close(); err != nil {
		log.Error(ctx, "Failed to close rate limiter", err)
	}
	if err := tracing.Shutdown(ctx); err != nil {
		log.Error(ctx, "Failed to flush traces", err)
	}
	if err := redisConn.Close(); err != nil {
		log.Error(ctx, "Failed to close Redis connection", err)
	}
	log.Info(ctx, "Server exited")
}

//Personal.AI order the ending
