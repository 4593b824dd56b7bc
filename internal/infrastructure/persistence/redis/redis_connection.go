// Package redis provides the connection manager for the shared counter store.
// It supports standalone, cluster, and sentinel deployment modes.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/renewguard/internal/config"
	"github.com/turtacn/renewguard/pkg/logger"
)

// ConnectionMode defines Redis deployment mode
type ConnectionMode string

const (
	// ModeStandalone represents single Redis instance
	ModeStandalone ConnectionMode = "standalone"
	// ModeCluster represents Redis cluster mode
	ModeCluster ConnectionMode = "cluster"
	// ModeSentinel represents Redis sentinel mode for high availability
	ModeSentinel ConnectionMode = "sentinel"
)

const connectPingTimeout = 5 * time.Second

// RedisConnection owns the client shared by the counter store and the
// readiness probe.
type RedisConnection struct {
	config config.RedisConfig
	logger logger.Logger

	mu     sync.RWMutex
	client redis.UniversalClient
}

// NewRedisConnection creates a connection manager. Nothing is dialed until Connect.
func NewRedisConnection(cfg config.RedisConfig, log logger.Logger) *RedisConnection {
	return &RedisConnection{
		config: cfg,
		logger: log.WithComponent("redis"),
	}
}

// Connect builds the client for the configured mode and pings it once.
func (rc *RedisConnection) Connect(ctx context.Context) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.client != nil {
		rc.logger.Warn(ctx, "Redis connection already initialized")
		return nil
	}

	cfg := withDefaults(rc.config)
	opts, err := universalOptions(cfg)
	if err != nil {
		return err
	}
	client := redis.NewUniversalClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		rc.logger.Error(ctx, "Redis ping failed", err, logger.Fields{"mode": rc.config.Mode})
		return fmt.Errorf("redis ping failed: %w", err)
	}

	rc.client = client
	rc.logger.Info(ctx, "Redis connection established", logger.Fields{
		"mode":      cfg.Mode,
		"addrs":     opts.Addrs,
		"pool_size": opts.PoolSize,
	})
	return nil
}

// universalOptions maps the config section onto go-redis options. Retries are
// passed through unchanged so -1 keeps a failing check fast.
func universalOptions(cfg config.RedisConfig) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{
		Password:     cfg.Password,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
	}
	if cfg.EnableTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	switch ConnectionMode(cfg.Mode) {
	case ModeStandalone:
		opts.Addrs = []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)}
		opts.DB = cfg.DB
	case ModeCluster:
		if len(cfg.ClusterAddrs) == 0 {
			return nil, fmt.Errorf("cluster addresses not configured")
		}
		opts.Addrs = cfg.ClusterAddrs
		opts.IsClusterMode = true
	case ModeSentinel:
		if len(cfg.SentinelAddrs) == 0 || cfg.SentinelMaster == "" {
			return nil, fmt.Errorf("sentinel addresses and master name are required")
		}
		opts.Addrs = cfg.SentinelAddrs
		opts.MasterName = cfg.SentinelMaster
		opts.DB = cfg.DB
	default:
		return nil, fmt.Errorf("unsupported Redis mode: %s", cfg.Mode)
	}
	return opts, nil
}

// withDefaults fills unset fields. MaxRetries is left alone: zero means the
// go-redis default and -1 disables retries.
func withDefaults(cfg config.RedisConfig) config.RedisConfig {
	if cfg.Mode == "" {
		cfg.Mode = string(ModeStandalone)
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6379
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 10
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	return cfg
}

// GetClient returns the client, or nil before Connect succeeded.
func (rc *RedisConnection) GetClient() redis.UniversalClient {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.client
}

// Ping checks Redis server connectivity. It backs the readiness probe.
func (rc *RedisConnection) Ping(ctx context.Context) error {
	client := rc.GetClient()
	if client == nil {
		return fmt.Errorf("redis connection not initialized")
	}
	return client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (rc *RedisConnection) Close() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.client == nil {
		return nil
	}
	err := rc.client.Close()
	rc.client = nil
	if err != nil {
		rc.logger.Error(context.Background(), "Failed to close Redis connection", err)
		return err
	}
	rc.logger.Info(context.Background(), "Redis connection closed")
	return nil
}

//Personal.AI order the ending
