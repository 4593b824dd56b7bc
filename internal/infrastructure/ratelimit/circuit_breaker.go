package ratelimit

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/turtacn/renewguard/internal/domain/service"
	"github.com/turtacn/renewguard/pkg/constants"
	"github.com/turtacn/renewguard/pkg/errors"
	"github.com/turtacn/renewguard/pkg/logger"
)

// CircuitBreakerConfig holds the configuration for the store circuit breaker.
type CircuitBreakerConfig struct {
	// Name is the circuit breaker name for logging and metrics
	Name string

	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold uint32

	// Timeout is how long the circuit stays open before a probe is let through
	Timeout time.Duration
}

// DefaultCircuitBreakerConfig returns the production breaker settings.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             "counter-store",
		FailureThreshold: constants.CircuitBreakerFailureThreshold,
		Timeout:          constants.CircuitBreakerTimeout,
	}
}

// CircuitBreaker guards calls into the counter store. State is local to the
// process and never shared between instances.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
	name    string
}

// NewCircuitBreaker creates a breaker that opens after FailureThreshold
// consecutive failures, half-opens after Timeout, and closes again on the
// first successful probe. A failed probe reopens it with a fresh timeout.
func NewCircuitBreaker(cfg CircuitBreakerConfig, log logger.Logger, metrics service.Metrics) *CircuitBreaker {
	if cfg.Name == "" {
		cfg.Name = DefaultCircuitBreakerConfig().Name
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = constants.CircuitBreakerFailureThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.CircuitBreakerTimeout
	}
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	log = log.WithComponent("circuit_breaker")

	threshold := cfg.FailureThreshold
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		// Interval 0 keeps closed-state counts until a success resets them
		Interval: 0,
		Timeout:  cfg.Timeout,
		// A cancelled caller says nothing about the store.
		IsSuccessful: func(err error) bool {
			return err == nil || stderrors.Is(err, context.Canceled)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.RecordCircuitState(stateValue(to))
			fields := logger.Fields{"circuit": name, "from": from.String(), "to": to.String()}
			if to == gobreaker.StateOpen {
				log.Warn(context.Background(), "Circuit breaker opened", fields)
				return
			}
			log.Info(context.Background(), "Circuit breaker state changed", fields)
		},
	}

	return &CircuitBreaker{
		breaker: gobreaker.NewCircuitBreaker(settings),
		name:    cfg.Name,
	}
}

// Execute runs fn through the breaker. While the circuit is open fn is not
// called and a circuit_open error is returned.
func (cb *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	res, err := cb.breaker.Execute(fn)
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.ErrCircuitOpen(cb.name, err)
	}
	return res, err
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() gobreaker.State {
	return cb.breaker.State()
}

// StateName returns the state as CLOSED, OPEN or HALF_OPEN.
func (cb *CircuitBreaker) StateName() string {
	switch cb.breaker.State() {
	case gobreaker.StateOpen:
		return "OPEN"
	case gobreaker.StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// Failures returns the consecutive failure count of the current generation.
func (cb *CircuitBreaker) Failures() uint32 {
	return cb.breaker.Counts().ConsecutiveFailures
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

//Personal.AI order the ending
