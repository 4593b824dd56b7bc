// Package constants defines system-wide constants for the renewguard admission service.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Limit Type Constants
// ================================================================================

// LimitType names a category of protected operation with its own policy
type LimitType string

const (
	// LimitTypeRenewal limits subscription renewal attempts per hospital
	LimitTypeRenewal LimitType = "renewal"

	// LimitTypeRenewalIP limits subscription renewal attempts per client IP
	LimitTypeRenewalIP LimitType = "renewalIP"

	// LimitTypePaymentVerification limits payment verification attempts per order
	LimitTypePaymentVerification LimitType = "paymentVerification"

	// LimitTypePaymentVerificationIP limits payment verification attempts per client IP
	LimitTypePaymentVerificationIP LimitType = "paymentVerificationIP"

	// LimitTypeFailedOperations is the fixed policy applied to recorded failures
	LimitTypeFailedOperations LimitType = "failedOperations"
)

// AllLimitTypes lists every enumerated limit type in a stable order
var AllLimitTypes = []LimitType{
	LimitTypeRenewal,
	LimitTypeRenewalIP,
	LimitTypePaymentVerification,
	LimitTypePaymentVerificationIP,
	LimitTypeFailedOperations,
}

// IsValid reports whether the limit type is one of the enumerated values
func (t LimitType) IsValid() bool {
	for _, lt := range AllLimitTypes {
		if lt == t {
			return true
		}
	}
	return false
}

// ================================================================================
// Multiplier Dimension Constants
// ================================================================================

// Environment is the deployment tier selecting the environment multiplier
type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentStaging     Environment = "staging"
	EnvironmentProduction  Environment = "production"
	EnvironmentTest        Environment = "test"
)

// UserTier is the caller tier selecting the user multiplier and special limits
type UserTier string

const (
	UserTierAnonymous  UserTier = "anonymous"
	UserTierStandard   UserTier = "standard"
	UserTierPremium    UserTier = "premium"
	UserTierEnterprise UserTier = "enterprise"
)

// TimeBand identifies which time multiplier was applied
type TimeBand string

const (
	TimeBandWeekend TimeBand = "weekend"
	TimeBandPeak    TimeBand = "peak"
	TimeBandOffPeak TimeBand = "off_peak"
)

// ================================================================================
// Operation Constants
// ================================================================================

// Operation names a protected operation for failure tracking
type Operation string

const (
	// OperationRenewal is a subscription renewal call
	OperationRenewal Operation = "renewal"

	// OperationPaymentVerification is a payment verification call
	OperationPaymentVerification Operation = "paymentVerification"
)

// ================================================================================
// Shared Store Key Constants
// ================================================================================

const (
	// KeyPrefixRateLimit prefixes sliding window keys: ratelimit:{limitType}:{key}
	KeyPrefixRateLimit = "ratelimit:"

	// KeyPrefixBlocked prefixes block flags: ratelimit:blocked:{limitType}:{key}
	KeyPrefixBlocked = "ratelimit:blocked:"

	// KeyPrefixFailures prefixes failure logs: failures:{operation}:{key}
	KeyPrefixFailures = "failures:"

	// KeyPrefixBypass prefixes fleet-wide bypass flags
	KeyPrefixBypass = "ratelimit:bypass:"

	// KeyGlobalBypass is the fleet-wide emergency bypass flag
	KeyGlobalBypass = KeyPrefixBypass + "global"

	// FailureBlockType is the limit type segment used for failure-triggered blocks
	FailureBlockType = "failures"
)

// ================================================================================
// Rate Limiting Defaults
// ================================================================================

const (
	// FailureLogRetention is how long failure timestamps are kept
	FailureLogRetention = 1 * time.Hour

	// CleanupRetention is the age past which window entries are swept by cleanup
	CleanupRetention = 1 * time.Hour

	// StoreOperationTimeout bounds the store work of one check, detached from the caller
	StoreOperationTimeout = 2 * time.Second

	// CircuitBreakerFailureThreshold is the consecutive failure count that opens the breaker
	CircuitBreakerFailureThreshold = 5

	// CircuitBreakerTimeout is how long the breaker stays open before probing
	CircuitBreakerTimeout = 60 * time.Second

	// EmergencyFailureRateThreshold is the store failure rate that forces bypass
	EmergencyFailureRateThreshold = 0.1

	// EmergencyConsecutiveFailures is the consecutive failure count that forces bypass
	EmergencyConsecutiveFailures = 5

	// GlobalBypassTTL is the lifetime of a published fleet-wide bypass flag
	GlobalBypassTTL = 5 * time.Minute

	// GlobalBypassPollInterval bounds how often an instance re-reads the global flag
	GlobalBypassPollInterval = 5 * time.Second

	// DefaultCleanupSchedule is the cron spec of the maintenance sweep
	DefaultCleanupSchedule = "@every 10m"

	// ScanBatchSize is the COUNT hint used when scanning keys
	ScanBatchSize = 200
)

// ================================================================================
// Response Code Constants
// ================================================================================

// DenialCode is surfaced to HTTP clients when admission is refused
type DenialCode string

const (
	DenialCodeRateLimited        DenialCode = "RATE_LIMITED"
	DenialCodeBlocked            DenialCode = "BLOCKED"
	DenialCodeMissingHospitalID  DenialCode = "MISSING_HOSPITAL_ID"
	DenialCodeMissingOrderID     DenialCode = "MISSING_ORDER_ID"
	DenialCodeSuspiciousActivity DenialCode = "SUSPICIOUS_ACTIVITY_BLOCKED"
)

// ================================================================================
// HTTP Header Constants
// ================================================================================

const (
	HeaderRequestID          = "X-Request-ID"
	HeaderUserTier           = "X-User-Tier"
	HeaderCountryCode        = "X-Country-Code"
	HeaderRetryAfter         = "Retry-After"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// ================================================================================
// Logging Constants
// ================================================================================

// LogLevel represents the severity level of log messages
type LogLevel string

const (
	// LogLevelDebug is the most verbose logging level
	LogLevelDebug LogLevel = "debug"

	// LogLevelInfo is the standard informational logging level
	LogLevelInfo LogLevel = "info"

	// LogLevelWarn indicates potential issues
	LogLevelWarn LogLevel = "warn"

	// LogLevelError indicates errors that need attention
	LogLevelError LogLevel = "error"
)

// ================================================================================
// Context Key Constants
// ================================================================================

// ContextKey represents keys used in context.Context
type ContextKey string

const (
	// ContextKeyRequestID is the key for request ID in context
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyTraceID is the key for distributed trace ID in context
	ContextKeyTraceID ContextKey = "trace_id"

	// ContextKeyLogger is the key for a request-scoped logger
	ContextKeyLogger ContextKey = "logger"

	// ContextKeyUserTier is the gin key holding an authenticated user tier
	ContextKeyUserTier ContextKey = "user_type"
)

// ServiceName is used for tracing and metric namespaces
const ServiceName = "renewguard"

//Personal.AI order the ending
