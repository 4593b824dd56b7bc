package config

import (
	"fmt"
	"time"

	"github.com/turtacn/renewguard/internal/domain/models"
	"github.com/turtacn/renewguard/pkg/constants"
)

// Config holds the application's configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Admin     AdminConfig     `mapstructure:"admin"`
}

type ServerConfig struct {
	Host            string   `mapstructure:"host"`
	Port            int      `mapstructure:"port" validate:"min=1,max=65535"`
	Environment     string   `mapstructure:"environment" validate:"required,oneof=development staging production test"`
	UpstreamURL     string   `mapstructure:"upstream_url" validate:"required,url"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	// TrustedProxies are the CIDRs or IPs whose X-Forwarded-For is believed.
	// Empty means the client IP is always the socket peer.
	TrustedProxies  []string `mapstructure:"trusted_proxies" validate:"dive,cidr|ip"`
	ReadTimeout     int      `mapstructure:"read_timeout" validate:"min=1"`     // in seconds
	WriteTimeout    int      `mapstructure:"write_timeout" validate:"min=1"`    // in seconds
	ShutdownTimeout int      `mapstructure:"shutdown_timeout" validate:"min=1"` // in seconds
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Env returns the deployment tier as the typed enumeration.
func (c *ServerConfig) Env() constants.Environment {
	return constants.Environment(c.Environment)
}

type RedisConfig struct {
	Mode           string        `mapstructure:"mode" validate:"oneof=standalone cluster sentinel"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db" validate:"min=0"`
	ClusterAddrs   []string      `mapstructure:"cluster_addrs"`
	SentinelAddrs  []string      `mapstructure:"sentinel_addrs"`
	SentinelMaster string        `mapstructure:"sentinel_master"`
	PoolSize       int           `mapstructure:"pool_size" validate:"min=0"`
	MinIdleConns   int           `mapstructure:"min_idle_conns" validate:"min=0"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	// MaxRetries of -1 disables go-redis retries; a check fails fast instead.
	MaxRetries int  `mapstructure:"max_retries"`
	EnableTLS  bool `mapstructure:"enable_tls"`
}

// PolicyConfig is one {points, duration, blockDuration} triple. Durations are in seconds.
type PolicyConfig struct {
	Points        int64 `mapstructure:"points" validate:"min=1"`
	Duration      int64 `mapstructure:"duration" validate:"min=1"`
	BlockDuration int64 `mapstructure:"block_duration" validate:"min=1"`
}

// PoliciesConfig is the single base policy table shared by the resolver and
// the status/reset paths.
type PoliciesConfig struct {
	Renewal               PolicyConfig `mapstructure:"renewal"`
	RenewalIP             PolicyConfig `mapstructure:"renewal_ip"`
	PaymentVerification   PolicyConfig `mapstructure:"payment_verification"`
	PaymentVerificationIP PolicyConfig `mapstructure:"payment_verification_ip"`
	FailedOperations      PolicyConfig `mapstructure:"failed_operations"`
}

// SpecialLimitsConfig holds tier-specific replacements; nil means "use base".
type SpecialLimitsConfig struct {
	Renewal               *PolicyConfig `mapstructure:"renewal"`
	RenewalIP             *PolicyConfig `mapstructure:"renewal_ip"`
	PaymentVerification   *PolicyConfig `mapstructure:"payment_verification"`
	PaymentVerificationIP *PolicyConfig `mapstructure:"payment_verification_ip"`
}

type TierConfig struct {
	Multiplier    float64             `mapstructure:"multiplier" validate:"gt=0"`
	SpecialLimits SpecialLimitsConfig `mapstructure:"special_limits"`
}

type TiersConfig struct {
	Anonymous  TierConfig `mapstructure:"anonymous"`
	Standard   TierConfig `mapstructure:"standard"`
	Premium    TierConfig `mapstructure:"premium"`
	Enterprise TierConfig `mapstructure:"enterprise"`
}

type EnvironmentsConfig struct {
	Development float64 `mapstructure:"development" validate:"gt=0"`
	Staging     float64 `mapstructure:"staging" validate:"gt=0"`
	Production  float64 `mapstructure:"production" validate:"gt=0"`
	Test        float64 `mapstructure:"test" validate:"gt=0"`
}

type TimeConfig struct {
	PeakStart int     `mapstructure:"peak_start" validate:"min=0,max=23"`
	PeakEnd   int     `mapstructure:"peak_end" validate:"min=1,max=24,gtfield=PeakStart"`
	Peak      float64 `mapstructure:"peak" validate:"gt=0"`
	OffPeak   float64 `mapstructure:"off_peak" validate:"gt=0"`
	Weekend   float64 `mapstructure:"weekend" validate:"gt=0"`
}

type GeoConfig struct {
	Domestic      float64 `mapstructure:"domestic" validate:"gt=0"`
	International float64 `mapstructure:"international" validate:"gt=0"`
}

type CircuitBreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold" validate:"min=1"`
	Timeout          time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type EmergencyConfig struct {
	FailureRateThreshold float64       `mapstructure:"failure_rate_threshold" validate:"gt=0,lte=1"`
	ConsecutiveFailures  int64         `mapstructure:"consecutive_failures" validate:"min=1"`
	PublishGlobal        bool          `mapstructure:"publish_global"`
	GlobalTTL            time.Duration `mapstructure:"global_ttl" validate:"gt=0"`
	GlobalPoll           time.Duration `mapstructure:"global_poll" validate:"gt=0"`
}

type RateLimitConfig struct {
	// Bypass disables enforcement entirely.
	Bypass   bool `mapstructure:"bypass"`
	FailOpen bool `mapstructure:"fail_open"`
	// FailureStatuses are the handler statuses recorded as failures by the admission middleware.
	FailureStatuses []int                `mapstructure:"failure_statuses" validate:"dive,min=400,max=599"`
	HomeCountry     string               `mapstructure:"home_country" validate:"required,len=2"`
	CleanupSchedule string               `mapstructure:"cleanup_schedule" validate:"required,cron_spec"`
	Policies        PoliciesConfig       `mapstructure:"policies"`
	Environments    EnvironmentsConfig   `mapstructure:"environments"`
	Tiers           TiersConfig          `mapstructure:"tiers"`
	Time            TimeConfig           `mapstructure:"time"`
	Geo             GeoConfig            `mapstructure:"geo"`
	CircuitBreaker  CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Emergency       EmergencyConfig      `mapstructure:"emergency"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic" validate:"required_if=Enabled true"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BatchSize    int           `mapstructure:"batch_size" validate:"min=0"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	RequiredAcks int           `mapstructure:"required_acks" validate:"oneof=-1 0 1"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint" validate:"required_if=Enabled true"`
	ServiceName    string  `mapstructure:"service_name"`
	SampleRatio    float64 `mapstructure:"sample_ratio" validate:"min=0,max=1"`
}

// AdminConfig controls the operator endpoints under /admin.
type AdminConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Token, when set, must be presented as a bearer token.
	Token string `mapstructure:"token"`
	// ServerURL is the base URL used by the admin CLI.
	ServerURL string `mapstructure:"server_url"`
}

// ToPolicySet converts the validated rate limit section into the typed policy set.
func (c *RateLimitConfig) ToPolicySet() models.PolicySet {
	return models.PolicySet{
		Base: map[constants.LimitType]models.LimitPolicy{
			constants.LimitTypeRenewal:               c.Policies.Renewal.toPolicy(),
			constants.LimitTypeRenewalIP:             c.Policies.RenewalIP.toPolicy(),
			constants.LimitTypePaymentVerification:   c.Policies.PaymentVerification.toPolicy(),
			constants.LimitTypePaymentVerificationIP: c.Policies.PaymentVerificationIP.toPolicy(),
			constants.LimitTypeFailedOperations:      c.Policies.FailedOperations.toPolicy(),
		},
		Environments: map[constants.Environment]float64{
			constants.EnvironmentDevelopment: c.Environments.Development,
			constants.EnvironmentStaging:     c.Environments.Staging,
			constants.EnvironmentProduction:  c.Environments.Production,
			constants.EnvironmentTest:        c.Environments.Test,
		},
		Tiers: map[constants.UserTier]models.TierPolicy{
			constants.UserTierAnonymous:  c.Tiers.Anonymous.toTierPolicy(),
			constants.UserTierStandard:   c.Tiers.Standard.toTierPolicy(),
			constants.UserTierPremium:    c.Tiers.Premium.toTierPolicy(),
			constants.UserTierEnterprise: c.Tiers.Enterprise.toTierPolicy(),
		},
		Time: models.TimeMultipliers{
			PeakStart: c.Time.PeakStart,
			PeakEnd:   c.Time.PeakEnd,
			Peak:      c.Time.Peak,
			OffPeak:   c.Time.OffPeak,
			Weekend:   c.Time.Weekend,
		},
		Geo: models.GeoMultipliers{
			Domestic:      c.Geo.Domestic,
			International: c.Geo.International,
		},
	}
}

func (p PolicyConfig) toPolicy() models.LimitPolicy {
	return models.LimitPolicy{
		Points:        p.Points,
		Duration:      time.Duration(p.Duration) * time.Second,
		BlockDuration: time.Duration(p.BlockDuration) * time.Second,
	}
}

func (t TierConfig) toTierPolicy() models.TierPolicy {
	special := make(map[constants.LimitType]models.LimitPolicy)
	for lt, p := range t.SpecialLimits.byType() {
		special[lt] = p.toPolicy()
	}
	return models.TierPolicy{Multiplier: t.Multiplier, SpecialLimits: special}
}

func (s SpecialLimitsConfig) byType() map[constants.LimitType]*PolicyConfig {
	out := make(map[constants.LimitType]*PolicyConfig)
	add := func(lt constants.LimitType, p *PolicyConfig) {
		if p != nil {
			out[lt] = p
		}
	}
	add(constants.LimitTypeRenewal, s.Renewal)
	add(constants.LimitTypeRenewalIP, s.RenewalIP)
	add(constants.LimitTypePaymentVerification, s.PaymentVerification)
	add(constants.LimitTypePaymentVerificationIP, s.PaymentVerificationIP)
	return out
}

//Personal.AI order the ending
