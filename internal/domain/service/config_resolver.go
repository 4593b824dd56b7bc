package service

import (
	"math"
	"time"

	"github.com/turtacn/renewguard/internal/domain/models"
	"github.com/turtacn/renewguard/pkg/constants"
	"github.com/turtacn/renewguard/pkg/errors"
)

// ConfigResolver computes effective policies from the base policy table and a
// per-request multiplier context. It performs no I/O and holds no mutable
// state, so a single instance is safe for concurrent use.
type ConfigResolver struct {
	policies models.PolicySet
}

// NewConfigResolver creates a resolver over an already validated policy set.
func NewConfigResolver(policies models.PolicySet) *ConfigResolver {
	return &ConfigResolver{policies: policies}
}

// Policies returns the policy set backing the resolver.
func (r *ConfigResolver) Policies() models.PolicySet {
	return r.policies
}

// BasePolicy returns the unscaled policy for a limit type, as used by the
// monitoring and reset paths.
func (r *ConfigResolver) BasePolicy(limitType constants.LimitType) (models.LimitPolicy, error) {
	p, ok := r.policies.Base[limitType]
	if !ok {
		return models.LimitPolicy{}, errors.ErrUnknownLimitType(string(limitType))
	}
	return p, nil
}

// LongestWindow returns the longest window duration of any base or special
// policy. Entries younger than this may still be counted by some check.
func (r *ConfigResolver) LongestWindow() time.Duration {
	var longest time.Duration
	for _, p := range r.policies.Base {
		longest = max(longest, p.Duration)
	}
	for _, t := range r.policies.Tiers {
		for _, p := range t.SpecialLimits {
			longest = max(longest, p.Duration)
		}
	}
	return longest
}

// Resolve returns the effective policy for limitType under mctx.
//
// A special limit defined by the caller's tier for this exact limit type
// replaces the base policy before multipliers are applied. Multipliers only
// scale Points.
func (r *ConfigResolver) Resolve(limitType constants.LimitType, mctx models.MultiplierContext) (*models.EffectivePolicy, error) {
	base, err := r.BasePolicy(limitType)
	if err != nil {
		return nil, err
	}

	tierName, tier := r.tier(mctx.UserType)
	envName, envMul := r.environment(mctx.Environment)

	policy := base
	special := false
	if sl, ok := tier.SpecialLimits[limitType]; ok {
		policy = sl
		special = true
	}

	timeMul, band := r.timeMultiplier(mctx)
	geoMul := r.policies.Geo.Domestic
	if mctx.IsInternational {
		geoMul = r.policies.Geo.International
	}
	geoMul = orOne(geoMul)

	total := envMul * tier.Multiplier * timeMul * geoMul
	points := int64(math.Round(float64(policy.Points) * total))
	if points < 1 {
		points = 1
	}

	return &models.EffectivePolicy{
		LimitPolicy: models.LimitPolicy{
			Points:        points,
			Duration:      policy.Duration,
			BlockDuration: policy.BlockDuration,
		},
		LimitType:    limitType,
		BasePoints:   policy.Points,
		SpecialLimit: special,
		Multipliers: models.AppliedMultipliers{
			Environment: envMul,
			UserType:    tier.Multiplier,
			Time:        timeMul,
			TimeBand:    band,
			Geographic:  geoMul,
			Total:       total,
		},
		ResolvedTier: tierName,
		ResolvedEnv:  envName,
	}, nil
}

// tier falls back to the standard tier for unknown user types.
func (r *ConfigResolver) tier(name constants.UserTier) (constants.UserTier, models.TierPolicy) {
	if t, ok := r.policies.Tiers[name]; ok {
		t.Multiplier = orOne(t.Multiplier)
		return name, t
	}
	if t, ok := r.policies.Tiers[constants.UserTierStandard]; ok {
		t.Multiplier = orOne(t.Multiplier)
		return constants.UserTierStandard, t
	}
	return constants.UserTierStandard, models.TierPolicy{Multiplier: 1}
}

// environment falls back to production for unknown deployment tiers.
func (r *ConfigResolver) environment(name constants.Environment) (constants.Environment, float64) {
	if m, ok := r.policies.Environments[name]; ok {
		return name, orOne(m)
	}
	if m, ok := r.policies.Environments[constants.EnvironmentProduction]; ok {
		return constants.EnvironmentProduction, orOne(m)
	}
	return constants.EnvironmentProduction, 1
}

// timeMultiplier applies weekend first; peak and off-peak only on weekdays.
func (r *ConfigResolver) timeMultiplier(mctx models.MultiplierContext) (float64, constants.TimeBand) {
	t := r.policies.Time
	if mctx.IsWeekend {
		return orOne(t.Weekend), constants.TimeBandWeekend
	}
	if mctx.CurrentHour >= t.PeakStart && mctx.CurrentHour < t.PeakEnd {
		return orOne(t.Peak), constants.TimeBandPeak
	}
	return orOne(t.OffPeak), constants.TimeBandOffPeak
}

func orOne(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return v
}

//Personal.AI order the ending
