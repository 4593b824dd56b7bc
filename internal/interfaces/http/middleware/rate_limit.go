package middleware

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/renewguard/internal/domain/models"
	"github.com/turtacn/renewguard/internal/domain/service"
	"github.com/turtacn/renewguard/pkg/constants"
	"github.com/turtacn/renewguard/pkg/errors"
	"github.com/turtacn/renewguard/pkg/logger"
)

// KeySource selects which request value keys a limit check.
type KeySource int

const (
	// KeyFromIdentifier keys the check by the operation identifier (hospital or order id).
	KeyFromIdentifier KeySource = iota
	// KeyFromClientIP keys the check by the client IP.
	KeyFromClientIP
)

// AdmissionCheck is one limit evaluated for every admitted request.
type AdmissionCheck struct {
	LimitType constants.LimitType
	Source    KeySource
}

// IdentifierFunc extracts the required identifier from a request.
type IdentifierFunc func(c *gin.Context) string

// FromParam reads a path parameter.
func FromParam(name string) IdentifierFunc {
	return func(c *gin.Context) string { return c.Param(name) }
}

// FromHeader reads a request header.
func FromHeader(name string) IdentifierFunc {
	return func(c *gin.Context) string { return c.GetHeader(name) }
}

// FromQuery reads a query parameter.
func FromQuery(name string) IdentifierFunc {
	return func(c *gin.Context) string { return c.Query(name) }
}

// FirstOf returns the first non-empty value of fns.
func FirstOf(fns ...IdentifierFunc) IdentifierFunc {
	return func(c *gin.Context) string {
		for _, fn := range fns {
			if v := strings.TrimSpace(fn(c)); v != "" {
				return v
			}
		}
		return ""
	}
}

// AdmissionOptions configures Admission for one protected operation.
type AdmissionOptions struct {
	Operation      constants.Operation
	Identifier     IdentifierFunc
	IdentifierName string
	MissingCode    constants.DenialCode
	Checks         []AdmissionCheck

	Environment     constants.Environment
	HomeCountry     string
	FailureStatuses []int
	Clock           service.Clock
}

// RenewalAdmission guards subscription renewal by hospital id and client IP.
func RenewalAdmission(env constants.Environment, homeCountry string, failureStatuses []int) AdmissionOptions {
	return AdmissionOptions{
		Operation:      constants.OperationRenewal,
		Identifier:     FirstOf(FromParam("hospital_id"), FromHeader("X-Hospital-ID"), FromQuery("hospital_id")),
		IdentifierName: "hospital_id",
		MissingCode:    constants.DenialCodeMissingHospitalID,
		Checks: []AdmissionCheck{
			{LimitType: constants.LimitTypeRenewal, Source: KeyFromIdentifier},
			{LimitType: constants.LimitTypeRenewalIP, Source: KeyFromClientIP},
		},
		Environment:     env,
		HomeCountry:     homeCountry,
		FailureStatuses: failureStatuses,
	}
}

// PaymentVerificationAdmission guards payment verification by order id and client IP.
func PaymentVerificationAdmission(env constants.Environment, homeCountry string, failureStatuses []int) AdmissionOptions {
	return AdmissionOptions{
		Operation:      constants.OperationPaymentVerification,
		Identifier:     FirstOf(FromParam("order_id"), FromHeader("X-Order-ID"), FromQuery("order_id")),
		IdentifierName: "order_id",
		MissingCode:    constants.DenialCodeMissingOrderID,
		Checks: []AdmissionCheck{
			{LimitType: constants.LimitTypePaymentVerification, Source: KeyFromIdentifier},
			{LimitType: constants.LimitTypePaymentVerificationIP, Source: KeyFromClientIP},
		},
		Environment:     env,
		HomeCountry:     homeCountry,
		FailureStatuses: failureStatuses,
	}
}

// Admission returns a middleware that rejects requests without the required
// identifier, requests from a failure-blocked client and requests over any
// configured limit. Failure responses of the wrapped handler are recorded
// against the client IP.
func Admission(limiter service.RateLimitService, opts AdmissionOptions, log logger.Logger) gin.HandlerFunc {
	if opts.Clock == nil {
		opts.Clock = service.SystemClock{}
	}
	failing := make(map[int]bool, len(opts.FailureStatuses))
	for _, s := range opts.FailureStatuses {
		failing[s] = true
	}
	log = log.WithComponent("admission")

	return func(c *gin.Context) {
		ctx := c.Request.Context()

		identifier := strings.TrimSpace(opts.Identifier(c))
		if identifier == "" {
			abortWithError(c, errors.ErrMissingIdentifier(string(opts.MissingCode), opts.IdentifierName), nil)
			return
		}
		clientIP := c.ClientIP()

		if blocked, reset := limiter.CheckFailureBlock(ctx, clientIP); blocked {
			log.Warn(ctx, "Request rejected by failure block", logger.Fields{
				"operation": string(opts.Operation),
				"client_ip": clientIP,
			})
			abortWithError(c, errors.ErrSuspiciousActivity(clientIP), gin.H{
				"retryAfter": models.RetryAfterSeconds(reset, opts.Clock.Now()),
				"resetTime":  reset.UTC(),
			})
			return
		}

		mctx := multiplierContext(c, opts)
		checks := make([]models.LimitCheck, 0, len(opts.Checks))
		for _, ac := range opts.Checks {
			key := identifier
			if ac.Source == KeyFromClientIP {
				key = clientIP
			}
			checks = append(checks, models.LimitCheck{Key: key, LimitType: ac.LimitType, Context: mctx})
		}

		out, err := limiter.CheckMultipleLimits(ctx, checks)
		if err != nil {
			log.Error(ctx, "Admission check misconfigured", err, logger.Fields{"operation": string(opts.Operation)})
			abortWithError(c, err, nil)
			return
		}

		now := opts.Clock.Now()
		if failure, denied := out.FirstFailure(); denied {
			res := failure.Result
			if res.Outcome == models.OutcomeStoreError {
				log.Warn(ctx, "Request rejected, limit state unavailable", logger.Fields{
					"operation":  string(opts.Operation),
					"limit_type": string(res.LimitType),
				})
				abortWithError(c, storeFailure(res.Err), gin.H{"limitType": res.LimitType})
				return
			}
			retryAfter := res.RetryAfter(now)
			setRateLimitHeaders(c, res)
			c.Header(constants.HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))

			var denial errors.AppError
			if res.Reason == models.ReasonBlocked {
				denial = errors.ErrBlocked(string(res.LimitType))
			} else {
				denial = errors.ErrRateLimited(string(res.LimitType), res.Limit)
			}
			log.Info(ctx, "Request rate limited", logger.Fields{
				"operation":  string(opts.Operation),
				"limit_type": string(res.LimitType),
				"reason":     string(res.Reason),
			})
			abortWithError(c, denial, gin.H{
				"limitType":  res.LimitType,
				"retryAfter": retryAfter,
				"resetTime":  res.ResetTime.UTC(),
			})
			return
		}

		if tightest, ok := mostRestrictive(out.Results); ok {
			setRateLimitHeaders(c, tightest)
		}

		c.Next()

		if status := c.Writer.Status(); failing[status] {
			limiter.RecordFailure(ctx, clientIP, opts.Operation, "http_"+strconv.Itoa(status))
		}
	}
}

// multiplierContext builds the per-request policy inputs. An authenticated
// tier set on the gin context wins over the header.
func multiplierContext(c *gin.Context, opts AdmissionOptions) models.MultiplierContext {
	tier := c.GetString(string(constants.ContextKeyUserTier))
	if tier == "" {
		tier = c.GetHeader(constants.HeaderUserTier)
	}
	if tier == "" {
		tier = string(constants.UserTierStandard)
	}

	country := strings.TrimSpace(c.GetHeader(constants.HeaderCountryCode))
	international := country != "" && opts.HomeCountry != "" && !strings.EqualFold(country, opts.HomeCountry)

	return models.NewMultiplierContext(opts.Environment, constants.UserTier(strings.ToLower(tier)), opts.Clock.Now(), international)
}

// mostRestrictive picks the enforced result with the fewest remaining points.
func mostRestrictive(results []models.CheckResult) (models.CheckResult, bool) {
	var (
		best  models.CheckResult
		found bool
	)
	for _, r := range results {
		if r.Outcome != models.OutcomeAllowed {
			continue
		}
		if !found || r.Remaining < best.Remaining {
			best, found = r, true
		}
	}
	return best, found
}

func setRateLimitHeaders(c *gin.Context, res models.CheckResult) {
	c.Header(constants.HeaderRateLimitLimit, strconv.FormatInt(res.Limit, 10))
	c.Header(constants.HeaderRateLimitRemaining, strconv.FormatInt(res.Remaining, 10))
	c.Header(constants.HeaderRateLimitReset, strconv.FormatInt(res.ResetTime.Unix(), 10))
}

// storeFailure keeps store_unavailable and circuit_open errors as they are
// so both answer 503.
func storeFailure(err error) error {
	if _, ok := errors.AsAppError(err); ok {
		return err
	}
	return errors.ErrStoreUnavailable("check_limit", err)
}

// abortWithError writes {error, code, ...extra} with the error's HTTP status.
func abortWithError(c *gin.Context, err error, extra gin.H) {
	status, resp := errors.ToGenericErrorResponse(err)
	body := gin.H{
		"error": resp.ErrorDescription,
		"code":  resp.Error,
	}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}
