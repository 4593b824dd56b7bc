package config

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/turtacn/renewguard/pkg/constants"
	"github.com/turtacn/renewguard/pkg/errors"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// RegisterCustomValidators registers the rules the struct tags cannot express.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("cron_spec", validateCronSpec); err != nil {
		return fmt.Errorf("failed to register cron_spec validator: %w", err)
	}
	return nil
}

// validateCronSpec accepts standard five-field specs and descriptors such as "@every 10m".
func validateCronSpec(fl validator.FieldLevel) bool {
	_, err := cronParser.Parse(fl.Field().String())
	return err == nil
}

// Validate validates the Config using struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return errors.ErrInvalidConfig(formatValidationErrors(err))
	}

	if err := c.validateRedisTopology(); err != nil {
		return errors.ErrInvalidConfig(err.Error())
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.ErrInvalidConfig("kafka: enabled without brokers")
	}
	if c.Admin.Enabled && c.Admin.Token == "" && c.Server.Env() == constants.EnvironmentProduction {
		return errors.ErrInvalidConfig("admin: enabled in production without a token")
	}
	return nil
}

// validateRedisTopology checks the addresses each connection mode needs.
func (c *Config) validateRedisTopology() error {
	switch c.Redis.Mode {
	case "cluster":
		if len(c.Redis.ClusterAddrs) == 0 {
			return stderrors.New("redis: cluster mode requires cluster_addrs")
		}
	case "sentinel":
		if len(c.Redis.SentinelAddrs) == 0 || c.Redis.SentinelMaster == "" {
			return stderrors.New("redis: sentinel mode requires sentinel_addrs and sentinel_master")
		}
	default:
		if c.Redis.Host == "" {
			return stderrors.New("redis: standalone mode requires host")
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to readable messages.
func formatValidationErrors(err error) string {
	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return err.Error()
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatSingleValidationError(e))
	}
	return strings.Join(messages, "; ")
}

func formatSingleValidationError(e validator.FieldError) string {
	field := strings.TrimPrefix(e.Namespace(), "Config.")
	switch e.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s: is required", field)
	case "min", "gte":
		return fmt.Sprintf("%s: must be at least %s", field, e.Param())
	case "max", "lte":
		return fmt.Sprintf("%s: must be at most %s", field, e.Param())
	case "gt":
		return fmt.Sprintf("%s: must be greater than %s", field, e.Param())
	case "gtfield":
		return fmt.Sprintf("%s: must be greater than %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s: must be one of [%s]", field, e.Param())
	case "url":
		return fmt.Sprintf("%s: must be a valid URL", field)
	case "cron_spec":
		return fmt.Sprintf("%s: invalid cron spec %q", field, e.Value())
	case "cidr|ip":
		return fmt.Sprintf("%s: %q is neither a CIDR nor an IP", field, e.Value())
	case "len":
		return fmt.Sprintf("%s: must be %s characters", field, e.Param())
	default:
		return fmt.Sprintf("%s: failed %s validation", field, e.Tag())
	}
}

//Personal.AI order the ending
