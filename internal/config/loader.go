package config

import (
	"bytes"
	_ "embed"
	stderrors "errors"
	"strings"

	"github.com/spf13/viper"

	"github.com/turtacn/renewguard/pkg/errors"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// EnvPrefix is the prefix of environment overrides, e.g. RENEWGUARD_RATE_LIMIT_POLICIES_RENEWAL_POINTS.
const EnvPrefix = "RENEWGUARD"

// LoadConfig loads the configuration from the embedded defaults, an optional
// config file and environment variables, in that order of precedence.
// An empty configFile searches /etc/renewguard/ and the working directory.
func LoadConfig(configFile string) (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/renewguard/")
		v.AddConfigPath(".")
	}
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !stderrors.As(err, &notFound) {
			return nil, errors.ErrInvalidConfig("failed to read config file").WithCause(err)
		}
	}

	return unmarshal(v)
}

// Default returns the embedded defaults with environment overrides applied.
func Default() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	return unmarshal(v)
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultsYAML)); err != nil {
		return nil, errors.ErrInvalidConfig("failed to read embedded defaults").WithCause(err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.ErrInvalidConfig("failed to unmarshal config").WithCause(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

//Personal.AI order the ending
