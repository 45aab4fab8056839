// Package config loads cohortq settings from an optional config file and
// COHORTQ_* environment variables.
//
// Precedence, highest first: explicit overrides (CLI flags), environment,
// config file, defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/dsi-icl/eae-interface/internal/queryir"
	"github.com/dsi-icl/eae-interface/internal/querymongo"
)

// EnvPrefix prefixes every environment variable, e.g. COHORTQ_DATABASE.
const EnvPrefix = "COHORTQ"

// Keys
const (
	KeyMaxExpressionDepth = "max_expression_depth"
	KeyIdentifierField    = "identifier_field"
	KeyKeyField           = "key_field"
	KeyDatabase           = "database"
	KeyLogLevel           = "log_level"
)

// Config holds the effective settings.
type Config struct {
	MaxExpressionDepth int    `mapstructure:"max_expression_depth"`
	IdentifierField    string `mapstructure:"identifier_field"`
	KeyField           string `mapstructure:"key_field"`
	Database           string `mapstructure:"database"`
	LogLevel           string `mapstructure:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		MaxExpressionDepth: queryir.DefaultMaxExpressionDepth,
		IdentifierField:    querymongo.DefaultIdentifierField,
		KeyField:           querymongo.DefaultKeyField,
		Database:           "cohortq.db",
		LogLevel:           "info",
	}
}

// Load reads the config file at path (skipped when empty), applies the
// environment and then overrides, and validates the result. The file type
// follows its extension: .yaml, .json or .toml.
func Load(path string, overrides map[string]any) (Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault(KeyMaxExpressionDepth, d.MaxExpressionDepth)
	v.SetDefault(KeyIdentifierField, d.IdentifierField)
	v.SetDefault(KeyKeyField, d.KeyField)
	v.SetDefault(KeyDatabase, d.Database)
	v.SetDefault(KeyLogLevel, d.LogLevel)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the settings are usable.
func (c Config) Validate() error {
	var errs []error
	if c.MaxExpressionDepth <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", KeyMaxExpressionDepth, c.MaxExpressionDepth))
	}
	if c.IdentifierField == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeyIdentifierField))
	}
	if c.KeyField == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeyKeyField))
	}
	if c.IdentifierField != "" && c.IdentifierField == c.KeyField {
		errs = append(errs, fmt.Errorf("%s and %s must differ, both are %q", KeyIdentifierField, KeyKeyField, c.KeyField))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Level parses LogLevel ("debug", "info", "warn", "error").
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%s: unknown level %q", KeyLogLevel, c.LogLevel)
	}
	return level, nil
}

// CompilerOptions returns the querymongo options these settings select.
func (c Config) CompilerOptions(logger *slog.Logger) querymongo.Options {
	return querymongo.Options{
		Limits:          queryir.Limits{MaxExpressionDepth: c.MaxExpressionDepth},
		IdentifierField: c.IdentifierField,
		KeyField:        c.KeyField,
		Logger:          logger,
	}
}
