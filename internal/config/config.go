// Package config provides configuration loading and validation for the SIGA
// core services. It uses koanf to merge environment variables with optional
// file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server and jobs.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database. Empty means the in-memory stores are used (development).
	DatabaseURL string `koanf:"database_url"`

	// Redis pub/sub for escalation notifications. Empty disables the sink.
	RedisAddr         string `koanf:"redis_addr"`
	EscalationChannel string `koanf:"escalation_channel"`

	// Escalation thresholds (distinct missing deliverables per student).
	WarningThreshold  int `koanf:"warning_threshold"`
	CriticalThreshold int `koanf:"critical_threshold"`

	// Audit store bounds.
	MaxAuditEntries   int `koanf:"max_audit_entries"`
	RetentionDays     int `koanf:"retention_days"`
	RetentionInterval int `koanf:"retention_interval_hours"`

	// SeedDemoData populates an empty audit store with demo events.
	SeedDemoData bool `koanf:"seed_demo_data"`
}

// Configuration validation errors.
var (
	ErrInvalidPort              = errors.New("SIGA_PORT must be a valid integer")
	ErrInvalidWarningThreshold  = errors.New("WARNING_THRESHOLD must be a positive integer")
	ErrInvalidCriticalThreshold = errors.New("CRITICAL_THRESHOLD must be a positive integer")
	ErrThresholdOrder           = errors.New("WARNING_THRESHOLD must be lower than CRITICAL_THRESHOLD")
	ErrInvalidMaxAuditEntries   = errors.New("MAX_AUDIT_ENTRIES must be a positive integer")
	ErrInvalidRetentionDays     = errors.New("RETENTION_DAYS must be a positive integer")
)

// Default values for non-secret configuration.
const (
	DefaultPort              = 8080
	DefaultEnv               = "development"
	DefaultWarningThreshold  = 3
	DefaultCriticalThreshold = 5
	DefaultMaxAuditEntries   = 1000
	DefaultRetentionDays     = 90
	DefaultRetentionInterval = 24
)

// Load reads configuration from environment variables and an optional YAML
// config file. Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if
// valid). If a config file path is provided and the file cannot be loaded,
// an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, err := getEnvIntOrDefault("SIGA_PORT", k.Int("port"), DefaultPort)
	if err != nil {
		loadErrs = append(loadErrs, ErrInvalidPort)
	}
	warning, err := getEnvIntOrDefault("WARNING_THRESHOLD", k.Int("warning_threshold"), DefaultWarningThreshold)
	if err != nil {
		loadErrs = append(loadErrs, ErrInvalidWarningThreshold)
	}
	critical, err := getEnvIntOrDefault("CRITICAL_THRESHOLD", k.Int("critical_threshold"), DefaultCriticalThreshold)
	if err != nil {
		loadErrs = append(loadErrs, ErrInvalidCriticalThreshold)
	}
	maxEntries, err := getEnvIntOrDefault("MAX_AUDIT_ENTRIES", k.Int("max_audit_entries"), DefaultMaxAuditEntries)
	if err != nil {
		loadErrs = append(loadErrs, ErrInvalidMaxAuditEntries)
	}
	retentionDays, err := getEnvIntOrDefault("RETENTION_DAYS", k.Int("retention_days"), DefaultRetentionDays)
	if err != nil {
		loadErrs = append(loadErrs, ErrInvalidRetentionDays)
	}
	retentionInterval, err := getEnvIntOrDefault("RETENTION_INTERVAL_HOURS", k.Int("retention_interval_hours"), DefaultRetentionInterval)
	if err != nil {
		loadErrs = append(loadErrs, fmt.Errorf("RETENTION_INTERVAL_HOURS must be a valid integer"))
	}

	cfg := &Config{
		Port:              port,
		Env:               getEnvOrDefault("SIGA_ENV", k.String("env"), DefaultEnv),
		DatabaseURL:       getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisAddr:         getEnvOrKoanf("REDIS_ADDR", k, "redis_addr"),
		EscalationChannel: getEnvOrKoanf("ESCALATION_CHANNEL", k, "escalation_channel"),
		WarningThreshold:  warning,
		CriticalThreshold: critical,
		MaxAuditEntries:   maxEntries,
		RetentionDays:     retentionDays,
		RetentionInterval: retentionInterval,
		SeedDemoData:      getEnvBoolOrDefault("SEED_DEMO_DATA", k, "seed_demo_data"),
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// Validate checks the loaded values for consistency.
func (c *Config) Validate() []error {
	var errs []error

	if c.WarningThreshold <= 0 {
		errs = append(errs, ErrInvalidWarningThreshold)
	}
	if c.CriticalThreshold <= 0 {
		errs = append(errs, ErrInvalidCriticalThreshold)
	}
	if c.WarningThreshold > 0 && c.CriticalThreshold > 0 && c.WarningThreshold >= c.CriticalThreshold {
		errs = append(errs, ErrThresholdOrder)
	}
	if c.MaxAuditEntries <= 0 {
		errs = append(errs, ErrInvalidMaxAuditEntries)
	}
	if c.RetentionDays <= 0 {
		errs = append(errs, ErrInvalidRetentionDays)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// The database URL is masked to prevent accidental credential exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                     fmt.Sprintf("%d", c.Port),
		"env":                      c.Env,
		"database_url":             maskDatabaseURL(c.DatabaseURL),
		"redis_addr":               c.RedisAddr,
		"escalation_channel":       c.EscalationChannel,
		"warning_threshold":        fmt.Sprintf("%d", c.WarningThreshold),
		"critical_threshold":       fmt.Sprintf("%d", c.CriticalThreshold),
		"max_audit_entries":        fmt.Sprintf("%d", c.MaxAuditEntries),
		"retention_days":           fmt.Sprintf("%d", c.RetentionDays),
		"retention_interval_hours": fmt.Sprintf("%d", c.RetentionInterval),
		"seed_demo_data":           fmt.Sprintf("%t", c.SeedDemoData),
	}
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the
// koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise
// the koanf value, or the default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set,
// otherwise the koanf value, or the default. Returns an error if the
// environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer", envKey)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvBoolOrDefault reads a boolean from the environment with the koanf
// value as fallback. Defaults to false.
func getEnvBoolOrDefault(envKey string, k *koanf.Koanf, koanfKey string) bool {
	if val := os.Getenv(envKey); val != "" {
		switch val {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	if k.Exists(koanfKey) {
		return k.Bool(koanfKey)
	}
	return false
}

// maskDatabaseURL masks the password in a database URL. Supports both
// postgres:// and postgresql:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return "****"
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	return s[:schemeEnd+3] + rest[:colonIndex] + ":****" + rest[atIndex:]
}
