package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for one keep-alive run
type Config struct {
	Supabase SupabaseConfig `mapstructure:"supabase" yaml:"supabase"`
	Test     TestConfig     `mapstructure:"-" yaml:"test"`
	Probe    ProbeConfig    `mapstructure:"probe" yaml:"probe"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	S3       S3Config       `mapstructure:"s3" yaml:"s3"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// SupabaseConfig holds the project endpoint and API key
type SupabaseConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Key     string        `mapstructure:"key" yaml:"key"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// TestConfig holds the optional test account. A nil field was not configured
// at all; a non-nil empty field was configured with an empty value.
type TestConfig struct {
	Email    *string `yaml:"email"`
	Username *string `yaml:"username"`
	Phone    *string `yaml:"phone"`
	Password *string `yaml:"password"`
}

// ProbeConfig holds the tables, timings and synthetic-input settings used by
// the auth probe chain and the smoke checks
type ProbeConfig struct {
	Table            string        `mapstructure:"table" yaml:"table"`
	UsersTable       string        `mapstructure:"users_table" yaml:"users_table"`
	UsersColumn      string        `mapstructure:"users_column" yaml:"users_column"`
	UsersEmailColumn string        `mapstructure:"users_email_column" yaml:"users_email_column"`
	ResetDomain      string        `mapstructure:"reset_domain" yaml:"reset_domain"`
	RealtimeWait     time.Duration `mapstructure:"realtime_wait" yaml:"realtime_wait"`
	ObjectLimit      int           `mapstructure:"object_limit" yaml:"object_limit"`
}

// DatabaseConfig enables the direct Postgres check when URL is set
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// S3Config enables the S3-protocol storage check when Endpoint is set
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	Region    string `mapstructure:"region" yaml:"region"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug | info | warn | error
	Format string `mapstructure:"format" yaml:"format"` // json | text | auto
}

// envBindings maps config keys to the environment variables that feed them.
// The SUPABASE_* and TEST_* names are shared with the scheduler secrets and
// carry no prefix.
var envBindings = map[string]string{
	"supabase.url":             "SUPABASE_URL",
	"supabase.key":             "SUPABASE_KEY",
	"supabase.timeout":         "KEEPALIVE_HTTP_TIMEOUT",
	"test.email":               "TEST_EMAIL",
	"test.username":            "TEST_USERNAME",
	"test.phone":               "TEST_PHONE",
	"test.password":            "TEST_PASSWORD",
	"probe.table":              "KEEPALIVE_TABLE",
	"probe.users_table":        "KEEPALIVE_USERS_TABLE",
	"probe.users_column":       "KEEPALIVE_USERS_COLUMN",
	"probe.users_email_column": "KEEPALIVE_USERS_EMAIL_COLUMN",
	"probe.reset_domain":       "KEEPALIVE_RESET_DOMAIN",
	"probe.realtime_wait":      "KEEPALIVE_REALTIME_WAIT",
	"probe.object_limit":       "KEEPALIVE_OBJECT_LIMIT",
	"database.url":             "KEEPALIVE_DATABASE_URL",
	"s3.endpoint":              "KEEPALIVE_S3_ENDPOINT",
	"s3.access_key":            "KEEPALIVE_S3_ACCESS_KEY",
	"s3.secret_key":            "KEEPALIVE_S3_SECRET_KEY",
	"s3.region":                "KEEPALIVE_S3_REGION",
	"logging.level":            "KEEPALIVE_LOG_LEVEL",
	"logging.format":           "KEEPALIVE_LOG_FORMAT",
}

// NewViper creates a new viper instance with defaults and environment binding
func NewViper() *viper.Viper {
	v := viper.New()

	// Set defaults
	v.SetDefault("supabase.timeout", 30*time.Second)
	v.SetDefault("probe.table", "keep_alive")
	v.SetDefault("probe.users_table", "users")
	v.SetDefault("probe.users_column", "username")
	v.SetDefault("probe.users_email_column", "email")
	v.SetDefault("probe.reset_domain", "example.com")
	v.SetDefault("probe.realtime_wait", 3*time.Second)
	v.SetDefault("probe.object_limit", 10)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "auto")

	// An empty TEST_PASSWORD is configured, just empty
	v.AllowEmptyEnv(true)
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	return v
}

// Load loads configuration from environment variables and defaults
func Load() (*Config, error) {
	return LoadWithViper(NewViper())
}

// LoadWithViper loads configuration using a pre-configured viper instance
// This allows CLI flags to be bound before loading
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Supabase.URL = strings.TrimSpace(cfg.Supabase.URL)
	cfg.Supabase.Key = strings.TrimSpace(cfg.Supabase.Key)

	cfg.Test = TestConfig{
		Email:    lookup(v, "test.email"),
		Username: lookup(v, "test.username"),
		Phone:    lookup(v, "test.phone"),
		Password: lookup(v, "test.password"),
	}

	return &cfg, nil
}

func lookup(v *viper.Viper, key string) *string {
	if !v.IsSet(key) {
		return nil
	}
	value := v.GetString(key)
	return &value
}

// Validate validates the configuration. Missing Supabase credentials produce
// a *MissingError so callers can tell them apart from malformed values.
func (c *Config) Validate() error {
	var missing []string
	if c.Supabase.URL == "" {
		missing = append(missing, envBindings["supabase.url"])
	}
	if c.Supabase.Key == "" {
		missing = append(missing, envBindings["supabase.key"])
	}
	if len(missing) > 0 {
		return &MissingError{Vars: missing}
	}

	u, err := url.Parse(c.Supabase.URL)
	if err != nil {
		return fmt.Errorf("invalid SUPABASE_URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid SUPABASE_URL %q: must be an http(s) URL with a host", c.Supabase.URL)
	}

	if c.Supabase.Timeout <= 0 {
		return fmt.Errorf("supabase.timeout must be positive")
	}
	if c.Probe.RealtimeWait < 0 {
		return fmt.Errorf("probe.realtime_wait must not be negative")
	}
	if c.Probe.ObjectLimit < 1 {
		return fmt.Errorf("probe.object_limit must be at least 1")
	}
	if c.Probe.Table == "" || c.Probe.UsersTable == "" || c.Probe.UsersColumn == "" {
		return fmt.Errorf("probe tables and columns cannot be empty")
	}
	if c.Probe.ResetDomain == "" || strings.Contains(c.Probe.ResetDomain, "@") {
		return fmt.Errorf("probe.reset_domain must be a bare domain")
	}

	if c.S3.Endpoint != "" && (c.S3.AccessKey == "" || c.S3.SecretKey == "") {
		return fmt.Errorf("s3.endpoint requires both KEEPALIVE_S3_ACCESS_KEY and KEEPALIVE_S3_SECRET_KEY")
	}

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be debug, info, warn, or error")
	}

	// Validate logging format
	if c.Logging.Format != "json" && c.Logging.Format != "text" && c.Logging.Format != "auto" {
		return fmt.Errorf("logging.format must be json, text, or auto")
	}

	return nil
}

// Identifier returns the login identifier. A non-blank TEST_EMAIL wins over
// TEST_USERNAME; a blank one only wins when no usable username is set.
func (t TestConfig) Identifier() *string {
	switch {
	case !blank(t.Email):
		return t.Email
	case !blank(t.Username):
		return t.Username
	case t.Email != nil:
		return t.Email
	default:
		return t.Username
	}
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// Configured reports whether any test credential was supplied
func (t TestConfig) Configured() bool {
	return t.Email != nil || t.Username != nil || t.Phone != nil || t.Password != nil
}

// MaskKey returns a masked version of the API key for logging
func (c *Config) MaskKey() string {
	return mask(c.Supabase.Key)
}

// Redacted returns a copy that is safe to print
func (c *Config) Redacted() Config {
	out := *c
	out.Supabase.Key = mask(c.Supabase.Key)
	out.S3.SecretKey = mask(c.S3.SecretKey)
	if c.Test.Password != nil {
		masked := mask(*c.Test.Password)
		out.Test.Password = &masked
	}
	if c.Database.URL != "" {
		out.Database.URL = redactURL(c.Database.URL)
	}
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***"
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
