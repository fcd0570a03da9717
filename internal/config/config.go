// Package config provides centralized configuration for the auth suite.
// Values come from environment variables, optionally seeded from a .env file
// in the working directory. Real environment variables always win over the
// file. CLI flags can be bound onto the same source.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kuitang/hudl-auth-e2e/internal/errs"
	"github.com/kuitang/hudl-auth-e2e/internal/logutil"
	"github.com/kuitang/hudl-auth-e2e/internal/ratelimit"
)

// Environment keys.
const (
	KeyBaseURL        = "HUDL_BASE_URL"
	KeyEmail          = "HUDL_EMAIL"
	KeyPassword       = "HUDL_PASSWORD"
	KeyDisplayName    = "HUDL_DISPLAY_NAME"
	KeyStorageFile    = "HUDL_STORAGE_FILE"
	KeyTarget         = "E2E_TARGET"
	KeyBrowser        = "E2E_BROWSER"
	KeyHeadless       = "HEADLESS"
	KeySlowMo         = "E2E_SLOWMO"
	KeyTimeout        = "E2E_TIMEOUT"
	KeyNavRPS         = "E2E_NAV_RPS"
	KeyNavBurst       = "E2E_NAV_BURST"
	KeyStateBucket    = "STATE_BUCKET"
	KeyStateKey       = "STATE_KEY"
	KeyAWSEndpointS3  = "AWS_ENDPOINT_URL_S3"
	KeyAWSRegion      = "AWS_REGION"
	KeyAWSAccessKeyID = "AWS_ACCESS_KEY_ID"
	KeyAWSSecretKey   = "AWS_SECRET_ACCESS_KEY"
	KeyLogLevel       = "LOG_LEVEL"
	KeyEnvFile        = "ENV_FILE"
)

const (
	DefaultBaseURL     = "https://www.hudl.com/en_gb/"
	DefaultDisplayName = "Charles A"
	DefaultStorageFile = "storage/hudl-auth.json"
	DefaultStateKey    = "hudl-auth.json"
	defaultEnvFile     = ".env"
	defaultS3Region    = "auto"
)

// Target selects what the browser tests run against.
type Target string

const (
	// TargetFixture serves the local page fixture over httptest.
	TargetFixture Target = "fixture"
	// TargetLive drives the real site with real credentials.
	TargetLive Target = "live"
)

// Config holds all suite configuration except credentials, which are read
// on demand by LoadCredentials.
type Config struct {
	BaseURL     string
	DisplayName string
	StorageFile string

	Target   Target
	Browser  string // chromium, firefox or webkit
	Headless bool
	SlowMo   time.Duration
	Timeout  time.Duration // Default action, navigation and assertion timeout

	Navigation ratelimit.Config

	// Session document sharing; empty bucket keeps it on disk only.
	StateBucket        string
	StateKey           string
	AWSEndpointS3      string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	LogLevel string
}

// Credentials are the account email and password for the site under test.
type Credentials struct {
	Email    string
	Password string
}

// String keeps the password out of formatted output.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Email: %q, Password: [REDACTED]}", logutil.MaskEmail(c.Email))
}

// LogValue implements slog.LogValuer.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("email", logutil.MaskEmail(c.Email)),
		slog.String("password", "[REDACTED]"),
	)
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// NewSource returns a viper instance reading envFile (if it exists) with
// environment variables taking precedence. An empty envFile uses ENV_FILE,
// then ".env".
func NewSource(envFile string) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if envFile == "" {
		envFile = strings.TrimSpace(os.Getenv(KeyEnvFile))
	}
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if _, err := os.Stat(envFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return v, nil
		}
		return nil, errs.Wrap(errs.Configuration, "stat env file "+envFile, err)
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, errs.Wrap(errs.Configuration, "read env file "+envFile, err)
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyBaseURL, DefaultBaseURL)
	v.SetDefault(KeyDisplayName, DefaultDisplayName)
	v.SetDefault(KeyStorageFile, DefaultStorageFile)
	v.SetDefault(KeyTarget, string(TargetFixture))
	v.SetDefault(KeyBrowser, "chromium")
	v.SetDefault(KeyHeadless, true)
	v.SetDefault(KeySlowMo, "0s")
	v.SetDefault(KeyTimeout, "30s")
	v.SetDefault(KeyNavRPS, ratelimit.DefaultConfig.RPS)
	v.SetDefault(KeyNavBurst, ratelimit.DefaultConfig.Burst)
	v.SetDefault(KeyStateKey, DefaultStateKey)
	v.SetDefault(KeyAWSRegion, defaultS3Region)
	v.SetDefault(KeyLogLevel, "info")
}

// Load reads configuration from the default source.
func Load() (*Config, error) {
	v, err := NewSource("")
	if err != nil {
		return nil, err
	}
	return LoadFrom(v)
}

// LoadFrom reads configuration from v and validates it.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		BaseURL:     strings.TrimSpace(v.GetString(KeyBaseURL)),
		DisplayName: strings.TrimSpace(v.GetString(KeyDisplayName)),
		StorageFile: strings.TrimSpace(v.GetString(KeyStorageFile)),

		Target:   Target(strings.ToLower(strings.TrimSpace(v.GetString(KeyTarget)))),
		Browser:  strings.ToLower(strings.TrimSpace(v.GetString(KeyBrowser))),
		Headless: v.GetBool(KeyHeadless),
		SlowMo:   v.GetDuration(KeySlowMo),
		Timeout:  v.GetDuration(KeyTimeout),

		Navigation: ratelimit.Config{
			RPS:   v.GetFloat64(KeyNavRPS),
			Burst: v.GetInt(KeyNavBurst),
		},

		StateBucket:        strings.TrimSpace(v.GetString(KeyStateBucket)),
		StateKey:           strings.TrimSpace(v.GetString(KeyStateKey)),
		AWSEndpointS3:      strings.TrimSpace(v.GetString(KeyAWSEndpointS3)),
		AWSRegion:          strings.TrimSpace(v.GetString(KeyAWSRegion)),
		AWSAccessKeyID:     strings.TrimSpace(v.GetString(KeyAWSAccessKeyID)),
		AWSSecretAccessKey: strings.TrimSpace(v.GetString(KeyAWSSecretKey)),

		LogLevel: strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
	}

	if err := cfg.Validate(); err != nil {
		return nil, errs.Wrap(errs.Configuration, "invalid configuration", err)
	}
	return cfg, nil
}

// Validate checks that all configuration is present and valid.
func (c *Config) Validate() error {
	var problems []string

	if u, err := url.Parse(c.BaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		problems = append(problems, KeyBaseURL+" must be an absolute http(s) URL")
	}
	if c.DisplayName == "" {
		problems = append(problems, KeyDisplayName+" must not be empty")
	}
	if c.StorageFile == "" {
		problems = append(problems, KeyStorageFile+" must not be empty")
	}

	switch c.Target {
	case TargetFixture, TargetLive:
	default:
		problems = append(problems, fmt.Sprintf("%s must be %q or %q", KeyTarget, TargetFixture, TargetLive))
	}
	switch c.Browser {
	case "chromium", "firefox", "webkit":
	default:
		problems = append(problems, KeyBrowser+" must be chromium, firefox or webkit")
	}

	if c.Timeout <= 0 {
		problems = append(problems, KeyTimeout+" must be a positive duration")
	}
	if c.SlowMo < 0 {
		problems = append(problems, KeySlowMo+" must not be negative")
	}
	if c.Navigation.RPS < 0 {
		problems = append(problems, KeyNavRPS+" must not be negative")
	}
	if c.Navigation.RPS > 0 && c.Navigation.Burst <= 0 {
		problems = append(problems, KeyNavBurst+" must be positive when pacing is enabled")
	}

	if c.StateBucket != "" {
		if c.StateKey == "" {
			problems = append(problems, KeyStateKey+" is required when "+KeyStateBucket+" is set")
		}
		if c.AWSRegion == "" {
			problems = append(problems, KeyAWSRegion+" is required when "+KeyStateBucket+" is set")
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		problems = append(problems, KeyLogLevel+" must be debug, info, warn or error")
	}

	if len(problems) > 0 {
		return &ValidationError{Errors: problems}
	}
	return nil
}

// IsLive reports whether the suite targets the real site.
func (c *Config) IsLive() bool {
	return c.Target == TargetLive
}

// TimeoutMS returns Timeout in the float milliseconds Playwright expects.
func (c *Config) TimeoutMS() float64 {
	return float64(c.Timeout.Milliseconds())
}

// LoadCredentials reads the account email and password from the default
// source. Either value missing or blank is a configuration error. Nothing
// is cached, so every call sees the current environment.
func LoadCredentials() (Credentials, error) {
	v, err := NewSource("")
	if err != nil {
		return Credentials{}, err
	}
	return CredentialsFrom(v)
}

// CredentialsFrom reads credentials from v.
func CredentialsFrom(v *viper.Viper) (Credentials, error) {
	creds := Credentials{
		Email:    strings.TrimSpace(v.GetString(KeyEmail)),
		Password: v.GetString(KeyPassword),
	}

	var missing []string
	if creds.Email == "" {
		missing = append(missing, KeyEmail)
	}
	if strings.TrimSpace(creds.Password) == "" {
		missing = append(missing, KeyPassword)
	}
	if len(missing) > 0 {
		return Credentials{}, errs.New(errs.Configuration,
			"missing credentials: set "+strings.Join(missing, " and ")+" in the environment or .env file")
	}
	return creds, nil
}
