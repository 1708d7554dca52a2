package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"whatsbot/internal/constants"
	"whatsbot/internal/models"
	"whatsbot/internal/retry"
	"whatsbot/internal/security"
	"whatsbot/internal/tracing"
)

var (
	ErrMissingAPIURL    = models.ConfigError{Message: "missing backend API URL"}
	ErrMissingPrefsPath = models.ConfigError{Message: "missing preferences path"}
)

// Environment variables read by applyEnvironmentOverrides.
const (
	EnvAPIURL         = "BOTADMIN_API_URL"
	EnvLegacyAPIURL   = "API_URL"
	EnvPrefsPath      = "BOTADMIN_PREFS_PATH"
	EnvMode           = "BOTADMIN_MODE"
	EnvPort           = "PORT"
	EnvLogLevel       = "BOTADMIN_LOG_LEVEL"
	EnvLocale         = "BOTADMIN_LOCALE"
	EnvTracing        = "BOTADMIN_TRACING_ENABLED"
	EnvOTLPEndpoint   = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvVerboseLogging = "BOTADMIN_VERBOSE_LOGGING"
)

// Default returns the configuration used when no file is given.
func Default() *models.Config {
	c := &models.Config{}
	applyDefaults(c)
	return c
}

// LoadDotEnv loads variables from the given .env files, or ".env" when none
// are named. Missing files are skipped; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads path, or starts from Default when path is empty, then applies
// environment overrides and validates. Precedence is env > file > default.
func Load(path string) (*models.Config, error) {
	if path != "" {
		return LoadConfig(path)
	}
	c := Default()
	applyEnvironmentOverrides(c)
	if err := validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadConfig reads a JSON config file.
func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, models.ConfigError{Message: fmt.Sprintf("invalid config file %s: %v", path, err)}
	}

	applyDefaults(&config)
	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyDefaults(c *models.Config) {
	if c.Mode == "" {
		c.Mode = models.ModeOnline
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = constants.DefaultAPIURL
	}
	if c.API.TimeoutSec <= 0 {
		c.API.TimeoutSec = constants.DefaultHTTPTimeoutSec
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = constants.DefaultUserAgent
	}
	if c.API.CircuitMaxFailures == 0 {
		c.API.CircuitMaxFailures = constants.DefaultCircuitFailures
	}
	if c.API.CircuitCooldownSec <= 0 {
		c.API.CircuitCooldownSec = constants.DefaultCircuitCooldownSec
	}

	if c.Query.StaleTimeSec <= 0 {
		c.Query.StaleTimeSec = int(constants.DefaultStaleTime / time.Second)
	}
	if c.Query.GCTimeSec <= 0 {
		c.Query.GCTimeSec = int(constants.DefaultGCTime / time.Second)
	}
	if c.Query.GCIntervalSec <= 0 {
		c.Query.GCIntervalSec = int(constants.DefaultGCInterval / time.Second)
	}
	// Negative retry counts disable retries; zero means the default.
	if c.Query.RetryCount == 0 {
		c.Query.RetryCount = constants.DefaultQueryRetries
	}
	if c.Query.MutationRetryCount == 0 {
		c.Query.MutationRetryCount = constants.DefaultMutationRetries
	}
	if c.Query.RetryBaseDelayMs <= 0 {
		c.Query.RetryBaseDelayMs = int(constants.DefaultRetryBaseDelay / time.Millisecond)
	}
	if c.Query.RetryMaxDelayMs <= 0 {
		c.Query.RetryMaxDelayMs = int(constants.DefaultRetryMaxDelay / time.Millisecond)
	}

	if c.Dashboard.AnalyticsIntervalSec <= 0 {
		c.Dashboard.AnalyticsIntervalSec = int(constants.AnalyticsRefetchInterval / time.Second)
	}
	if c.Dashboard.LiveRefreshIntervalSec <= 0 {
		c.Dashboard.LiveRefreshIntervalSec = int(constants.AnalyticsLiveRefreshInterval / time.Second)
	}
	if c.Dashboard.RecentContactsIntervalSec <= 0 {
		c.Dashboard.RecentContactsIntervalSec = int(constants.RecentContactsRefetchInterval / time.Second)
	}

	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.Server.ShutdownTimeoutSec <= 0 {
		c.Server.ShutdownTimeoutSec = constants.DefaultGracefulShutdownSec
	}
	if c.Server.ConfigReloadSec <= 0 {
		c.Server.ConfigReloadSec = constants.DefaultConfigReloadSec
	}
	if c.Server.WebsocketMaxPeers <= 0 {
		c.Server.WebsocketMaxPeers = constants.DefaultWebsocketMaxPeers
	}

	if c.Preferences.Path == "" {
		c.Preferences.Path = constants.DefaultPreferencesPath
	}

	defaults := tracing.DefaultTracingConfig()
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = defaults.ServiceName
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = defaults.OTLPEndpoint
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = defaults.SampleRate
	}
	if c.Tracing.Environment == "" {
		c.Tracing.Environment = defaults.Environment
	}

	if c.Locale == "" {
		c.Locale = constants.DefaultLocale
	}
	if c.LogLevel == "" {
		c.LogLevel = constants.DefaultLogLevel
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if u := strings.TrimSpace(os.Getenv(EnvAPIURL)); u != "" {
		c.API.BaseURL = u
	} else if u := strings.TrimSpace(os.Getenv(EnvLegacyAPIURL)); u != "" {
		c.API.BaseURL = u
	}

	if path := os.Getenv(EnvPrefsPath); path != "" {
		c.Preferences.Path = path
	}
	if mode := os.Getenv(EnvMode); mode != "" {
		c.Mode = strings.ToLower(strings.TrimSpace(mode))
	}
	if port := os.Getenv(EnvPort); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		} else {
			// Surfaced by validate as an out-of-range port.
			c.Server.Port = -1
		}
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.LogLevel = level
	}
	if locale := os.Getenv(EnvLocale); locale != "" {
		c.Locale = locale
	}
	if v := os.Getenv(EnvTracing); v != "" {
		c.Tracing.Enabled = v == "true" || v == "1"
	}
	if endpoint := os.Getenv(EnvOTLPEndpoint); endpoint != "" {
		c.Tracing.Endpoint = endpoint
	}
	if v := os.Getenv(EnvVerboseLogging); v != "" {
		c.API.VerboseLogging = v == "true" || v == "1"
	}
}

func validate(c *models.Config) error {
	switch c.Mode {
	case models.ModeOnline, models.ModeOffline:
	default:
		return models.ConfigError{Message: fmt.Sprintf("invalid mode %q: must be %q or %q", c.Mode, models.ModeOnline, models.ModeOffline)}
	}

	if c.API.BaseURL == "" {
		return ErrMissingAPIURL
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.ConfigError{Message: fmt.Sprintf("invalid backend API URL %q", c.API.BaseURL)}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return models.ConfigError{Message: fmt.Sprintf("invalid server port %d", c.Server.Port)}
	}

	if c.Preferences.Path == "" {
		return ErrMissingPrefsPath
	}
	if err := security.ValidateFilePath(c.Preferences.Path); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid preferences path: %v", err)}
	}

	if c.Query.RetryMaxDelayMs < c.Query.RetryBaseDelayMs {
		return models.ConfigError{Message: "retry_max_delay_ms must not be smaller than retry_base_delay_ms"}
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid log level %q", c.LogLevel)}
	}

	if err := TracingConfig(c).Validate(); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid tracing config: %v", err)}
	}
	return nil
}

// QueryRetry converts the query retry settings into a backoff policy.
func QueryRetry(c *models.Config) retry.BackoffConfig {
	return backoffFor(c, c.Query.RetryCount)
}

// MutationRetry converts the mutation retry settings into a backoff policy.
func MutationRetry(c *models.Config) retry.BackoffConfig {
	return backoffFor(c, c.Query.MutationRetryCount)
}

func backoffFor(c *models.Config, retries int) retry.BackoffConfig {
	if retries < 0 {
		retries = 0
	}
	return retry.BackoffConfig{
		InitialDelay: time.Duration(c.Query.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:     time.Duration(c.Query.RetryMaxDelayMs) * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  retries + 1,
	}
}

// TracingConfig converts the tracing section for the tracing package.
func TracingConfig(c *models.Config) tracing.TracingConfig {
	cfg := tracing.DefaultTracingConfig()
	cfg.Enabled = c.Tracing.Enabled
	cfg.ServiceName = c.Tracing.ServiceName
	cfg.OTLPEndpoint = c.Tracing.Endpoint
	cfg.SampleRate = c.Tracing.SampleRate
	cfg.UseStdout = c.Tracing.UseStdout
	cfg.Environment = c.Tracing.Environment
	return cfg
}

// Seconds converts a config value in seconds into a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
