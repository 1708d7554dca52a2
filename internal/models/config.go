package models

// Backend modes.
const (
	ModeOnline  = "online"
	ModeOffline = "offline"
)

// Config holds the application configuration
type Config struct {
	Mode        string            `json:"mode"`
	API         APIConfig         `json:"api"`
	Query       QueryConfig       `json:"query"`
	Dashboard   DashboardConfig   `json:"dashboard"`
	Server      ServerConfig      `json:"server"`
	Preferences PreferencesConfig `json:"preferences"`
	Tracing     TracingConfig     `json:"tracing"`
	Locale      string            `json:"locale"`
	LogLevel    string            `json:"log_level"`
}

// Offline reports whether the fixture backend is selected.
func (c *Config) Offline() bool {
	return c.Mode == ModeOffline
}

// APIConfig holds bot backend client settings
type APIConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSec     int    `json:"timeout_sec"`
	UserAgent      string `json:"user_agent"`
	VerboseLogging bool   `json:"verbose_logging"`
	// CircuitMaxFailures < 0 disables the circuit breaker.
	CircuitMaxFailures int `json:"circuit_max_failures"`
	CircuitCooldownSec int `json:"circuit_cooldown_sec"`
}

// QueryConfig holds cache and retry settings
type QueryConfig struct {
	StaleTimeSec       int `json:"stale_time_sec"`
	GCTimeSec          int `json:"gc_time_sec"`
	GCIntervalSec      int `json:"gc_interval_sec"`
	RetryCount         int `json:"retry_count"`
	MutationRetryCount int `json:"mutation_retry_count"`
	RetryBaseDelayMs   int `json:"retry_base_delay_ms"`
	RetryMaxDelayMs    int `json:"retry_max_delay_ms"`
}

// DashboardConfig holds polling intervals
type DashboardConfig struct {
	AnalyticsIntervalSec      int `json:"analytics_interval_sec"`
	LiveRefreshIntervalSec    int `json:"live_refresh_interval_sec"`
	RecentContactsIntervalSec int `json:"recent_contacts_interval_sec"`
}

// ServerConfig holds dashboard server settings
type ServerConfig struct {
	Port               int `json:"port"`
	ReadTimeoutSec     int `json:"read_timeout_sec"`
	WriteTimeoutSec    int `json:"write_timeout_sec"`
	IdleTimeoutSec     int `json:"idle_timeout_sec"`
	ShutdownTimeoutSec int `json:"shutdown_timeout_sec"`
	ConfigReloadSec    int `json:"config_reload_sec"`
	WebsocketMaxPeers  int `json:"websocket_max_peers"`
}

// PreferencesConfig holds the local settings store location
type PreferencesConfig struct {
	Path string `json:"path"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `json:"enabled"`
	ServiceName string  `json:"service_name"`
	Endpoint    string  `json:"endpoint"`
	SampleRate  float64 `json:"sample_rate"`
	UseStdout   bool    `json:"use_stdout"`
	Environment string  `json:"environment"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
