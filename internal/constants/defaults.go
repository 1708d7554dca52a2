package constants

import "time"

// Backend defaults
const (
	DefaultAPIURL         = "http://localhost:8000"
	DefaultHTTPTimeoutSec = 30
	DefaultUserAgent      = "whatsbot-admin"
	DefaultMessagesLimit  = 50
	DefaultPageLimit      = 100
	RequestIDHeader       = "X-Request-ID"
	DefaultCircuitFailures    = 5
	DefaultCircuitCooldownSec = 30
)

// Query cache defaults
const (
	DefaultStaleTime       = time.Minute
	DefaultGCTime          = 10 * time.Minute
	DefaultGCInterval      = time.Minute
	DefaultQueryRetries    = 3
	DefaultMutationRetries = 1
	DefaultRetryBaseDelay  = time.Second
	DefaultRetryMaxDelay   = 30 * time.Second
)

// Dashboard polling intervals
const (
	AnalyticsRefetchInterval      = 30 * time.Second
	AnalyticsLiveRefreshInterval  = 15 * time.Second
	RecentContactsRefetchInterval = time.Minute
	RecentContactsLimit           = 5
	TopContactsLimit              = 5
	ActivityChartDays             = 7
)

// Dashboard server defaults
const (
	DefaultServerPort            = 8090
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultPreferencesPath       = "botadmin.db"
	DefaultWebsocketWriteTimeout = 10 * time.Second
	DefaultWebsocketMaxPeers     = 64
	DefaultConfigReloadSec       = 5
	DefaultLogLevel              = "info"
	DefaultLocale                = "es-ES"
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
)
