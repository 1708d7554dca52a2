package query

import (
	"time"

	"github.com/sirupsen/logrus"

	"whatsbot/internal/metrics"
	"whatsbot/internal/retry"
)

// Option configures a Cache.
type Option func(*Cache)

// WithStaleTime sets how long a fetched value counts as fresh.
func WithStaleTime(d time.Duration) Option {
	return func(c *Cache) {
		if d >= 0 {
			c.staleTime = d
		}
	}
}

// WithGCTime sets how long an unobserved entry survives without access.
func WithGCTime(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.gcTime = d
		}
	}
}

// WithGCInterval sets how often idle entries are collected. Zero disables
// the background loop; CollectGarbage can still be called directly.
func WithGCInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d >= 0 {
			c.gcInterval = d
		}
	}
}

// WithQueryRetry sets the backoff policy of reads.
func WithQueryRetry(cfg retry.BackoffConfig) Option {
	return func(c *Cache) {
		c.queryRetry = cfg
	}
}

// WithMutationRetry sets the backoff policy of writes.
func WithMutationRetry(cfg retry.BackoffConfig) Option {
	return func(c *Cache) {
		c.mutationRetry = cfg
	}
}

// WithRetryPredicate replaces retry.IsRetryableError as the retry decision.
func WithRetryPredicate(fn func(error) bool) Option {
	return func(c *Cache) {
		if fn != nil {
			c.isRetryable = fn
		}
	}
}

// WithClock overrides the clock used for staleness and idle eviction.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(reg *metrics.Registry) Option {
	return func(c *Cache) {
		if reg != nil {
			c.metrics = reg
		}
	}
}
