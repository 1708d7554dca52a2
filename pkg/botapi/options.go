package botapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"whatsbot/internal/metrics"
	"whatsbot/pkg/circuitbreaker"
)

// Option mutates the Client during New.
type Option func(*Client) error

// WithHTTPClient injects a custom *http.Client, e.g. one with a tuned transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("nil http client")
		}
		c.http = hc
		return nil
	}
}

// WithLogger sets the logger used for request logging.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return fmt.Errorf("nil logger")
		}
		c.logger = logger
		return nil
	}
}

// WithTimeout sets the per-request timeout of the underlying HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		c.http.Timeout = d
		return nil
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// WithMetrics records request counters and latencies in reg instead of the
// global registry.
func WithMetrics(reg *metrics.Registry) Option {
	return func(c *Client) error {
		if reg == nil {
			return fmt.Errorf("nil metrics registry")
		}
		c.metrics = reg
		return nil
	}
}

// WithVerboseLogging logs unmasked phone numbers and message bodies.
func WithVerboseLogging(verbose bool) Option {
	return func(c *Client) error {
		c.verbose = verbose
		return nil
	}
}

// WithCircuitBreaker routes every request through cb, so a backend that keeps
// failing is left alone until the cooldown passes.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *Client) error {
		c.breaker = cb
		return nil
	}
}
