// Package retry runs backend operations again after transient failures,
// waiting an exponentially growing delay between attempts.
package retry

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"whatsbot/internal/constants"
	"whatsbot/internal/errors"
)

// BackoffConfig describes a retry policy. MaxAttempts counts the first call.
type BackoffConfig struct {
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
	MaxAttempts  int           `json:"max_attempts"`
	Jitter       bool          `json:"jitter"`
}

// DefaultBackoffConfig is the read policy: three retries waiting 1s, 2s, 4s,
// never more than 30s.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: constants.DefaultRetryBaseDelay,
		MaxDelay:     constants.DefaultRetryMaxDelay,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultQueryRetries + 1,
	}
}

// MutationBackoffConfig is the write policy: one retry.
func MutationBackoffConfig() BackoffConfig {
	cfg := DefaultBackoffConfig()
	cfg.MaxAttempts = constants.DefaultMutationRetries + 1
	return cfg
}

// NotifyFunc observes a failed attempt just before the wait that follows it.
type NotifyFunc func(attempt int, err error, delay time.Duration)

type Backoff struct {
	config BackoffConfig
	notify NotifyFunc
}

// NewBackoff normalizes config so that at least one attempt is made and delays
// never shrink.
func NewBackoff(config BackoffConfig) *Backoff {
	config.MaxAttempts = max(config.MaxAttempts, 1)
	config.Multiplier = max(config.Multiplier, 1)
	if config.MaxDelay < config.InitialDelay {
		config.MaxDelay = config.InitialDelay
	}
	return &Backoff{config: config}
}

func (b *Backoff) WithNotify(fn NotifyFunc) *Backoff {
	b.notify = fn
	return b
}

func (b *Backoff) Config() BackoffConfig {
	return b.config
}

// Retry retries every error.
func (b *Backoff) Retry(ctx context.Context, operation func() error) error {
	return b.RetryWithPredicate(ctx, operation, func(error) bool { return true })
}

// RetryWithPredicate calls operation until it succeeds, fails with an error
// isRetryable rejects, runs out of attempts or ctx ends. The last operation
// error is returned, or ctx.Err() when the context ended first.
func (b *Backoff) RetryWithPredicate(ctx context.Context, operation func() error, isRetryable func(error) bool) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation()
		if err == nil || !isRetryable(err) || attempt >= b.config.MaxAttempts {
			return err
		}

		delay := b.Delay(attempt)
		if b.notify != nil {
			b.notify(attempt, err, delay)
		}
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
	}
}

// Delay is the wait after the given failed attempt (1-based):
// InitialDelay * Multiplier^(attempt-1), capped at MaxDelay. With jitter the
// value moves up to 25% either way and stays within [InitialDelay, MaxDelay].
func (b *Backoff) Delay(attempt int) time.Duration {
	c := b.config
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(max(attempt-1, 0)))
	d = math.Min(d, float64(c.MaxDelay))

	if c.Jitter {
		d += d * 0.25 * (2*rand.Float64() - 1)
		d = math.Max(float64(c.InitialDelay), math.Min(d, float64(c.MaxDelay)))
	}
	return time.Duration(d)
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// IsRetryableError is the default predicate for backend calls. 4xx answers
// other than 408 and 429 are final, as are validation and decode failures.
// An AppError flagged retryable is retried even when it wraps a deadline,
// which is how the HTTP client reports its own timeout. Bare context errors
// mean the caller gave up and are final. Everything else is retried.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if status := errors.StatusCode(err); status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		return errors.IsRetryableStatus(status)
	}
	if appErr, ok := errors.As(err); ok {
		switch appErr.Code {
		case errors.ErrCodeValidationFailed, errors.ErrCodeInvalidInput, errors.ErrCodeDecode:
			return false
		}
		if appErr.Retryable {
			return true
		}
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
