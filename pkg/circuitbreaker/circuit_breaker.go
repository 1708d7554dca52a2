// Package circuitbreaker stops calling the bot backend after repeated
// transient failures and tries it again after a cooldown.
package circuitbreaker

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"whatsbot/internal/errors"
	"whatsbot/internal/metrics"
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Defaults used when New is given no options.
const (
	DefaultMaxFailures      = 5
	DefaultCooldown         = 30 * time.Second
	DefaultHalfOpenMaxCalls = 3
)

// ErrOpen is the cause of every error returned while the breaker rejects calls.
var ErrOpen = stderrors.New("circuit breaker is open")

// CircuitBreaker guards calls to one upstream. Only retryable failures
// (network errors, 5xx, 429) count against it; a 4xx answer shows the
// upstream is alive and counts as a success.
type CircuitBreaker struct {
	name             string
	maxFailures      int
	cooldown         time.Duration
	halfOpenMaxCalls int
	now              func() time.Time
	logger           *logrus.Logger
	metrics          *metrics.Registry

	mu              sync.Mutex
	state           State
	failures        int
	lastFailureTime time.Time
	halfOpenCalls   int
	successCount    int
	requestCount    int
	rejectedCount   int
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithMaxFailures sets how many consecutive failures open the breaker.
func WithMaxFailures(n int) Option {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.maxFailures = n
		}
	}
}

// WithCooldown sets how long the breaker stays open before probing.
func WithCooldown(d time.Duration) Option {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.cooldown = d
		}
	}
}

// WithHalfOpenMaxCalls sets how many trial calls must succeed to close again.
func WithHalfOpenMaxCalls(n int) Option {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.halfOpenMaxCalls = n
		}
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(cb *CircuitBreaker) {
		if logger != nil {
			cb.logger = logger
		}
	}
}

// WithMetrics publishes the state as a gauge in reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(cb *CircuitBreaker) {
		cb.metrics = reg
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

// New returns a closed breaker named name.
func New(name string, opts ...Option) *CircuitBreaker {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	cb := &CircuitBreaker{
		name:             name,
		maxFailures:      DefaultMaxFailures,
		cooldown:         DefaultCooldown,
		halfOpenMaxCalls: DefaultHalfOpenMaxCalls,
		now:              time.Now,
		logger:           logger,
		state:            StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	cb.publish()
	return cb
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs fn unless the breaker is open. A rejected call returns a
// retryable NETWORK AppError wrapping ErrOpen without calling fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allowRequest() {
		return errors.WrapRetryable(ErrOpen, errors.ErrCodeNetwork, fmt.Sprintf("backend %s unavailable", cb.name)).
			WithContext("circuit_breaker", cb.name).
			WithUserMessage("The backend is unavailable, please try again")
	}

	err := fn(ctx)
	switch {
	case err == nil:
		cb.onSuccess()
	case ctx.Err() != nil && stderrors.Is(err, ctx.Err()):
		cb.release()
	case errors.IsRetryable(err):
		cb.onFailure()
	default:
		cb.onSuccess()
	}
	return err
}

// allowRequest admits a call, moving an expired open breaker to half-open.
func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advance()
	switch cb.state {
	case StateClosed:
		cb.requestCount++
		return true
	case StateHalfOpen:
		if cb.halfOpenCalls < cb.halfOpenMaxCalls {
			cb.halfOpenCalls++
			cb.requestCount++
			return true
		}
	}
	cb.rejectedCount++
	return false
}

// advance must be called with mu held.
func (cb *CircuitBreaker) advance() {
	if cb.state != StateOpen || cb.now().Sub(cb.lastFailureTime) < cb.cooldown {
		return
	}
	cb.state = StateHalfOpen
	cb.halfOpenCalls = 0
	cb.successCount = 0
	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"state":           StateHalfOpen.String(),
	}).Info("Circuit breaker probing backend")
	cb.publish()
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.halfOpenMaxCalls {
			cb.reset()
			cb.logger.WithFields(logrus.Fields{
				"circuit_breaker": cb.name,
				"state":           StateClosed.String(),
			}).Info("Circuit breaker closed after successful recovery")
		}
	case StateClosed:
		cb.failures = 0
		cb.successCount++
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.maxFailures {
			cb.trip()
		}
	case StateHalfOpen:
		cb.trip()
	}
}

// release gives back a half-open slot taken by a call that was cancelled.
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen && cb.halfOpenCalls > 0 {
		cb.halfOpenCalls--
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"failures":        cb.failures,
		"cooldown":        cb.cooldown.String(),
		"state":           StateOpen.String(),
	}).Warn("Circuit breaker opened due to failures")
	cb.publish()
}

func (cb *CircuitBreaker) reset() {
	cb.state = StateClosed
	cb.failures = 0
	cb.successCount = 0
	cb.halfOpenCalls = 0
	cb.publish()
}

func (cb *CircuitBreaker) publish() {
	if cb.metrics == nil {
		return
	}
	cb.metrics.SetGauge(metrics.CircuitState, float64(cb.state),
		map[string]string{"breaker": cb.name}, "Circuit breaker state (0 closed, 1 open, 2 half-open)")
}

// GetState returns the current state, accounting for an elapsed cooldown.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance()
	return cb.state
}

// Stats is a point-in-time view of a breaker.
type Stats struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	Failures        int       `json:"failures"`
	Requests        int       `json:"requests"`
	Rejected        int       `json:"rejected"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
}

func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance()

	return Stats{
		Name:            cb.name,
		State:           cb.state.String(),
		Failures:        cb.failures,
		Requests:        cb.requestCount,
		Rejected:        cb.rejectedCount,
		LastFailureTime: cb.lastFailureTime,
	}
}

// IsOpen reports whether err was returned because the breaker rejected the call.
func IsOpen(err error) bool {
	return stderrors.Is(err, ErrOpen)
}
