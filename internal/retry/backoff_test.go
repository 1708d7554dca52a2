package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("connection reset")

func fastConfig(attempts int) BackoffConfig {
	return BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  attempts,
	}
}

// failing returns an operation that fails n times before succeeding.
func failing(n int, calls *int) func() error {
	return func() error {
		*calls++
		if *calls <= n {
			return errTransient
		}
		return nil
	}
}

func TestPolicies(t *testing.T) {
	read := DefaultBackoffConfig()
	assert.Equal(t, time.Second, read.InitialDelay)
	assert.Equal(t, 30*time.Second, read.MaxDelay)
	assert.Equal(t, 2.0, read.Multiplier)
	assert.Equal(t, 4, read.MaxAttempts)
	assert.False(t, read.Jitter)

	write := MutationBackoffConfig()
	assert.Equal(t, 2, write.MaxAttempts)
	assert.Equal(t, read.InitialDelay, write.InitialDelay)
}

func TestNewBackoff_Normalizes(t *testing.T) {
	b := NewBackoff(BackoffConfig{InitialDelay: time.Second, MaxDelay: time.Millisecond})
	cfg := b.Config()
	assert.Equal(t, 1, cfg.MaxAttempts)
	assert.Equal(t, 1.0, cfg.Multiplier)
	assert.Equal(t, time.Second, cfg.MaxDelay)
}

func TestDelay_Schedule(t *testing.T) {
	b := NewBackoff(DefaultBackoffConfig())

	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	for i, d := range want {
		assert.Equal(t, d, b.Delay(i+1), "attempt %d", i+1)
	}
	assert.Equal(t, time.Second, b.Delay(0))
}

func TestDelay_JitterStaysInBounds(t *testing.T) {
	cfg := DefaultBackoffConfig()
	cfg.Jitter = true
	b := NewBackoff(cfg)

	distinct := map[time.Duration]bool{}
	for i := 0; i < 50; i++ {
		d := b.Delay(3)
		assert.GreaterOrEqual(t, d, 3*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
		distinct[d] = true
	}
	assert.Greater(t, len(distinct), 1, "jitter should vary the delay")

	for i := 0; i < 20; i++ {
		assert.LessOrEqual(t, b.Delay(10), cfg.MaxDelay)
		assert.GreaterOrEqual(t, b.Delay(1), cfg.InitialDelay)
	}
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		attempts  int
		wantErr   bool
		wantCalls int
	}{
		{"first attempt succeeds", 0, 3, false, 1},
		{"succeeds after retries", 2, 3, false, 3},
		{"gives up after max attempts", 5, 3, true, 3},
		{"single attempt", 1, 1, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := NewBackoff(fastConfig(tt.attempts)).Retry(context.Background(), failing(tt.failures, &calls))
			if tt.wantErr {
				assert.ErrorIs(t, err, errTransient)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestRetryWithPredicate_StopsOnFinalError(t *testing.T) {
	final := errors.New("bad request")
	calls := 0

	err := NewBackoff(fastConfig(5)).RetryWithPredicate(context.Background(), func() error {
		calls++
		return final
	}, func(err error) bool { return !errors.Is(err, final) })

	assert.ErrorIs(t, err, final)
	assert.Equal(t, 1, calls)
}

func TestRetry_NotifiesBeforeEachWait(t *testing.T) {
	type notice struct {
		attempt int
		delay   time.Duration
	}
	var notices []notice

	calls := 0
	b := NewBackoff(fastConfig(4)).WithNotify(func(attempt int, err error, delay time.Duration) {
		assert.ErrorIs(t, err, errTransient)
		notices = append(notices, notice{attempt, delay})
	})
	require.NoError(t, b.Retry(context.Background(), failing(3, &calls)))

	assert.Equal(t, []notice{
		{1, time.Millisecond},
		{2, 2 * time.Millisecond},
		{3, 4 * time.Millisecond},
	}, notices)
}

func TestRetry_ContextCancelledDuringWait(t *testing.T) {
	cfg := fastConfig(5)
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	b := NewBackoff(cfg).WithNotify(func(int, error, time.Duration) { cancel() })

	start := time.Now()
	err := b.Retry(ctx, failing(10, &calls))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetry_ContextAlreadyDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := NewBackoff(fastConfig(3)).Retry(ctx, failing(0, &calls))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
