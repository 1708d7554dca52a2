package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsbot/internal/dashboard"
	"whatsbot/internal/errors"
	"whatsbot/internal/metrics"
	"whatsbot/pkg/botapi"
	"whatsbot/pkg/circuitbreaker"
)

func TestQueryRetriesTransientFailures(t *testing.T) {
	env := NewTestEnvironment(t, WithRetries(3))
	env.Fake.FailNext("/api/analytics", http.StatusServiceUnavailable, http.StatusBadGateway)

	data, err := env.Service.Analytics(env.Context())
	require.NoError(t, err)
	assert.Equal(t, 42, data.TotalContacts)
	assert.Equal(t, 3, env.Fake.Requests("/api/analytics"))

	labels := map[string]string{"resource": dashboard.ResourceAnalytics}
	assert.Equal(t, float64(2), env.Registry.CounterValue(metrics.QueryRetries, labels))
	assert.Zero(t, env.Registry.CounterValue(metrics.QueryFetchErrors, labels))
}

func TestQueryGivesUpAfterRetries(t *testing.T) {
	env := NewTestEnvironment(t, WithRetries(1))
	env.Fake.FailNext("/api/analytics", http.StatusInternalServerError, http.StatusInternalServerError)

	_, err := env.Service.Analytics(env.Context())
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, errors.StatusCode(err))
	assert.Equal(t, 2, env.Fake.Requests("/api/analytics"))

	state, ok := env.Cache.Get(dashboard.AnalyticsKey)
	require.True(t, ok)
	assert.False(t, state.HasValue)
	assert.Error(t, state.Err)
}

func TestFailingSourceOnlyAffectsItsPanels(t *testing.T) {
	env := NewTestEnvironment(t)
	env.Fake.FailNext("/api/training-data", http.StatusInternalServerError)

	snap := env.Service.Snapshot(env.Context())

	require.NotNil(t, snap.Training.Error)
	assert.True(t, snap.Training.Error.Retryable)
	assert.NotEmpty(t, snap.Training.Error.Message)
	assert.Nil(t, snap.Stats.Error)
	assert.Nil(t, snap.Recent.Error)
	assert.Nil(t, snap.AI.Error)
	assert.Len(t, snap.Stats.Data, 4)

	// A refresh recovers the failed panel.
	env.Service.Refresh()
	snap = env.Service.Snapshot(env.Context())
	assert.Nil(t, snap.Training.Error)
	assert.Equal(t, 1, snap.Training.Data.Total)
}

func TestCircuitBreakerShieldsBackend(t *testing.T) {
	env := NewTestEnvironment(t, WithCircuit(2, 60))
	env.Fake.FailNext("/api/analytics", http.StatusBadGateway, http.StatusBadGateway)
	ctx := env.Context()

	for i := 0; i < 2; i++ {
		_, err := env.Backend.GetAnalytics(ctx)
		assert.Equal(t, http.StatusBadGateway, errors.StatusCode(err))
	}

	_, err := env.Backend.Health(ctx)
	require.Error(t, err)
	assert.True(t, circuitbreaker.IsOpen(err), "the breaker covers every endpoint of the backend")

	snap := env.Service.Snapshot(ctx)
	require.NotNil(t, snap.Stats.Error)
	assert.True(t, snap.Stats.Error.Retryable)
	require.NotNil(t, snap.Recent.Error)

	assert.Equal(t, 2, env.Fake.Requests("/api/analytics"))
	assert.Zero(t, env.Fake.Requests("/health"))
	assert.Zero(t, env.Fake.Requests("/api/contacts"))

	stats, ok := env.Backend.(*botapi.Client).CircuitStats()
	require.True(t, ok)
	assert.Equal(t, "OPEN", stats.State)
	assert.Equal(t, float64(circuitbreaker.StateOpen),
		env.Registry.GaugeValue(metrics.CircuitState, map[string]string{"breaker": "bot-api"}))
}

func TestCircuitBreakerIgnoresClientErrors(t *testing.T) {
	env := NewTestEnvironment(t, WithCircuit(1, 60))
	ctx := env.Context()

	for i := 0; i < 3; i++ {
		_, err := env.Backend.GetContact(ctx, "99")
		assert.True(t, errors.IsNotFound(err))
	}

	status, err := env.Backend.Health(ctx)
	require.NoError(t, err)
	assert.True(t, status.Healthy())
}
