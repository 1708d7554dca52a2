package integration

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsbot/internal/dashboard"
	"whatsbot/internal/errors"
	"whatsbot/internal/metrics"
	"whatsbot/internal/models"
	"whatsbot/internal/query"
	"whatsbot/pkg/botapi"
)

var dashboardRoutes = []string{"/api/analytics", "/api/contacts", "/api/training-data", "/api/ai-config"}

func TestDashboardSnapshotOverHTTP(t *testing.T) {
	env := NewTestEnvironment(t)
	ctx := env.Context()

	snap := env.Service.Snapshot(ctx)

	assert.Nil(t, snap.Stats.Error)
	assert.Nil(t, snap.Recent.Error)
	assert.Nil(t, snap.Training.Error)
	assert.Nil(t, snap.AI.Error)
	assert.Len(t, snap.Stats.Data, 4)
	assert.Len(t, snap.Activity.Data.Points, 7)
	assert.Len(t, snap.Recent.Data.Rows, 2)
	assert.Equal(t, 1, snap.Training.Data.Total)
	assert.True(t, snap.AI.Data.Configured)

	for _, route := range dashboardRoutes {
		assert.Equal(t, 1, env.Fake.Requests(route), route)
	}

	env.Service.Snapshot(ctx)
	for _, route := range dashboardRoutes {
		assert.Equal(t, 1, env.Fake.Requests(route), "%s is fresh and served from the cache", route)
	}
	assert.Equal(t, float64(1), env.Registry.CounterValue(metrics.QueryHits, map[string]string{"resource": dashboard.ResourceAnalytics}))
}

func TestConcurrentSnapshotsShareOneFetch(t *testing.T) {
	env := NewTestEnvironment(t)
	env.Fake.SetDelay(50 * time.Millisecond)
	ctx := env.Context()

	var wg sync.WaitGroup
	snaps := make([]dashboard.Snapshot, 8)
	for i := range snaps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snaps[i] = env.Service.Snapshot(ctx)
		}(i)
	}
	wg.Wait()

	for _, snap := range snaps {
		assert.Nil(t, snap.Stats.Error)
		assert.Len(t, snap.Stats.Data, 4)
	}
	assert.Equal(t, 1, env.Fake.Requests("/api/analytics"))
	assert.Equal(t, 1, env.Fake.Requests("/api/contacts"))
}

func TestMutationRefreshesContacts(t *testing.T) {
	env := NewTestEnvironment(t)
	ctx := env.Context()

	rows, err := env.Service.Contacts(ctx, botapi.StatusPaused)
	require.NoError(t, err)
	assert.Empty(t, rows)
	env.Service.Snapshot(ctx)

	paused := botapi.StatusPaused
	contact, err := env.Service.UpdateContact(ctx, "1", botapi.ContactUpdate{Status: &paused})
	require.NoError(t, err)
	assert.Equal(t, botapi.StatusPaused, contact.Status)
	assert.Equal(t, 1, env.Fake.Requests("/api/contacts/{id}"))

	state, ok := env.Cache.Get(dashboard.RecentContactsKey)
	require.True(t, ok)
	assert.True(t, state.Stale, "mutation marks contact queries stale")

	// Stale data is served at once while the refetch runs.
	stale := env.Service.Snapshot(ctx)
	assert.Len(t, stale.Recent.Data.Rows, 2)
	require.Eventually(t, func() bool {
		st, _ := env.Cache.Get(dashboard.RecentContactsKey)
		return !st.Stale
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		rows, err = env.Service.Contacts(ctx, botapi.StatusPaused)
		return err == nil && len(rows) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Juan Pérez", rows[0].Name)
}

func TestSubscriptionRefetchesOnInvalidation(t *testing.T) {
	env := NewTestEnvironment(t)

	subs, err := env.Service.Subscribe(dashboard.Intervals{
		Analytics:      time.Hour,
		LiveRefresh:    time.Hour,
		RecentContacts: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, s := range subs {
			s.Stop()
		}
	})

	var recent *query.Subscription
	for _, s := range subs {
		if s.Key().String() == dashboard.RecentContactsKey.String() {
			recent = s
		}
	}
	require.NotNil(t, recent)

	first := <-recent.Updates()
	require.NoError(t, first.Err)
	contacts, ok := query.Value[[]botapi.Contact](first)
	require.True(t, ok)
	require.Len(t, contacts, 2)
	before := map[string]int{}
	for _, c := range contacts {
		before[c.ID] = c.MessageCount
	}

	result, err := env.Service.Broadcast(env.Context(), []string{"1", "2"}, "Clase especial el sábado")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Successful)

	select {
	case u := <-recent.Updates():
		require.NoError(t, u.Err)
		contacts, _ = query.Value[[]botapi.Contact](u)
		for _, c := range contacts {
			assert.Equal(t, before[c.ID]+1, c.MessageCount, c.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("observed query was not refetched after the broadcast")
	}
	assert.Equal(t, 2, env.Fake.Requests("/api/contacts"))
}

func TestBroadcastPartialFailure(t *testing.T) {
	env := NewTestEnvironment(t)

	result, err := env.Service.Broadcast(env.Context(), []string{"1", "99"}, "Nueva clase el lunes")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "99")
}

func TestSendMessageShowsInHistory(t *testing.T) {
	env := NewTestEnvironment(t)
	ctx := env.Context()

	require.NoError(t, env.Service.SendMessage(ctx, "2", "Te esperamos mañana"))

	messages, err := env.Backend.ListMessages(ctx, "2", 1)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "Te esperamos mañana", messages[0].Content)
	assert.Equal(t, botapi.DirectionOutgoing, messages[0].Direction)
}

func TestUnknownContactIsNotRetried(t *testing.T) {
	env := NewTestEnvironment(t, WithRetries(3), func(c *models.Config) { c.Query.MutationRetryCount = 3 })

	active := botapi.StatusActive
	_, err := env.Service.UpdateContact(env.Context(), "99", botapi.ContactUpdate{Status: &active})
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, errors.StatusCode(err))
	assert.Equal(t, "Contacto no encontrado", errors.GetUserMessage(err))
	assert.Equal(t, 1, env.Fake.Requests("/api/contacts/{id}"))
}
