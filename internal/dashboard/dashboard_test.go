package dashboard

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsbot/internal/errors"
	"whatsbot/internal/metrics"
	"whatsbot/internal/query"
	"whatsbot/internal/retry"
	"whatsbot/pkg/botapi"
	"whatsbot/pkg/botapi/offline"
	"whatsbot/pkg/format"
)

var fixedNow = time.Date(2024, time.January, 21, 18, 0, 0, 0, time.UTC)

func fixture(t *testing.T) botapi.AnalyticsData {
	t.Helper()
	data, err := offline.New().GetAnalytics(context.Background())
	require.NoError(t, err)
	return *data
}

func TestBuildStatsGrid(t *testing.T) {
	cards := BuildStatsGrid(fixture(t))
	require.Len(t, cards, 4)

	assert.Equal(t, "Total Contactos", cards[0].Title)
	assert.Equal(t, "42", cards[0].Value)
	assert.Equal(t, "38 activos", cards[0].Detail)

	assert.Equal(t, "1247", cards[1].Value)
	assert.Equal(t, "892 de IA", cards[1].Detail)

	assert.Equal(t, "89,5 %", cards[2].Value)
	assert.Equal(t, "2.3s", cards[3].Value)
}

func TestBuildStatsGrid_GroupsLargeNumbers(t *testing.T) {
	cards := BuildStatsGrid(botapi.AnalyticsData{TotalMessages: 123456, AIResponses: 98765})
	assert.Equal(t, "123.456", cards[1].Value)
	assert.Equal(t, "98.765 de IA", cards[1].Detail)
	assert.Equal(t, "0s", cards[3].Value)
}

func TestBuildActivityChart_SevenDays(t *testing.T) {
	chart := BuildActivityChart(fixture(t).DailyStats)

	require.Len(t, chart.Points, 7)
	assert.False(t, chart.Empty)
	assert.Equal(t, 71, chart.Max)
	assert.Equal(t, "2024-01-15", chart.Points[0].Date)
	assert.Equal(t, "2024-01-21", chart.Points[6].Date)
	assert.Equal(t, "lun 15", chart.Points[0].Label)
	assert.Equal(t, "45 mensajes", chart.Points[0].Tooltip)
	assert.Equal(t, 100.0, chart.Points[6].HeightPercent)
	assert.InDelta(t, 45.0/71*100, chart.Points[0].HeightPercent, 1e-9)

	for i := 1; i < len(chart.Points); i++ {
		assert.Less(t, chart.Points[i-1].Date, chart.Points[i].Date)
	}
}

func TestBuildActivityChart_KeepsLastSevenDates(t *testing.T) {
	daily := map[string]int{}
	for day := 1; day <= 10; day++ {
		daily[time.Date(2024, time.March, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")] = day
	}

	chart := BuildActivityChart(daily)
	require.Len(t, chart.Points, 7)
	assert.Equal(t, "2024-03-04", chart.Points[0].Date)
	assert.Equal(t, "2024-03-10", chart.Points[6].Date)
	assert.Equal(t, 10, chart.Max)
}

func TestBuildActivityChart_ZeroAndEmpty(t *testing.T) {
	chart := BuildActivityChart(map[string]int{"2024-01-20": 0, "2024-01-21": 0})
	require.Len(t, chart.Points, 2)
	for _, p := range chart.Points {
		assert.Equal(t, 0.0, p.HeightPercent)
		assert.Equal(t, 2, p.MinHeightPx)
	}

	mixed := BuildActivityChart(map[string]int{"2024-01-20": 0, "2024-01-21": 3})
	assert.Equal(t, 2, mixed.Points[0].MinHeightPx)
	assert.Equal(t, 4, mixed.Points[1].MinHeightPx)

	empty := BuildActivityChart(nil)
	assert.True(t, empty.Empty)
	assert.Equal(t, "No hay datos disponibles", empty.Message)
	assert.Empty(t, empty.Points)
}

func TestBuildTopContacts(t *testing.T) {
	list := fixture(t).TopContacts
	list = append(list,
		botapi.TopContact{PhoneNumber: "whatsapp:+34600000001", MessageCount: 12},
		botapi.TopContact{Name: "Ana", PhoneNumber: "34600000002", MessageCount: 9},
		botapi.TopContact{Name: "Sexto", PhoneNumber: "+34600000003", MessageCount: 1},
	)

	panel := BuildTopContacts(list)
	require.Len(t, panel.Rows, 5)
	assert.Equal(t, TopContactRow{Rank: "#1", Name: "Juan Pérez", Phone: "+34123456789", Messages: "45 mensajes"}, panel.Rows[0])
	assert.Equal(t, "Sin nombre", panel.Rows[3].Name)
	assert.Equal(t, "+34600000001", panel.Rows[3].Phone)
	assert.Equal(t, "+34600000002", panel.Rows[4].Phone)

	empty := BuildTopContacts(nil)
	assert.True(t, empty.Empty)
	assert.Equal(t, "No hay contactos activos", empty.Message)
}

func TestBuildRecentContacts(t *testing.T) {
	list := []botapi.Contact{
		{ID: "1", Name: "juan", PhoneNumber: "+34123456789", Status: botapi.StatusActive, AIEnabled: true, MessageCount: 45, LastMessageAt: "2024-01-21T17:00:00Z"},
		{ID: "2", PhoneNumber: "whatsapp:+34987654321", Status: botapi.StatusPaused, MessageCount: 3, LastMessageAt: "2024-01-21T17:59:30Z"},
		{ID: "3", Name: "Sin mensajes", PhoneNumber: "+34555666777", Status: botapi.StatusActive},
	}

	panel := BuildRecentContacts(list, fixedNow)
	require.Len(t, panel.Rows, 2)

	first := panel.Rows[0]
	assert.Equal(t, "2", first.ID)
	assert.Equal(t, "U", first.Initial)
	assert.Equal(t, "Usuario sin nombre", first.Name)
	assert.Equal(t, "+34987654321", first.Phone)
	assert.Equal(t, format.ToneWarning, first.StatusTone)
	assert.Equal(t, "a few seconds ago", first.LastActivity)
	assert.Equal(t, "IA pausada", first.AILabel)

	second := panel.Rows[1]
	assert.Equal(t, "J", second.Initial)
	assert.Equal(t, "1 hour ago", second.LastActivity)
	assert.Equal(t, "45 mensajes", second.Messages)
	assert.Equal(t, "IA activa", second.AILabel)

	empty := BuildRecentContacts(list[2:], fixedNow)
	assert.True(t, empty.Empty)
	assert.Equal(t, "No hay actividad reciente", empty.Message)
}

func TestContactRow_NoActivity(t *testing.T) {
	row := ContactRow(botapi.Contact{ID: "9", Name: "Eva", Status: botapi.StatusBlocked}, fixedNow)
	assert.Equal(t, "Sin actividad", row.LastActivity)
	assert.Equal(t, format.ToneDanger, row.StatusTone)
}

func TestBuildAIStatus(t *testing.T) {
	none := BuildAIStatus(nil)
	assert.False(t, none.Configured)
	assert.Equal(t, "Sin configurar", none.StatusLabel)

	status := BuildAIStatus(&botapi.AIConfig{
		ResponseDelayMin: 2,
		ResponseDelayMax: 8,
		Temperature:      0.7,
		MaxTokens:        1500,
		SystemPrompt:     "  Eres Rubén, entrenador personal.  ",
		Enabled:          true,
	})
	assert.True(t, status.Configured)
	assert.Equal(t, "Activo", status.StatusLabel)
	assert.Equal(t, format.ToneSuccess, status.StatusTone)
	assert.Equal(t, "0,7", status.Temperature)
	assert.Equal(t, "1500", status.MaxTokens)
	assert.Equal(t, "2-8s", status.ResponseDelay)
	assert.Equal(t, "Eres Rubén, entrenador personal.", status.PromptPreview)

	disabled := BuildAIStatus(&botapi.AIConfig{})
	assert.Equal(t, "Inactivo", disabled.StatusLabel)
}

func TestBuildTrainingSummary(t *testing.T) {
	summary := BuildTrainingSummary([]botapi.TrainingData{
		{Category: "saludo", Active: true, WordCount: 45},
		{Category: "nutricion", Active: true, WordCount: 1200},
		{Category: "saludo", Active: false, WordCount: 10},
		{WordCount: 5},
	})

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Active)
	assert.Equal(t, "1260", summary.TotalWords)
	assert.Equal(t, []CategoryCount{
		{Category: "saludo", Count: 2},
		{Category: "general", Count: 1},
		{Category: "nutricion", Count: 1},
	}, summary.Categories)

	empty := BuildTrainingSummary(nil)
	assert.Equal(t, 0, empty.Total)
	assert.Empty(t, empty.Categories)
}

// failingAnalytics fails analytics and counts calls; every other operation
// goes to the embedded backend.
type failingAnalytics struct {
	botapi.Backend
	calls atomic.Int32
}

func (f *failingAnalytics) GetAnalytics(ctx context.Context) (*botapi.AnalyticsData, error) {
	f.calls.Add(1)
	return nil, errors.NewHTTPError("GET", "/api/analytics", 503, "Service Unavailable")
}

// garbledAnalytics answers analytics with a body that cannot be decoded.
type garbledAnalytics struct {
	botapi.Backend
}

func (garbledAnalytics) GetAnalytics(ctx context.Context) (*botapi.AnalyticsData, error) {
	return nil, errors.NewDecodeError("/api/analytics", stderrors.New("unexpected end of JSON input"))
}

func newService(t *testing.T, backend botapi.Backend) (*Service, *query.Cache) {
	t.Helper()
	cache := query.New(
		query.WithGCInterval(0),
		query.WithMetrics(metrics.NewRegistry()),
		query.WithQueryRetry(retry.BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1, MaxAttempts: 4}),
	)
	t.Cleanup(cache.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewService(backend, cache, WithClock(func() time.Time { return fixedNow }), WithLogger(logger)), cache
}

func offlineBackend() *offline.Backend {
	return offline.New(offline.WithClock(func() time.Time { return fixedNow }))
}

func TestService_Snapshot(t *testing.T) {
	svc, cache := newService(t, offlineBackend())

	snap := svc.Snapshot(context.Background())
	assert.Equal(t, fixedNow, snap.GeneratedAt)
	require.Len(t, snap.Stats.Data, 4)
	assert.Nil(t, snap.Stats.Error)
	assert.False(t, snap.Stats.Loading)
	assert.Len(t, snap.Activity.Data.Points, 7)
	assert.Len(t, snap.TopContacts.Data.Rows, 3)
	require.Len(t, snap.Recent.Data.Rows, 2)
	assert.Equal(t, "Juan Pérez", snap.Recent.Data.Rows[0].Name)
	assert.True(t, snap.AI.Data.Configured)
	assert.Equal(t, 1, snap.Training.Data.Total)

	assert.Equal(t, 4, cache.Len())

	encoded, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"top_contacts"`)
}

func TestService_SnapshotIsolatesPanelErrors(t *testing.T) {
	backend := &failingAnalytics{Backend: offlineBackend()}
	svc, _ := newService(t, backend)

	snap := svc.Snapshot(context.Background())

	require.NotNil(t, snap.Stats.Error)
	assert.True(t, snap.Stats.Error.Retryable)
	assert.Equal(t, "Error cargando el dashboard", snap.Stats.Error.Title)
	assert.Same(t, snap.Stats.Error, snap.Activity.Error)
	assert.True(t, snap.Activity.Data.Empty)
	assert.Empty(t, snap.Stats.Data)
	assert.Equal(t, int32(4), backend.calls.Load())

	assert.Nil(t, snap.Recent.Error)
	assert.Len(t, snap.Recent.Data.Rows, 2)
	assert.Nil(t, snap.Training.Error)
}

func TestService_CachedDoesNotFetch(t *testing.T) {
	svc, _ := newService(t, offlineBackend())

	before := svc.Cached()
	assert.True(t, before.Stats.Loading)
	assert.True(t, before.Recent.Loading)

	svc.Snapshot(context.Background())
	after := svc.Cached()
	assert.False(t, after.Stats.Loading)
	assert.Len(t, after.Stats.Data, 4)
	assert.Len(t, after.Recent.Data.Rows, 2)
}

func TestService_SnapshotPermanentErrorHasNoRetryHint(t *testing.T) {
	svc, _ := newService(t, garbledAnalytics{Backend: offlineBackend()})

	snap := svc.Snapshot(context.Background())

	require.NotNil(t, snap.Stats.Error)
	assert.False(t, snap.Stats.Error.Retryable)
	assert.Equal(t, "The backend returned an unexpected response", snap.Stats.Error.Detail)
	assert.Nil(t, snap.Recent.Error)
}

func TestService_Panel(t *testing.T) {
	svc, _ := newService(t, offlineBackend())
	ctx := context.Background()

	for _, name := range PanelNames {
		part, err := svc.Panel(ctx, name)
		require.NoError(t, err, name)
		assert.NotNil(t, part, name)
	}

	stats, err := svc.Panel(ctx, PanelStats)
	require.NoError(t, err)
	assert.Len(t, stats.(Panel[[]StatCard]).Data, 4)

	_, err = svc.Panel(ctx, "unknown")
	assert.True(t, errors.IsNotFound(err))
}

func TestService_Contacts(t *testing.T) {
	svc, _ := newService(t, offlineBackend())

	rows, err := svc.Contacts(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a few seconds ago", rows[0].LastActivity)

	active, err := svc.Contacts(context.Background(), botapi.StatusPaused)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestService_MutationsInvalidate(t *testing.T) {
	svc, cache := newService(t, offlineBackend())
	ctx := context.Background()
	svc.Snapshot(ctx)

	require.NoError(t, svc.SendMessage(ctx, "1", "Nos vemos a las 7"))

	state, ok := cache.Get(RecentContactsKey)
	require.True(t, ok)
	assert.True(t, state.Stale)
	analytics, _ := cache.Get(AnalyticsKey)
	assert.True(t, analytics.Stale)
	training, _ := cache.Get(TrainingKey)
	assert.False(t, training.Stale)

	result, err := svc.Broadcast(ctx, []string{"1", "404"}, "Clase cancelada")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Successful)

	paused := botapi.StatusPaused
	updated, err := svc.UpdateContact(ctx, "2", botapi.ContactUpdate{Status: &paused})
	require.NoError(t, err)
	assert.Equal(t, botapi.StatusPaused, updated.Status)

	invalid := botapi.ContactStatus("archived")
	_, err = svc.UpdateContact(ctx, "2", botapi.ContactUpdate{Status: &invalid})
	assert.Error(t, err)

	assert.Equal(t, 4, svc.Refresh())
}

func TestService_Subscribe(t *testing.T) {
	svc, cache := newService(t, offlineBackend())

	iv := Intervals{Analytics: time.Hour, LiveRefresh: time.Hour, RecentContacts: time.Hour}
	subs, err := svc.Subscribe(iv)
	require.NoError(t, err)
	require.Len(t, subs, 5)
	defer func() {
		for _, sub := range subs {
			sub.Stop()
		}
	}()

	for _, sub := range subs {
		select {
		case u := <-sub.Updates():
			assert.NoError(t, u.Err, sub.Key().String())
		case <-time.After(2 * time.Second):
			t.Fatalf("no initial update for %s", sub.Key())
		}
	}

	snap := svc.Cached()
	assert.False(t, snap.Stats.Loading)
	assert.False(t, snap.Training.Loading)
	assert.Equal(t, 4, cache.Len())

	cache.Close()
	_, err = svc.Subscribe(iv)
	assert.ErrorIs(t, err, query.ErrClosed)
}

func TestDefaultIntervals(t *testing.T) {
	iv := DefaultIntervals()
	assert.Equal(t, 30*time.Second, iv.Analytics)
	assert.Equal(t, 15*time.Second, iv.LiveRefresh)
	assert.Equal(t, time.Minute, iv.RecentContacts)
}
