package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"whatsbot/internal/config"
	"whatsbot/internal/dashboard"
	"whatsbot/internal/errors"
	"whatsbot/internal/metrics"
	"whatsbot/internal/models"
	"whatsbot/internal/preferences"
	"whatsbot/internal/query"
	"whatsbot/pkg/botapi"
	"whatsbot/pkg/botapi/offline"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server   *Server
	hub      *Hub
	service  *dashboard.Service
	registry *metrics.Registry
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestEnv(t *testing.T, bot botapi.Backend) *testEnv {
	t.Helper()
	if bot == nil {
		bot = offline.New()
	}

	logger := quietLogger()
	registry := metrics.NewRegistry()

	cache := query.New(query.WithLogger(logger), query.WithMetrics(registry))
	t.Cleanup(cache.Close)

	prefs, err := preferences.Open(filepath.Join(t.TempDir(), "prefs.db"),
		preferences.WithSecret(""), preferences.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = prefs.Close() })

	svc := dashboard.NewService(bot, cache, dashboard.WithLogger(logger))
	hub := NewHub(svc, logger, registry, 2)

	cfg := config.Default()
	cfg.Mode = models.ModeOffline

	return &testEnv{
		server:   NewServer(cfg, svc, prefs, hub, logger, registry, false),
		hub:      hub,
		service:  svc,
		registry: registry,
	}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.server.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestServer_HandleHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	resp := decodeBody[healthResponse](t, w)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, models.ModeOffline, resp.Mode)
	assert.Equal(t, "healthy", resp.Backend)
	assert.Equal(t, 0, resp.Clients)
}

func TestServer_HandleHealth_BackendUnreachable(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	url := down.URL
	down.Close()

	client, err := botapi.New(url, botapi.WithLogger(quietLogger()))
	require.NoError(t, err)
	env := newTestEnv(t, client)

	w := env.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[healthResponse](t, w)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "unreachable", resp.Backend)
}

func TestServer_HandleMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(http.MethodGet, "/health", "")

	w := env.do(http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	snap := decodeBody[metrics.Snapshot](t, w)

	found := false
	for _, c := range snap.Counters {
		if c.Name == metrics.HTTPRequests && c.Labels["route"] == "/health" {
			found = true
			assert.Equal(t, float64(1), c.Value)
		}
	}
	assert.True(t, found, "expected a request counter for /health")
}

func TestServer_HandleSnapshot(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/dashboard", "")

	require.Equal(t, http.StatusOK, w.Code)
	snap := decodeBody[dashboard.Snapshot](t, w)
	assert.Len(t, snap.Stats.Data, 4)
	assert.Nil(t, snap.Stats.Error)
	assert.Len(t, snap.Activity.Data.Points, 7)
	assert.Len(t, snap.Recent.Data.Rows, 2)
	assert.Equal(t, 1, snap.Training.Data.Total)
	assert.False(t, snap.GeneratedAt.IsZero())
}

func TestServer_HandlePanel(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, name := range dashboard.PanelNames {
		t.Run(name, func(t *testing.T) {
			w := env.do(http.MethodGet, "/api/dashboard/"+name, "")
			assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
		})
	}

	t.Run("unknown panel", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/dashboard/weather", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		resp := decodeBody[errors.HTTPErrorResponse](t, w)
		assert.Equal(t, errors.ErrCodeNotFound, resp.Error.Code)
		assert.NotEmpty(t, resp.RequestID)
	})
}

func TestServer_HandleContacts(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantRows   int
	}{
		{name: "all", query: "", wantStatus: http.StatusOK, wantRows: 2},
		{name: "active", query: "?status=active", wantStatus: http.StatusOK, wantRows: 2},
		{name: "blocked", query: "?status=blocked", wantStatus: http.StatusOK, wantRows: 0},
		{name: "invalid status", query: "?status=archived", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodGet, "/api/contacts"+tt.query, "")
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			rows := decodeBody[[]dashboard.RecentContactRow](t, w)
			assert.Len(t, rows, tt.wantRows)
		})
	}
}

func TestServer_HandleTraining(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/training", "")

	require.Equal(t, http.StatusOK, w.Code)
	items := decodeBody[[]botapi.TrainingData](t, w)
	require.Len(t, items, 1)
	assert.Equal(t, "saludo", items[0].Category)
}

func TestServer_Preferences(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/preferences/theme", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPut, "/api/preferences/theme", `{"mode":"dark"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"mode":"dark"}`, w.Body.String())

	w = env.do(http.MethodGet, "/api/preferences/theme", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"mode":"dark"}`, w.Body.String())

	w = env.do(http.MethodPut, "/api/preferences/theme", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_HandleRefresh(t *testing.T) {
	env := newTestEnv(t, nil)
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/dashboard", "").Code)

	w := env.do(http.MethodPost, "/api/refresh", "")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[refreshResponse](t, w)
	assert.Greater(t, resp.Invalidated, 0)
}

func TestServer_HandleBroadcast(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("partial delivery", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/broadcast", `{"contact_ids":["1","99"],"message":"Hola a todos"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		result := decodeBody[botapi.BroadcastResult](t, w)
		assert.Equal(t, 1, result.Successful)
		assert.Equal(t, 1, result.Failed)
		assert.Len(t, result.Errors, 1)
	})

	t.Run("no recipients", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/broadcast", `{"contact_ids":[],"message":"Hola"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/broadcast", `{"ids":["1"],"message":"Hola"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeBody[errors.HTTPErrorResponse](t, w)
		assert.Equal(t, errors.ErrCodeInvalidInput, resp.Error.Code)
	})
}

func TestServer_HandleSendMessage(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{name: "sent", path: "/api/contacts/1/messages", body: `{"content":"Hola Juan"}`, wantStatus: http.StatusAccepted},
		{name: "empty content", path: "/api/contacts/1/messages", body: `{"content":"  "}`, wantStatus: http.StatusBadRequest},
		{name: "unknown contact", path: "/api/contacts/99/messages", body: `{"content":"Hola"}`, wantStatus: http.StatusNotFound},
		{name: "malformed body", path: "/api/contacts/1/messages", body: `{"content":`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestServer_HandleUpdateContact(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPatch, "/api/contacts/1", `{"status":"paused","ai_enabled":false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	contact := decodeBody[botapi.Contact](t, w)
	assert.Equal(t, botapi.StatusPaused, contact.Status)
	assert.False(t, contact.AIEnabled)

	w = env.do(http.MethodGet, "/api/contacts?status=paused", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]dashboard.RecentContactRow](t, w), 1)

	w = env.do(http.MethodPatch, "/api/contacts/1", `{"status":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/nothing-here", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeBody[errors.HTTPErrorResponse](t, w)
	assert.Equal(t, errors.ErrCodeNotFound, resp.Error.Code)
}
