package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"whatsbot/internal/backend"
	"whatsbot/internal/config"
	"whatsbot/internal/dashboard"
	"whatsbot/internal/errors"
	"whatsbot/internal/metrics"
	"whatsbot/internal/models"
	"whatsbot/internal/query"
	"whatsbot/pkg/botapi"
	"whatsbot/pkg/botapi/offline"
)

// TestEnvironment runs the online admin stack (HTTP client, query cache and
// dashboard service) against a fake bot backend served over HTTP.
type TestEnvironment struct {
	t        *testing.T
	Fake     *FakeBackend
	Config   *models.Config
	Registry *metrics.Registry
	Backend  botapi.Backend
	Cache    *query.Cache
	Service  *dashboard.Service
}

// EnvOption adjusts the configuration before the stack is built.
type EnvOption func(*models.Config)

// WithCircuit sets the circuit breaker threshold; negative disables it.
func WithCircuit(maxFailures, cooldownSec int) EnvOption {
	return func(c *models.Config) {
		c.API.CircuitMaxFailures = maxFailures
		c.API.CircuitCooldownSec = cooldownSec
	}
}

// WithRetries sets the query retry count with a short backoff.
func WithRetries(n int) EnvOption {
	return func(c *models.Config) {
		c.Query.RetryCount = n
		c.Query.RetryBaseDelayMs = 5
		c.Query.RetryMaxDelayMs = 20
	}
}

// NewTestEnvironment starts the fake backend and wires the stack to it.
// Everything is torn down through t.Cleanup.
func NewTestEnvironment(t *testing.T, opts ...EnvOption) *TestEnvironment {
	t.Helper()

	fake := NewFakeBackend()
	server := httptest.NewServer(fake.Router())
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.Default()
	cfg.API.BaseURL = server.URL
	cfg.API.TimeoutSec = 5
	cfg.Query.GCIntervalSec = 3600
	WithRetries(-1)(cfg)
	for _, opt := range opts {
		opt(cfg)
	}

	registry := metrics.NewRegistry()
	bot, err := backend.New(cfg, logger, registry, false)
	require.NoError(t, err)

	cache := backend.NewCache(cfg, logger, registry)
	t.Cleanup(cache.Close)

	return &TestEnvironment{
		t:        t,
		Fake:     fake,
		Config:   cfg,
		Registry: registry,
		Backend:  bot,
		Cache:    cache,
		Service:  dashboard.NewService(bot, cache, dashboard.WithLogger(logger)),
	}
}

// Context returns a context bounded to a few seconds.
func (e *TestEnvironment) Context() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	e.t.Cleanup(cancel)
	return ctx
}

// FakeBackend serves the bot REST API from the offline fixtures. Requests
// are counted per route template and faults can be queued per route.
type FakeBackend struct {
	data *offline.Backend

	mu       sync.Mutex
	requests map[string]int
	faults   map[string][]int
	delay    time.Duration
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		data:     offline.New(),
		requests: make(map[string]int),
		faults:   make(map[string][]int),
	}
}

// Data exposes the fixture store behind the fake.
func (f *FakeBackend) Data() *offline.Backend {
	return f.data
}

// FailNext makes the next len(statuses) requests to route answer with those
// status codes, in order.
func (f *FakeBackend) FailNext(route string, statuses ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[route] = append(f.faults[route], statuses...)
}

// SetDelay slows every response down by d.
func (f *FakeBackend) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// Requests returns how many requests reached route, faults included.
func (f *FakeBackend) Requests(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[route]
}

func (f *FakeBackend) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(f.record)

	r.HandleFunc("/health", f.health).Methods(http.MethodGet)
	r.HandleFunc("/api/analytics", f.analytics).Methods(http.MethodGet)
	r.HandleFunc("/api/contacts", f.listContacts).Methods(http.MethodGet)
	r.HandleFunc("/api/contacts/{id}", f.getContact).Methods(http.MethodGet)
	r.HandleFunc("/api/contacts/{id}", f.updateContact).Methods(http.MethodPut)
	r.HandleFunc("/api/contacts/{id}/messages", f.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/api/contacts/{id}/messages", f.sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/api/ai-config", f.aiConfig).Methods(http.MethodGet)
	r.HandleFunc("/api/training-data", f.listTraining).Methods(http.MethodGet)
	r.HandleFunc("/api/broadcast", f.broadcast).Methods(http.MethodPost)
	return r
}

func (f *FakeBackend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		f.mu.Lock()
		f.requests[route]++
		delay := f.delay
		status := 0
		if queue := f.faults[route]; len(queue) > 0 {
			status, f.faults[route] = queue[0], queue[1:]
		}
		f.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			respond(w, status, map[string]string{"detail": http.StatusText(status)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respond(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *FakeBackend) reply(w http.ResponseWriter, v interface{}, err error) {
	if err != nil {
		status := errors.StatusCode(err)
		if status == 0 {
			status = errors.HTTPStatusCode(err)
		}
		respond(w, status, map[string]string{"detail": errors.GetUserMessage(err)})
		return
	}
	respond(w, http.StatusOK, v)
}

func intParam(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

func (f *FakeBackend) health(w http.ResponseWriter, r *http.Request) {
	status, err := f.data.Health(r.Context())
	f.reply(w, status, err)
}

func (f *FakeBackend) analytics(w http.ResponseWriter, r *http.Request) {
	data, err := f.data.GetAnalytics(r.Context())
	f.reply(w, data, err)
}

func (f *FakeBackend) listContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := f.data.ListContacts(r.Context(), botapi.ListContactsParams{
		Skip:   intParam(r, "skip"),
		Limit:  intParam(r, "limit"),
		Status: botapi.ContactStatus(r.URL.Query().Get("status")),
	})
	f.reply(w, contacts, err)
}

func (f *FakeBackend) getContact(w http.ResponseWriter, r *http.Request) {
	contact, err := f.data.GetContact(r.Context(), mux.Vars(r)["id"])
	f.reply(w, contact, err)
}

func (f *FakeBackend) updateContact(w http.ResponseWriter, r *http.Request) {
	var update botapi.ContactUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respond(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}
	contact, err := f.data.UpdateContact(r.Context(), mux.Vars(r)["id"], update)
	f.reply(w, contact, err)
}

func (f *FakeBackend) listMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := f.data.ListMessages(r.Context(), mux.Vars(r)["id"], intParam(r, "limit"))
	f.reply(w, messages, err)
}

func (f *FakeBackend) sendMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}
	err := f.data.SendMessage(r.Context(), mux.Vars(r)["id"], body.Content)
	f.reply(w, botapi.StatusMessage{Message: "Message sent"}, err)
}

func (f *FakeBackend) aiConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := f.data.GetAIConfig(r.Context())
	f.reply(w, cfg, err)
}

func (f *FakeBackend) listTraining(w http.ResponseWriter, r *http.Request) {
	items, err := f.data.ListTrainingData(r.Context(), botapi.PageParams{
		Skip:  intParam(r, "skip"),
		Limit: intParam(r, "limit"),
	})
	f.reply(w, items, err)
}

func (f *FakeBackend) broadcast(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContactIDs []string `json:"contact_ids"`
		Message    string   `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}
	result, err := f.data.Broadcast(r.Context(), body.ContactIDs, body.Message)
	f.reply(w, result, err)
}
