package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"whatsbot/internal/constants"
	"whatsbot/internal/errors"
	"whatsbot/internal/query"
	"whatsbot/pkg/botapi"
)

// Cache keys and invalidation prefixes of the dashboard queries.
const (
	ResourceAnalytics = "analytics"
	ResourceContacts  = "contacts"
	ResourceTraining  = "training-data"
	ResourceAIConfig  = "ai-config"
)

var (
	AnalyticsKey      = query.NewKey(ResourceAnalytics)
	RecentContactsKey = query.NewKey(ResourceContacts, "recent", constants.RecentContactsLimit)
	TrainingKey       = query.NewKey(ResourceTraining, "stats")
	AIConfigKey       = query.NewKey(ResourceAIConfig, "global")
)

// Panel names accepted by Service.Panel.
const (
	PanelStats       = "stats"
	PanelActivity    = "activity"
	PanelTopContacts = "top-contacts"
	PanelRecent      = "recent"
	PanelAI          = "ai"
	PanelTraining    = "training"
)

// PanelNames lists every panel in display order.
var PanelNames = []string{PanelStats, PanelActivity, PanelTopContacts, PanelRecent, PanelAI, PanelTraining}

// PanelError is shown in place of a panel whose data failed to load.
type PanelError struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	Retryable bool   `json:"retryable"`
}

func newPanelError(err error) *PanelError {
	if err == nil {
		return nil
	}
	pe := &PanelError{
		Title:     "Error cargando el dashboard",
		Message:   "No se pudieron cargar las estadísticas del bot. Verifica tu conexión e intenta de nuevo.",
		Retryable: errors.IsRetryable(err),
	}
	if appErr, ok := errors.As(err); ok {
		pe.Detail = errors.GetUserMessage(appErr)
	}
	return pe
}

// Panel wraps one panel's view model with its load state.
type Panel[T any] struct {
	Data    T           `json:"data"`
	Loading bool        `json:"loading,omitempty"`
	Error   *PanelError `json:"error,omitempty"`
}

// Snapshot is every panel of the dashboard at one instant. A failing
// source only affects the panels built from it.
type Snapshot struct {
	GeneratedAt time.Time                  `json:"generated_at"`
	Stats       Panel[[]StatCard]          `json:"stats"`
	Activity    Panel[ActivityChart]       `json:"activity"`
	TopContacts Panel[TopContactsPanel]    `json:"top_contacts"`
	Recent      Panel[RecentContactsPanel] `json:"recent"`
	AI          Panel[AIStatus]            `json:"ai"`
	Training    Panel[TrainingSummary]     `json:"training"`
}

// Part returns the named panel, or false for an unknown name.
func (s Snapshot) Part(name string) (any, bool) {
	switch name {
	case PanelStats:
		return s.Stats, true
	case PanelActivity:
		return s.Activity, true
	case PanelTopContacts:
		return s.TopContacts, true
	case PanelRecent:
		return s.Recent, true
	case PanelAI:
		return s.AI, true
	case PanelTraining:
		return s.Training, true
	}
	return nil, false
}

// sources holds the raw data a snapshot is built from.
type sources struct {
	analytics    *botapi.AnalyticsData
	analyticsErr error
	recent       []botapi.Contact
	recentErr    error
	training     []botapi.TrainingData
	trainingErr  error
	ai           *botapi.AIConfig
	aiErr        error
	loaded       map[string]bool
}

func (src sources) build(now time.Time) Snapshot {
	snap := Snapshot{GeneratedAt: now}

	analyticsLoading := !src.loaded[ResourceAnalytics] && src.analyticsErr == nil
	if src.analytics != nil {
		snap.Stats.Data = BuildStatsGrid(*src.analytics)
		snap.Activity.Data = BuildActivityChart(src.analytics.DailyStats)
		snap.TopContacts.Data = BuildTopContacts(src.analytics.TopContacts)
	} else {
		snap.Stats.Data = []StatCard{}
		snap.Activity.Data = BuildActivityChart(nil)
		snap.TopContacts.Data = BuildTopContacts(nil)
	}
	analyticsErr := newPanelError(src.analyticsErr)
	snap.Stats.Error, snap.Activity.Error, snap.TopContacts.Error = analyticsErr, analyticsErr, analyticsErr
	snap.Stats.Loading, snap.Activity.Loading, snap.TopContacts.Loading = analyticsLoading, analyticsLoading, analyticsLoading

	snap.Recent.Data = BuildRecentContacts(src.recent, now)
	snap.Recent.Error = newPanelError(src.recentErr)
	snap.Recent.Loading = !src.loaded[ResourceContacts] && src.recentErr == nil

	snap.AI.Data = BuildAIStatus(src.ai)
	snap.AI.Error = newPanelError(src.aiErr)
	snap.AI.Loading = !src.loaded[ResourceAIConfig] && src.aiErr == nil

	snap.Training.Data = BuildTrainingSummary(src.training)
	snap.Training.Error = newPanelError(src.trainingErr)
	snap.Training.Loading = !src.loaded[ResourceTraining] && src.trainingErr == nil
	return snap
}

// Service serves dashboard panels from a backend through the query cache.
type Service struct {
	backend botapi.Backend
	cache   *query.Cache
	now     func() time.Time
	logger  *logrus.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the clock used for relative times.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *logrus.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a dashboard service. The cache is owned by the caller.
func NewService(backend botapi.Backend, cache *query.Cache, opts ...ServiceOption) *Service {
	s := &Service{
		backend: backend,
		cache:   cache,
		now:     time.Now,
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the backend the service reads from.
func (s *Service) Backend() botapi.Backend {
	return s.backend
}

func (s *Service) fetchAnalytics(ctx context.Context) (*botapi.AnalyticsData, error) {
	return s.backend.GetAnalytics(ctx)
}

func (s *Service) fetchRecent(ctx context.Context) ([]botapi.Contact, error) {
	return s.backend.ListContacts(ctx, botapi.ListContactsParams{Limit: constants.RecentContactsLimit})
}

func (s *Service) fetchTraining(ctx context.Context) ([]botapi.TrainingData, error) {
	return s.backend.ListTrainingData(ctx, botapi.PageParams{})
}

func (s *Service) fetchAIConfig(ctx context.Context) (*botapi.AIConfig, error) {
	return s.backend.GetAIConfig(ctx)
}

// Analytics returns the cached analytics aggregate.
func (s *Service) Analytics(ctx context.Context) (*botapi.AnalyticsData, error) {
	return query.Fetch(ctx, s.cache, AnalyticsKey, s.fetchAnalytics)
}

// RecentContacts returns the five most recently listed contacts.
func (s *Service) RecentContacts(ctx context.Context) ([]botapi.Contact, error) {
	return query.Fetch(ctx, s.cache, RecentContactsKey, s.fetchRecent)
}

// Training returns the training library.
func (s *Service) Training(ctx context.Context) ([]botapi.TrainingData, error) {
	return query.Fetch(ctx, s.cache, TrainingKey, s.fetchTraining)
}

// AIConfig returns the global AI configuration, nil when none exists.
func (s *Service) AIConfig(ctx context.Context) (*botapi.AIConfig, error) {
	return query.Fetch(ctx, s.cache, AIConfigKey, s.fetchAIConfig)
}

// Contacts returns contact rows filtered by status. An empty status lists
// every contact.
func (s *Service) Contacts(ctx context.Context, status botapi.ContactStatus) ([]RecentContactRow, error) {
	key := query.NewKey(ResourceContacts, "all", string(status))
	contacts, err := query.Fetch(ctx, s.cache, key, func(ctx context.Context) ([]botapi.Contact, error) {
		return s.backend.ListContacts(ctx, botapi.ListContactsParams{Status: status})
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	rows := make([]RecentContactRow, 0, len(contacts))
	for _, c := range contacts {
		rows = append(rows, ContactRow(c, now))
	}
	return rows, nil
}

// Snapshot loads every source concurrently and builds all panels. It never
// fails as a whole; source errors land on the affected panels.
func (s *Service) Snapshot(ctx context.Context) Snapshot {
	src := sources{loaded: map[string]bool{
		ResourceAnalytics: true,
		ResourceContacts:  true,
		ResourceTraining:  true,
		ResourceAIConfig:  true,
	}}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		src.analytics, src.analyticsErr = s.Analytics(ctx)
	}()
	go func() {
		defer wg.Done()
		src.recent, src.recentErr = s.RecentContacts(ctx)
	}()
	go func() {
		defer wg.Done()
		src.training, src.trainingErr = s.Training(ctx)
	}()
	go func() {
		defer wg.Done()
		src.ai, src.aiErr = s.AIConfig(ctx)
	}()
	wg.Wait()

	s.logErrors(src)
	return src.build(s.now())
}

// Cached builds a snapshot from whatever the cache holds without calling
// the backend. Panels with no data yet are marked loading.
func (s *Service) Cached() Snapshot {
	src := sources{loaded: map[string]bool{}}

	if st, ok := s.cache.Get(AnalyticsKey); ok {
		src.analytics, _ = st.Value.(*botapi.AnalyticsData)
		src.loaded[ResourceAnalytics] = st.HasValue
		if !st.HasValue {
			src.analyticsErr = st.Err
		}
	}
	if st, ok := s.cache.Get(RecentContactsKey); ok {
		src.recent, _ = st.Value.([]botapi.Contact)
		src.loaded[ResourceContacts] = st.HasValue
		if !st.HasValue {
			src.recentErr = st.Err
		}
	}
	if st, ok := s.cache.Get(TrainingKey); ok {
		src.training, _ = st.Value.([]botapi.TrainingData)
		src.loaded[ResourceTraining] = st.HasValue
		if !st.HasValue {
			src.trainingErr = st.Err
		}
	}
	if st, ok := s.cache.Get(AIConfigKey); ok {
		src.ai, _ = st.Value.(*botapi.AIConfig)
		src.loaded[ResourceAIConfig] = st.HasValue
		if !st.HasValue {
			src.aiErr = st.Err
		}
	}
	return src.build(s.now())
}

// Panel loads one named panel.
func (s *Service) Panel(ctx context.Context, name string) (any, error) {
	switch name {
	case PanelStats, PanelActivity, PanelTopContacts:
		data, err := s.Analytics(ctx)
		if err != nil {
			return nil, err
		}
		snap := sources{analytics: data, loaded: map[string]bool{ResourceAnalytics: true}}.build(s.now())
		part, _ := snap.Part(name)
		return part, nil
	case PanelRecent:
		contacts, err := s.RecentContacts(ctx)
		if err != nil {
			return nil, err
		}
		return Panel[RecentContactsPanel]{Data: BuildRecentContacts(contacts, s.now())}, nil
	case PanelAI:
		cfg, err := s.AIConfig(ctx)
		if err != nil {
			return nil, err
		}
		return Panel[AIStatus]{Data: BuildAIStatus(cfg)}, nil
	case PanelTraining:
		items, err := s.Training(ctx)
		if err != nil {
			return nil, err
		}
		return Panel[TrainingSummary]{Data: BuildTrainingSummary(items)}, nil
	}
	return nil, errors.NewNotFoundError("panel", name)
}

// Refresh marks every cached query stale; observed ones refetch at once.
func (s *Service) Refresh() int {
	return s.cache.Invalidate("")
}

// SendMessage sends a message to one contact and refreshes contact data.
func (s *Service) SendMessage(ctx context.Context, contactID, content string) error {
	_, err := query.Mutate(ctx, s.cache, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.SendMessage(ctx, contactID, content)
	}, ResourceContacts, ResourceAnalytics)
	return err
}

// Broadcast sends one message to many contacts and refreshes contact data.
func (s *Service) Broadcast(ctx context.Context, contactIDs []string, message string) (*botapi.BroadcastResult, error) {
	return query.Mutate(ctx, s.cache, func(ctx context.Context) (*botapi.BroadcastResult, error) {
		return s.backend.Broadcast(ctx, contactIDs, message)
	}, ResourceContacts, ResourceAnalytics)
}

// UpdateContact applies a partial update and refreshes contact data.
func (s *Service) UpdateContact(ctx context.Context, id string, update botapi.ContactUpdate) (*botapi.Contact, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	return query.Mutate(ctx, s.cache, func(ctx context.Context) (*botapi.Contact, error) {
		return s.backend.UpdateContact(ctx, id, update)
	}, ResourceContacts, ResourceAnalytics)
}

func (s *Service) logErrors(src sources) {
	for resource, err := range map[string]error{
		ResourceAnalytics: src.analyticsErr,
		ResourceContacts:  src.recentErr,
		ResourceTraining:  src.trainingErr,
		ResourceAIConfig:  src.aiErr,
	} {
		if err == nil {
			continue
		}
		s.logger.WithFields(logrus.Fields{
			"panel_source": resource,
			"error_code":   errors.GetCode(err),
			"status_code":  errors.StatusCode(err),
		}).WithError(err).Warn("Dashboard source failed")
	}
}

// Intervals are the polling periods of a live dashboard.
type Intervals struct {
	Analytics      time.Duration
	LiveRefresh    time.Duration
	RecentContacts time.Duration
}

// DefaultIntervals polls analytics every 30s with a 15s live refresh and the
// recent contacts every minute.
func DefaultIntervals() Intervals {
	return Intervals{
		Analytics:      constants.AnalyticsRefetchInterval,
		LiveRefresh:    constants.AnalyticsLiveRefreshInterval,
		RecentContacts: constants.RecentContactsRefetchInterval,
	}
}

// Subscribe starts polling every dashboard source. Training data and the AI
// config are watched without a timer so they only refetch on invalidation.
// The caller stops the returned subscriptions.
func (s *Service) Subscribe(iv Intervals) ([]*query.Subscription, error) {
	starters := []func() (*query.Subscription, error){
		func() (*query.Subscription, error) {
			return query.Poll(s.cache, AnalyticsKey, iv.Analytics, s.fetchAnalytics)
		},
		func() (*query.Subscription, error) {
			return query.Poll(s.cache, AnalyticsKey, iv.LiveRefresh, s.fetchAnalytics)
		},
		func() (*query.Subscription, error) {
			return query.Poll(s.cache, RecentContactsKey, iv.RecentContacts, s.fetchRecent)
		},
		func() (*query.Subscription, error) {
			return query.Watch(s.cache, TrainingKey, s.fetchTraining)
		},
		func() (*query.Subscription, error) {
			return query.Watch(s.cache, AIConfigKey, s.fetchAIConfig)
		},
	}

	subs := make([]*query.Subscription, 0, len(starters))
	for _, start := range starters {
		sub, err := start()
		if err != nil {
			for _, started := range subs {
				started.Stop()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}

	s.logger.WithFields(logrus.Fields{
		"analytics_interval": iv.Analytics.String(),
		"live_refresh":       iv.LiveRefresh.String(),
		"recent_interval":    iv.RecentContacts.String(),
	}).Info("Dashboard polling started")
	return subs, nil
}
