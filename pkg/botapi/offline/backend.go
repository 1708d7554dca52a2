// Package offline serves a fixed demo data set through the botapi.Backend
// interface. It backs the CLI and dashboard when no bot backend is
// reachable, and mutations are kept in memory for the life of the process.
package offline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"whatsbot/internal/constants"
	"whatsbot/internal/errors"
	"whatsbot/internal/validation"
	"whatsbot/pkg/botapi"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Simulated response times of the demo data set.
const (
	AnalyticsLatency = time.Second
	ContactsLatency  = 800 * time.Millisecond
	TrainingLatency  = 600 * time.Millisecond
)

// Backend is an in-memory botapi.Backend.
type Backend struct {
	mu       sync.RWMutex
	now      func() time.Time
	latency  bool
	contacts map[string]*botapi.Contact
	messages map[string][]botapi.Message
	configs  map[string]*botapi.AIConfig
	training map[string]*botapi.TrainingData
	nextID   int
}

var _ botapi.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithClock sets the clock used for generated timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// WithSimulatedLatency delays list and analytics reads the way a slow
// network would. Delays honor context cancellation.
func WithSimulatedLatency() Option {
	return func(b *Backend) {
		b.latency = true
	}
}

// New returns a Backend seeded with the demo data set.
func New(opts ...Option) *Backend {
	b := &Backend{
		now:      time.Now,
		contacts: make(map[string]*botapi.Contact),
		messages: make(map[string][]botapi.Message),
		configs:  make(map[string]*botapi.AIConfig),
		training: make(map[string]*botapi.TrainingData),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.seed()
	return b
}

func (b *Backend) stamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func (b *Backend) seed() {
	now := b.now()
	ts := b.stamp(now)

	b.contacts["1"] = &botapi.Contact{
		ID: "1", Name: "Juan Pérez", PhoneNumber: "+34123456789",
		Status: botapi.StatusActive, AIEnabled: true, MessageCount: 45,
		LastMessageAt: ts, CreatedAt: ts, UpdatedAt: ts,
		Tags: []string{"cliente", "premium"},
	}
	b.contacts["2"] = &botapi.Contact{
		ID: "2", Name: "María García", PhoneNumber: "+34987654321",
		Status: botapi.StatusActive, AIEnabled: true, MessageCount: 32,
		LastMessageAt: b.stamp(now.Add(-time.Hour)), CreatedAt: ts, UpdatedAt: ts,
		Tags: []string{"nuevo"},
	}

	b.training["1"] = &botapi.TrainingData{
		ID: "1", Title: "Saludo de Rubén", Content: "¡Hola! Soy Rubén, tu entrenador fitness...",
		Category: "saludo", Tags: []string{"saludo", "presentacion"}, Active: true,
		WordCount: 45, CreatedAt: ts, UpdatedAt: ts,
	}

	global := botapi.DefaultAIConfigInput()
	b.configs["global"] = &botapi.AIConfig{
		ID: "global", ResponseDelayMin: global.ResponseDelayMin, ResponseDelayMax: global.ResponseDelayMax,
		Temperature: global.Temperature, MaxTokens: global.MaxTokens, Enabled: global.Enabled,
		CreatedAt: ts, UpdatedAt: ts,
	}

	b.nextID = 3
}

func (b *Backend) wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.latency {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (b *Backend) newID() string {
	id := strconv.Itoa(b.nextID)
	b.nextID++
	return id
}

func notFound(method, path, detail string) error {
	return errors.NewHTTPError(method, path, http.StatusNotFound, detail)
}

func contactNotFound(method, id string) error {
	return notFound(method, "/api/contacts/"+id, "Contacto no encontrado")
}

// ListContacts returns contacts ordered by id, filtered and paginated like the backend.
func (b *Backend) ListContacts(ctx context.Context, params botapi.ListContactsParams) ([]botapi.Contact, error) {
	if err := b.wait(ctx, ContactsLatency); err != nil {
		return nil, err
	}
	if params.Status != "" && !params.Status.Valid() {
		return nil, validation.InvalidValue("status", string(params.Status), "status must be active, blocked or paused")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]botapi.Contact, 0, len(b.contacts))
	for _, c := range b.contacts {
		if params.Status != "" && c.Status != params.Status {
			continue
		}
		out = append(out, cloneContact(c))
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].ID, out[j].ID) })
	return page(out, params.Skip, params.Limit), nil
}

func (b *Backend) GetContact(ctx context.Context, id string) (*botapi.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	c, ok := b.contacts[id]
	if !ok {
		return nil, contactNotFound(http.MethodGet, id)
	}
	out := cloneContact(c)
	return &out, nil
}

func (b *Backend) CreateContact(ctx context.Context, in botapi.ContactInput) (*botapi.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.contacts {
		if existing.PhoneNumber == in.PhoneNumber {
			return nil, errors.NewHTTPError(http.MethodPost, "/api/contacts", http.StatusBadRequest, "El contacto ya existe")
		}
	}

	status := in.Status
	if status == "" {
		status = botapi.StatusActive
	}
	ts := b.stamp(b.now())
	c := &botapi.Contact{
		ID: b.newID(), PhoneNumber: in.PhoneNumber, Name: in.Name, Email: in.Email, Notes: in.Notes,
		Status: status, AIEnabled: in.AIEnabled, Tags: append([]string{}, in.Tags...),
		CreatedAt: ts, UpdatedAt: ts,
	}
	b.contacts[c.ID] = c

	out := cloneContact(c)
	return &out, nil
}

func (b *Backend) UpdateContact(ctx context.Context, id string, update botapi.ContactUpdate) (*botapi.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.contacts[id]
	if !ok {
		return nil, contactNotFound(http.MethodPut, id)
	}
	if update.Name != nil {
		c.Name = *update.Name
	}
	if update.Email != nil {
		c.Email = *update.Email
	}
	if update.Notes != nil {
		c.Notes = *update.Notes
	}
	if update.Status != nil {
		c.Status = *update.Status
	}
	if update.AIEnabled != nil {
		c.AIEnabled = *update.AIEnabled
	}
	if update.Tags != nil {
		c.Tags = append([]string{}, update.Tags...)
	}
	c.UpdatedAt = b.stamp(b.now())

	out := cloneContact(c)
	return &out, nil
}

func (b *Backend) DeleteContact(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.contacts[id]; !ok {
		return contactNotFound(http.MethodDelete, id)
	}
	delete(b.contacts, id)
	delete(b.messages, id)
	delete(b.configs, id)
	return nil
}

// ListMessages returns the newest limit messages of a contact, oldest first.
func (b *Backend) ListMessages(ctx context.Context, contactID string, limit int) ([]botapi.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = constants.DefaultMessagesLimit
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.contacts[contactID]; !ok {
		return nil, contactNotFound(http.MethodGet, contactID)
	}
	history := b.messages[contactID]
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return append([]botapi.Message{}, history...), nil
}

// SendMessage records an outgoing message and bumps the contact's counters.
func (b *Backend) SendMessage(ctx context.Context, contactID, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validation.ValidateMessageContent(content); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.contacts[contactID]
	if !ok {
		return contactNotFound(http.MethodPost, contactID)
	}
	b.appendOutgoing(c, content)
	return nil
}

func (b *Backend) appendOutgoing(c *botapi.Contact, content string) {
	ts := b.stamp(b.now())
	msg := botapi.Message{
		ID:          fmt.Sprintf("m%d-%d", len(b.messages[c.ID])+1, b.now().UnixNano()),
		ContactID:   c.ID,
		Content:     content,
		MessageType: botapi.MessageText,
		Direction:   botapi.DirectionOutgoing,
		Metadata:    map[string]interface{}{"manual": true},
		CreatedAt:   ts,
		Processed:   true,
	}
	b.messages[c.ID] = append(b.messages[c.ID], msg)
	c.MessageCount++
	c.LastMessageAt = ts
}

func (b *Backend) GetContactAIConfig(ctx context.Context, contactID string) (*botapi.AIConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	cfg, ok := b.configs[contactID]
	if !ok {
		return nil, nil
	}
	out := *cfg
	return &out, nil
}

func (b *Backend) ListSummaries(ctx context.Context, contactID string) ([]botapi.ConversationSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []botapi.ConversationSummary{}, nil
}

func (b *Backend) GetAIConfig(ctx context.Context) (*botapi.AIConfig, error) {
	return b.GetContactAIConfig(ctx, "global")
}

// CreateAIConfig stores a config; a config for a contact replaces any
// previous override of that contact, and one without a contact replaces the
// global config.
func (b *Backend) CreateAIConfig(ctx context.Context, in botapi.AIConfigInput) (*botapi.AIConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	key := "global"
	id := "global"
	if in.ContactID != "" {
		if _, ok := b.contacts[in.ContactID]; !ok {
			return nil, contactNotFound(http.MethodPost, in.ContactID)
		}
		key = in.ContactID
		id = "cfg-" + in.ContactID
	}

	ts := b.stamp(b.now())
	cfg := &botapi.AIConfig{
		ID: id, ContactID: in.ContactID,
		ResponseDelayMin: in.ResponseDelayMin, ResponseDelayMax: in.ResponseDelayMax,
		Temperature: in.Temperature, MaxTokens: in.MaxTokens,
		SystemPrompt: in.SystemPrompt, Enabled: in.Enabled,
		CreatedAt: ts, UpdatedAt: ts,
	}
	b.configs[key] = cfg

	out := *cfg
	return &out, nil
}

func (b *Backend) UpdateAIConfig(ctx context.Context, id string, update botapi.AIConfigUpdate) (*botapi.AIConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var cfg *botapi.AIConfig
	for _, candidate := range b.configs {
		if candidate.ID == id {
			cfg = candidate
			break
		}
	}
	if cfg == nil {
		return nil, notFound(http.MethodPut, "/api/ai-config/"+id, "Configuración no encontrada")
	}

	if update.ResponseDelayMin != nil {
		cfg.ResponseDelayMin = *update.ResponseDelayMin
	}
	if update.ResponseDelayMax != nil {
		cfg.ResponseDelayMax = *update.ResponseDelayMax
	}
	if update.Temperature != nil {
		cfg.Temperature = *update.Temperature
	}
	if update.MaxTokens != nil {
		cfg.MaxTokens = *update.MaxTokens
	}
	if update.SystemPrompt != nil {
		cfg.SystemPrompt = *update.SystemPrompt
	}
	if update.Enabled != nil {
		cfg.Enabled = *update.Enabled
	}
	cfg.UpdatedAt = b.stamp(b.now())

	out := *cfg
	return &out, nil
}

func (b *Backend) ListTrainingData(ctx context.Context, params botapi.PageParams) ([]botapi.TrainingData, error) {
	if err := b.wait(ctx, TrainingLatency); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]botapi.TrainingData, 0, len(b.training))
	for _, item := range b.training {
		cp := *item
		cp.Tags = append([]string{}, item.Tags...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].ID, out[j].ID) })

	limit := params.Limit
	if limit <= 0 {
		limit = constants.DefaultPageLimit
	}
	return page(out, params.Skip, limit), nil
}

func (b *Backend) CreateTrainingData(ctx context.Context, in botapi.TrainingDataInput) (*botapi.TrainingData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	category := in.Category
	if category == "" {
		category = botapi.DefaultCategory
	}
	ts := b.stamp(b.now())
	item := &botapi.TrainingData{
		ID: b.newID(), Title: in.Title, Content: in.Content, Category: category,
		Tags: append([]string{}, in.Tags...), Active: in.Active,
		WordCount: len(strings.Fields(in.Content)), CreatedAt: ts, UpdatedAt: ts,
	}
	b.training[item.ID] = item

	out := *item
	return &out, nil
}

func (b *Backend) DeleteTrainingData(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.training[id]; !ok {
		return notFound(http.MethodDelete, "/api/training-data/"+id, "Datos de entrenamiento no encontrados")
	}
	delete(b.training, id)
	return nil
}

// UploadTrainingFile stores the file content as an active training entry
// titled after the file name, in the "upload" category.
func (b *Backend) UploadTrainingFile(ctx context.Context, filename string, r io.Reader) error {
	content, err := io.ReadAll(io.LimitReader(r, validation.MaxUploadBytes+1))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to read upload")
	}
	if err := validation.ValidateUpload(filename, int64(len(content))); err != nil {
		return err
	}

	_, err = b.CreateTrainingData(ctx, botapi.TrainingDataInput{
		Title:    filename,
		Content:  string(content),
		Category: "upload",
		Tags:     []string{},
		Active:   true,
	})
	return err
}

// GetAnalytics returns the fixed demo aggregate.
func (b *Backend) GetAnalytics(ctx context.Context) (*botapi.AnalyticsData, error) {
	if err := b.wait(ctx, AnalyticsLatency); err != nil {
		return nil, err
	}
	return Analytics(), nil
}

// Analytics is the demo aggregate served in offline mode.
func Analytics() *botapi.AnalyticsData {
	return &botapi.AnalyticsData{
		TotalContacts:   42,
		ActiveContacts:  38,
		TotalMessages:   1247,
		AIResponses:     892,
		ResponseRate:    89.5,
		AvgResponseTime: 2.3,
		TopContacts: []botapi.TopContact{
			{Name: "Juan Pérez", PhoneNumber: "+34123456789", MessageCount: 45},
			{Name: "María García", PhoneNumber: "+34987654321", MessageCount: 32},
			{Name: "Carlos López", PhoneNumber: "+34555666777", MessageCount: 28},
		},
		DailyStats: map[string]int{
			"2024-01-15": 45,
			"2024-01-16": 52,
			"2024-01-17": 38,
			"2024-01-18": 67,
			"2024-01-19": 43,
			"2024-01-20": 58,
			"2024-01-21": 71,
		},
	}
}

// Broadcast delivers to active contacts only, reporting the rest as failures.
func (b *Backend) Broadcast(ctx context.Context, contactIDs []string, message string) (*botapi.BroadcastResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validation.ValidateBroadcast(contactIDs, message); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	result := &botapi.BroadcastResult{Errors: []string{}}
	for _, id := range contactIDs {
		c, ok := b.contacts[id]
		switch {
		case !ok:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("Contacto %s no encontrado", id))
		case c.Status != botapi.StatusActive:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("Contacto %s no está activo", c.PhoneNumber))
		default:
			b.appendOutgoing(c, message)
			result.Successful++
		}
	}
	return result, nil
}

// TestAIResponse returns a canned reply; offline mode has no AI model.
func (b *Backend) TestAIResponse(ctx context.Context, contactID, message string) (*botapi.AIResponseTest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validation.ValidateMessageContent(message); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	c, ok := b.contacts[contactID]
	if !ok {
		return nil, contactNotFound(http.MethodPost, contactID)
	}
	return &botapi.AIResponseTest{
		OriginalMessage: message,
		AIResponse:      "Respuesta de ejemplo: el modo sin conexión no genera respuestas de IA.",
		ContactName:     c.DisplayName(),
	}, nil
}

func (b *Backend) Health(ctx context.Context) (*botapi.HealthStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &botapi.HealthStatus{Status: "healthy", Message: "Modo sin conexión", Version: "offline"}, nil
}

func cloneContact(c *botapi.Contact) botapi.Contact {
	out := *c
	out.Tags = append([]string{}, c.Tags...)
	return out
}

// lessID orders numeric ids numerically and falls back to string order.
func lessID(a, b string) bool {
	ai, errA := strconv.Atoi(a)
	bi, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return ai < bi
	}
	return a < b
}

func page[T any](items []T, skip, limit int) []T {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(items) {
		return []T{}
	}
	items = items[skip:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
