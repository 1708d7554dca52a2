package botapi

import (
	"fmt"
	"sort"

	"whatsbot/internal/validation"
)

// ContactStatus is the lifecycle state of a contact.
type ContactStatus string

const (
	StatusActive  ContactStatus = "active"
	StatusBlocked ContactStatus = "blocked"
	StatusPaused  ContactStatus = "paused"
)

// Valid reports whether s is one of the three known statuses.
func (s ContactStatus) Valid() bool {
	switch s {
	case StatusActive, StatusBlocked, StatusPaused:
		return true
	}
	return false
}

type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageAudio    MessageType = "audio"
	MessageVideo    MessageType = "video"
	MessageDocument MessageType = "document"
)

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Contact is a person the bot talks to. Timestamps are kept as the ISO-8601
// strings the backend sent; pkg/format parses them for display.
type Contact struct {
	ID            string        `json:"id"`
	PhoneNumber   string        `json:"phone_number"`
	Name          string        `json:"name,omitempty"`
	Email         string        `json:"email,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	Status        ContactStatus `json:"status"`
	AIEnabled     bool          `json:"ai_enabled"`
	Tags          []string      `json:"tags"`
	MessageCount  int           `json:"message_count"`
	CreatedAt     string        `json:"created_at"`
	UpdatedAt     string        `json:"updated_at"`
	LastMessageAt string        `json:"last_message_at,omitempty"`
}

// DisplayName returns the contact name, or the phone number when unnamed.
func (c Contact) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.PhoneNumber
}

// Validate checks the invariants a decoded contact must hold.
func (c Contact) Validate() error {
	if !c.Status.Valid() {
		return validation.InvalidValue("status", string(c.Status), "status must be active, blocked or paused")
	}
	if c.MessageCount < 0 {
		return validation.InvalidValue("message_count", fmt.Sprint(c.MessageCount), "message count cannot be negative")
	}
	return nil
}

// ContactInput is the body of a create request.
type ContactInput struct {
	PhoneNumber string        `json:"phone_number"`
	Name        string        `json:"name,omitempty"`
	Email       string        `json:"email,omitempty"`
	Notes       string        `json:"notes,omitempty"`
	Status      ContactStatus `json:"status,omitempty"`
	AIEnabled   bool          `json:"ai_enabled"`
	Tags        []string      `json:"tags"`
}

// Validate mirrors the backend's create constraints.
func (in ContactInput) Validate() error {
	if err := validation.ValidatePhoneNumber(in.PhoneNumber); err != nil {
		return err
	}
	if in.Status != "" && !in.Status.Valid() {
		return validation.InvalidValue("status", string(in.Status), "status must be active, blocked or paused")
	}
	if in.Email != "" {
		if err := validation.ValidateEmail(in.Email); err != nil {
			return err
		}
	}
	return validation.ValidateStringLength(in.Name, "name", 0, validation.MaxNameLength)
}

// ContactUpdate is a partial update; nil fields are left unchanged.
type ContactUpdate struct {
	Name      *string        `json:"name,omitempty"`
	Email     *string        `json:"email,omitempty"`
	Notes     *string        `json:"notes,omitempty"`
	Status    *ContactStatus `json:"status,omitempty"`
	AIEnabled *bool          `json:"ai_enabled,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
}

func (u ContactUpdate) Validate() error {
	if u.Status != nil && !u.Status.Valid() {
		return validation.InvalidValue("status", string(*u.Status), "status must be active, blocked or paused")
	}
	if u.Email != nil && *u.Email != "" {
		if err := validation.ValidateEmail(*u.Email); err != nil {
			return err
		}
	}
	if u.Name != nil {
		return validation.ValidateStringLength(*u.Name, "name", 0, validation.MaxNameLength)
	}
	return nil
}

// Message is one entry of a conversation.
type Message struct {
	ID              string                 `json:"id"`
	ContactID       string                 `json:"contact_id"`
	Content         string                 `json:"content"`
	MessageType     MessageType            `json:"message_type"`
	Direction       Direction              `json:"direction"`
	TwilioMessageID string                 `json:"twilio_message_id,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       string                 `json:"created_at"`
	Processed       bool                   `json:"processed"`
	AIResponseID    string                 `json:"ai_response_id,omitempty"`
}

// AIConfig tunes the bot's replies. An empty ContactID is the global config.
type AIConfig struct {
	ID               string  `json:"id"`
	ContactID        string  `json:"contact_id,omitempty"`
	ResponseDelayMin int     `json:"response_delay_min"`
	ResponseDelayMax int     `json:"response_delay_max"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	SystemPrompt     string  `json:"system_prompt,omitempty"`
	Enabled          bool    `json:"enabled"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// IsGlobal reports whether the config applies to every contact.
func (c AIConfig) IsGlobal() bool {
	return c.ContactID == ""
}

// AIConfigInput is the body of a create request.
type AIConfigInput struct {
	ContactID        string  `json:"contact_id,omitempty"`
	ResponseDelayMin int     `json:"response_delay_min"`
	ResponseDelayMax int     `json:"response_delay_max"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	SystemPrompt     string  `json:"system_prompt,omitempty"`
	Enabled          bool    `json:"enabled"`
}

// DefaultAIConfigInput returns the backend's defaults for a new config.
func DefaultAIConfigInput() AIConfigInput {
	return AIConfigInput{
		ResponseDelayMin: 2,
		ResponseDelayMax: 8,
		Temperature:      0.7,
		MaxTokens:        500,
		Enabled:          true,
	}
}

func (in AIConfigInput) Validate() error {
	return validation.ValidateAIConfig(in.ResponseDelayMin, in.ResponseDelayMax, in.Temperature, in.MaxTokens)
}

// AIConfigUpdate is a partial update; nil fields are left unchanged.
type AIConfigUpdate struct {
	ResponseDelayMin *int     `json:"response_delay_min,omitempty"`
	ResponseDelayMax *int     `json:"response_delay_max,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	SystemPrompt     *string  `json:"system_prompt,omitempty"`
	Enabled          *bool    `json:"enabled,omitempty"`
}

func (u AIConfigUpdate) Validate() error {
	if u.ResponseDelayMin != nil {
		if err := validation.ValidateNumericRange(*u.ResponseDelayMin, "response_delay_min", 0, validation.MaxResponseDelayMin); err != nil {
			return err
		}
	}
	if u.ResponseDelayMax != nil {
		if err := validation.ValidateNumericRange(*u.ResponseDelayMax, "response_delay_max", 0, validation.MaxResponseDelayMax); err != nil {
			return err
		}
	}
	if u.Temperature != nil {
		if err := validation.ValidateFloatRange(*u.Temperature, "temperature", 0, validation.MaxTemperature); err != nil {
			return err
		}
	}
	if u.MaxTokens != nil {
		return validation.ValidateNumericRange(*u.MaxTokens, "max_tokens", validation.MinMaxTokens, validation.MaxMaxTokens)
	}
	return nil
}

// TrainingData is a knowledge snippet the bot learns from.
type TrainingData struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Category  string   `json:"category"`
	Tags      []string `json:"tags"`
	Active    bool     `json:"active"`
	WordCount int      `json:"word_count"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

// DefaultCategory is applied when training data is created without one.
const DefaultCategory = "general"

// TrainingDataInput is the body of a create request.
type TrainingDataInput struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags"`
	Active   bool     `json:"active"`
}

func (in TrainingDataInput) Validate() error {
	if err := validation.ValidateStringLength(in.Title, "title", 1, validation.MaxTitleLength); err != nil {
		return err
	}
	return validation.ValidateStringLength(in.Content, "content", 1, validation.MaxContentLength)
}

// ConversationSummary condenses a conversation with one contact.
type ConversationSummary struct {
	ContactID string   `json:"contact_id"`
	Summary   string   `json:"summary"`
	KeyTopics []string `json:"key_topics"`
	Sentiment string   `json:"sentiment,omitempty"`
	CreatedAt string   `json:"created_at"`
}

// TopContact is one entry of the analytics leaderboard.
type TopContact struct {
	Name         string `json:"name,omitempty"`
	PhoneNumber  string `json:"phone_number"`
	MessageCount int    `json:"message_count"`
}

// AnalyticsData is the aggregate served by /api/analytics. ResponseRate is a
// percentage and AvgResponseTime is in seconds.
type AnalyticsData struct {
	TotalContacts   int            `json:"total_contacts"`
	ActiveContacts  int            `json:"active_contacts"`
	TotalMessages   int            `json:"total_messages"`
	AIResponses     int            `json:"ai_responses"`
	ResponseRate    float64        `json:"response_rate"`
	AvgResponseTime float64        `json:"avg_response_time"`
	TopContacts     []TopContact   `json:"top_contacts"`
	DailyStats      map[string]int `json:"daily_stats"`
}

// SortedDays returns the daily_stats keys in ascending order. Keys are
// YYYY-MM-DD so lexical order is date order.
func (a AnalyticsData) SortedDays() []string {
	days := make([]string, 0, len(a.DailyStats))
	for day := range a.DailyStats {
		days = append(days, day)
	}
	sort.Strings(days)
	return days
}

// BroadcastResult reports per-recipient delivery of a broadcast.
type BroadcastResult struct {
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors"`
}

// AIResponseTest is the dry-run reply produced by /api/test-ai-response.
type AIResponseTest struct {
	OriginalMessage string `json:"original_message"`
	AIResponse      string `json:"ai_response"`
	ContactName     string `json:"contact_name"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
}

// Healthy reports whether the backend declared itself healthy.
func (h HealthStatus) Healthy() bool {
	return h.Status == "healthy"
}

// StatusMessage is the generic {"message": ...} acknowledgement.
type StatusMessage struct {
	Message string `json:"message"`
}

// ListContactsParams filters GET /api/contacts. Zero values are omitted.
type ListContactsParams struct {
	Skip   int
	Limit  int
	Status ContactStatus
}

// PageParams paginates list endpoints. Zero values are omitted.
type PageParams struct {
	Skip  int
	Limit int
}
