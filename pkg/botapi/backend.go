// Package botapi is a typed client for the WhatsApp bot management backend.
//
// Every operation maps to exactly one HTTP request. The client never
// retries; retry and caching belong to the caller (see internal/query).
// Non-2xx responses surface as *errors.AppError values that carry the HTTP
// status, the backend's detail message and whether a retry may succeed.
package botapi

import (
	"context"
	"io"
)

// Backend is the full set of operations the bot backend exposes. *Client
// talks to a live backend; offline.Backend serves fixtures.
type Backend interface {
	ListContacts(ctx context.Context, params ListContactsParams) ([]Contact, error)
	GetContact(ctx context.Context, id string) (*Contact, error)
	CreateContact(ctx context.Context, in ContactInput) (*Contact, error)
	UpdateContact(ctx context.Context, id string, update ContactUpdate) (*Contact, error)
	DeleteContact(ctx context.Context, id string) error
	ListMessages(ctx context.Context, contactID string, limit int) ([]Message, error)
	SendMessage(ctx context.Context, contactID, content string) error
	GetContactAIConfig(ctx context.Context, contactID string) (*AIConfig, error)
	ListSummaries(ctx context.Context, contactID string) ([]ConversationSummary, error)

	GetAIConfig(ctx context.Context) (*AIConfig, error)
	CreateAIConfig(ctx context.Context, in AIConfigInput) (*AIConfig, error)
	UpdateAIConfig(ctx context.Context, id string, update AIConfigUpdate) (*AIConfig, error)

	ListTrainingData(ctx context.Context, params PageParams) ([]TrainingData, error)
	CreateTrainingData(ctx context.Context, in TrainingDataInput) (*TrainingData, error)
	DeleteTrainingData(ctx context.Context, id string) error
	UploadTrainingFile(ctx context.Context, filename string, r io.Reader) error

	GetAnalytics(ctx context.Context) (*AnalyticsData, error)
	Broadcast(ctx context.Context, contactIDs []string, message string) (*BroadcastResult, error)
	TestAIResponse(ctx context.Context, contactID, message string) (*AIResponseTest, error)
	Health(ctx context.Context) (*HealthStatus, error)
}

var _ Backend = (*Client)(nil)
