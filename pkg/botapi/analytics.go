package botapi

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"whatsbot/internal/validation"
)

func (c *Client) GetAnalytics(ctx context.Context) (*AnalyticsData, error) {
	var data AnalyticsData
	if err := c.getJSON(ctx, "/api/analytics", "/api/analytics", nil, &data); err != nil {
		return nil, err
	}
	if data.DailyStats == nil {
		data.DailyStats = map[string]int{}
	}
	return &data, nil
}

// Broadcast sends message to every listed contact. Per-recipient failures
// are reported in the result, not as an error.
func (c *Client) Broadcast(ctx context.Context, contactIDs []string, message string) (*BroadcastResult, error) {
	if err := validation.ValidateBroadcast(contactIDs, message); err != nil {
		return nil, err
	}

	payload := struct {
		ContactIDs []string `json:"contact_ids"`
		Message    string   `json:"message"`
	}{contactIDs, message}

	var result BroadcastResult
	err := c.sendJSON(ctx, http.MethodPost, "/api/broadcast", "/api/broadcast", payload, &result,
		logrus.Fields{"recipients": len(contactIDs), "message": message})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// TestAIResponse asks the backend for the reply the bot would give, without
// sending anything to the contact.
func (c *Client) TestAIResponse(ctx context.Context, contactID, message string) (*AIResponseTest, error) {
	if err := validation.ValidateID(contactID, "contact_id"); err != nil {
		return nil, err
	}
	if err := validation.ValidateMessageContent(message); err != nil {
		return nil, err
	}

	payload := struct {
		ContactID string `json:"contact_id"`
		Message   string `json:"message"`
	}{contactID, message}

	var result AIResponseTest
	err := c.sendJSON(ctx, http.MethodPost, "/api/test-ai-response", "/api/test-ai-response", payload, &result,
		logrus.Fields{"contact_id": contactID, "message": message})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var status HealthStatus
	if err := c.getJSON(ctx, "/health", "/health", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
