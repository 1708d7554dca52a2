package botapi

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"whatsbot/internal/validation"
)

// GetAIConfig returns the global AI configuration, or nil when none exists.
func (c *Client) GetAIConfig(ctx context.Context) (*AIConfig, error) {
	var cfg *AIConfig
	if err := c.getJSON(ctx, "/api/ai-config", "/api/ai-config", nil, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Client) CreateAIConfig(ctx context.Context, in AIConfigInput) (*AIConfig, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var cfg AIConfig
	err := c.sendJSON(ctx, http.MethodPost, "/api/ai-config", "/api/ai-config", in, &cfg,
		logrus.Fields{"contact_id": in.ContactID, "system_prompt": in.SystemPrompt})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Client) UpdateAIConfig(ctx context.Context, id string, update AIConfigUpdate) (*AIConfig, error) {
	if err := validation.ValidateID(id, "config_id"); err != nil {
		return nil, err
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	var cfg AIConfig
	err := c.sendJSON(ctx, http.MethodPut, "/api/ai-config/{id}", "/api/ai-config/"+pathID(id), update, &cfg,
		logrus.Fields{"config_id": id})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
