package botapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"whatsbot/internal/constants"
	"whatsbot/internal/validation"
)

// ListContacts returns contacts, optionally filtered by status.
func (c *Client) ListContacts(ctx context.Context, params ListContactsParams) ([]Contact, error) {
	if params.Status != "" && !params.Status.Valid() {
		return nil, validation.InvalidValue("status", string(params.Status), "status must be active, blocked or paused")
	}

	q := pageQuery(params.Skip, params.Limit)
	if params.Status != "" {
		q.Set("status", string(params.Status))
	}

	var contacts []Contact
	if err := c.getJSON(ctx, "/api/contacts", "/api/contacts", q, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

func (c *Client) GetContact(ctx context.Context, id string) (*Contact, error) {
	if err := validation.ValidateID(id, "contact_id"); err != nil {
		return nil, err
	}

	var contact Contact
	if err := c.getJSON(ctx, "/api/contacts/{id}", "/api/contacts/"+pathID(id), nil, &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}

func (c *Client) CreateContact(ctx context.Context, in ContactInput) (*Contact, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.Tags == nil {
		in.Tags = []string{}
	}

	var contact Contact
	err := c.sendJSON(ctx, http.MethodPost, "/api/contacts", "/api/contacts", in, &contact,
		logrus.Fields{"phone_number": in.PhoneNumber})
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

func (c *Client) UpdateContact(ctx context.Context, id string, update ContactUpdate) (*Contact, error) {
	if err := validation.ValidateID(id, "contact_id"); err != nil {
		return nil, err
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	var contact Contact
	err := c.sendJSON(ctx, http.MethodPut, "/api/contacts/{id}", "/api/contacts/"+pathID(id), update, &contact,
		logrus.Fields{"contact_id": id})
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

func (c *Client) DeleteContact(ctx context.Context, id string) error {
	if err := validation.ValidateID(id, "contact_id"); err != nil {
		return err
	}
	return c.sendJSON(ctx, http.MethodDelete, "/api/contacts/{id}", "/api/contacts/"+pathID(id), nil, nil,
		logrus.Fields{"contact_id": id})
}

// ListMessages returns the conversation history of a contact. A limit of
// zero or less uses the backend default of 50.
func (c *Client) ListMessages(ctx context.Context, contactID string, limit int) ([]Message, error) {
	if err := validation.ValidateID(contactID, "contact_id"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = constants.DefaultMessagesLimit
	}

	q := url.Values{"limit": {fmt.Sprint(limit)}}
	var messages []Message
	err := c.getJSON(ctx, "/api/contacts/{id}/messages", "/api/contacts/"+pathID(contactID)+"/messages", q, &messages)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// SendMessage sends a manual message to a contact through the bot's number.
func (c *Client) SendMessage(ctx context.Context, contactID, content string) error {
	if err := validation.ValidateID(contactID, "contact_id"); err != nil {
		return err
	}
	if err := validation.ValidateMessageContent(content); err != nil {
		return err
	}

	payload := map[string]string{"content": content}
	return c.sendJSON(ctx, http.MethodPost, "/api/contacts/{id}/messages", "/api/contacts/"+pathID(contactID)+"/messages",
		payload, nil, logrus.Fields{"contact_id": contactID, "content": content})
}

// GetContactAIConfig returns the contact's AI override, or nil when the
// contact uses the global config.
func (c *Client) GetContactAIConfig(ctx context.Context, contactID string) (*AIConfig, error) {
	if err := validation.ValidateID(contactID, "contact_id"); err != nil {
		return nil, err
	}

	var cfg *AIConfig
	err := c.getJSON(ctx, "/api/contacts/{id}/ai-config", "/api/contacts/"+pathID(contactID)+"/ai-config", nil, &cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Client) ListSummaries(ctx context.Context, contactID string) ([]ConversationSummary, error) {
	if err := validation.ValidateID(contactID, "contact_id"); err != nil {
		return nil, err
	}

	var summaries []ConversationSummary
	err := c.getJSON(ctx, "/api/contacts/{id}/summaries", "/api/contacts/"+pathID(contactID)+"/summaries", nil, &summaries)
	if err != nil {
		return nil, err
	}
	return summaries, nil
}
