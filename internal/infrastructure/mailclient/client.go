// Package mailclient is the outbound HTTP client for the transactional
// mail provider: it implements mailqueue.Sender by rendering a task's
// template and POSTing it to the provider's send-email endpoint.
package mailclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	domainerrors "licensepay.backend/internal/domain/errors"
	"licensepay.backend/internal/infrastructure/mailqueue"
)

// Config holds the mail provider's base URL and sender identity.
type Config struct {
	BaseURL     string
	APIKey      string
	SenderEmail string
	SenderName  string
}

// Client is the Mail API client, satisfying mailqueue.Sender.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New builds a Client with a bounded per-request timeout.
func New(cfg Config) *Client {
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: 10 * time.Second}}
}

type sendEmailRequest struct {
	Sender      sender   `json:"sender"`
	To          []to     `json:"to"`
	Subject     string   `json:"subject"`
	HTMLContent string   `json:"htmlContent"`
	Tags        []string `json:"tags,omitempty"`
	ReplyTo     *sender  `json:"replyTo,omitempty"`
}

type sender struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type to struct {
	Email string `json:"email"`
}

type sendEmailResponse struct {
	MessageID string `json:"messageId"`
}

// Send renders task's template and POSTs it to /v3/smtp/email, returning
// the provider's message id. It returns an ExternalProviderError wrapping
// the transport/status failure; mailqueue re-enqueues the task on any error,
// up to its MaxRetries.
func (c *Client) Send(ctx context.Context, task mailqueue.Task) (string, error) {
	recipient := task.RefIDs[mailqueue.RefRecipient]
	if recipient == "" {
		return "", fmt.Errorf("mailclient: task %s has no recipient", task.ID)
	}

	subject, html, err := mailqueue.Render(task)
	if err != nil {
		return "", err
	}

	tags := []string{string(task.Type)}
	if ref := task.RefIDs[mailqueue.RefNotificationID]; ref != "" {
		tags = append(tags, ref)
	}

	body := sendEmailRequest{
		Sender:      sender{Email: c.cfg.SenderEmail, Name: c.cfg.SenderName},
		To:          []to{{Email: recipient}},
		Subject:     subject,
		HTMLContent: html,
		Tags:        tags,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("mailclient: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v3/smtp/email", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("mailclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domainerrors.ExternalProvider("mail API unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", domainerrors.ExternalProvider(fmt.Sprintf("mail API returned status %d", resp.StatusCode), nil)
	}

	var out sendEmailResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return out.MessageID, nil
}
