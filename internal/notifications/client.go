// Package notifications sends transactional email through the platform's
// notification service. Sends are fire-and-forget at call sites: failures
// are logged, never propagated into payment flows.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-payments-service/internal/config"
	"github.com/cardhaven/cardhaven-payments-service/internal/logging"
)

// Sender delivers one email.
type Sender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Ensure HTTPClient implements Sender
var _ Sender = (*HTTPClient)(nil)

// HTTPClient implements Sender against the notification service's REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewHTTPClient creates a notification client from config.
func NewHTTPClient(cfg config.ServiceConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logging.NewLogger("notification-client"),
	}
}

// SendEmail posts one email to the notification service.
func (c *HTTPClient) SendEmail(ctx context.Context, to, subject, body string) error {
	payload := map[string]string{
		"to":      to,
		"subject": subject,
		"body":    body,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/v1/notifications/email", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Errorw("Failed to send email", "to", to, "error", err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("notification service returned status %d", resp.StatusCode)
	}

	c.logger.Infow("Email sent", "to", to, "subject", subject)
	return nil
}

// MockSender records emails for tests.
type MockSender struct {
	Emails []MockEmail
	Err    error
}

// MockEmail is one recorded send.
type MockEmail struct {
	To      string
	Subject string
	Body    string
}

func (m *MockSender) SendEmail(ctx context.Context, to, subject, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Emails = append(m.Emails, MockEmail{To: to, Subject: subject, Body: body})
	return nil
}
