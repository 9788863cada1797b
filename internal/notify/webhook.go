package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/cloudmon/internal/model"
)

// WebhookConfig holds settings for the generic webhook channel
type WebhookConfig struct {
	URL     string
	Headers map[string]string
}

// WebhookChannel POSTs alert events as JSON to an arbitrary endpoint
type WebhookChannel struct {
	logger     *zap.Logger
	config     WebhookConfig
	httpClient *http.Client
}

// NewWebhookChannel creates a new generic webhook sender
func NewWebhookChannel(config WebhookConfig, logger *zap.Logger) *WebhookChannel {
	return &WebhookChannel{
		logger: logger.Named("webhook"),
		config: config,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type webhookPayload struct {
	Event model.AlertEventType `json:"event"`
	Alert *model.Alert         `json:"alert"`
}

// Send posts the alert event to the configured URL
func (c *WebhookChannel) Send(alert *model.Alert, event model.AlertEventType) error {
	data, err := json.Marshal(webhookPayload{Event: event, Alert: alert})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.config.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	c.logger.Debug("Webhook notification sent",
		zap.String("alert_id", alert.ID),
		zap.String("event", string(event)))
	return nil
}
