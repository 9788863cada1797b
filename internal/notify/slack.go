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

// SlackConfig holds incoming-webhook settings for the Slack channel
type SlackConfig struct {
	WebhookURL string
	Channel    string
}

// SlackChannel delivers alert notifications to a Slack incoming webhook
type SlackChannel struct {
	logger     *zap.Logger
	config     SlackConfig
	httpClient *http.Client
}

// NewSlackChannel creates a new Slack channel sender
func NewSlackChannel(config SlackConfig, logger *zap.Logger) *SlackChannel {
	return &SlackChannel{
		logger: logger.Named("slack"),
		config: config,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type slackAttachment struct {
	Color  string `json:"color"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Footer string `json:"footer"`
	Ts     int64  `json:"ts"`
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

// Send posts the alert event to the configured webhook
func (c *SlackChannel) Send(alert *model.Alert, event model.AlertEventType) error {
	msg := slackMessage{
		Channel: c.config.Channel,
		Attachments: []slackAttachment{{
			Color:  slackColor(alert.Severity, event),
			Title:  fmt.Sprintf("Alert %s: %s", event, alert.RuleName),
			Text:   alert.Message,
			Footer: fmt.Sprintf("severity: %s", alert.Severity),
			Ts:     alert.CreatedAt.Unix(),
		}},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	resp, err := c.httpClient.Post(c.config.WebhookURL, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("slack webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	c.logger.Debug("Slack notification sent", zap.String("alert_id", alert.ID))
	return nil
}

func slackColor(severity model.AlertSeverity, event model.AlertEventType) string {
	if event == model.AlertEventResolved {
		return "good"
	}
	switch severity {
	case model.AlertSeverityCritical, model.AlertSeverityHigh:
		return "danger"
	case model.AlertSeverityMedium:
		return "warning"
	default:
		return "#439FE0"
	}
}
