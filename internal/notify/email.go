package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/t77yq/cloudmon/internal/model"
)

// EmailConfig holds SMTP settings for the email channel
type EmailConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
}

// EmailChannel delivers alert notifications over SMTP
type EmailChannel struct {
	logger *zap.Logger
	config EmailConfig
}

// NewEmailChannel creates a new email channel sender
func NewEmailChannel(config EmailConfig, logger *zap.Logger) *EmailChannel {
	return &EmailChannel{
		logger: logger.Named("email"),
		config: config,
	}
}

// Send delivers the alert event to all configured recipients
func (c *EmailChannel) Send(alert *model.Alert, event model.AlertEventType) error {
	if len(c.config.Recipients) == 0 {
		return fmt.Errorf("no email recipients configured")
	}

	subject := fmt.Sprintf("[%s] Alert %s: %s", strings.ToUpper(string(alert.Severity)), event, alert.RuleName)
	msg := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n",
		c.config.From,
		strings.Join(c.config.Recipients, ", "),
		subject,
		alert.Message)

	auth := smtp.PlainAuth("", c.config.Username, c.config.Password, c.config.Host)
	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)

	if err := smtp.SendMail(addr, auth, c.config.From, c.config.Recipients, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	c.logger.Debug("Email notification sent",
		zap.String("alert_id", alert.ID),
		zap.Int("recipients", len(c.config.Recipients)))
	return nil
}
