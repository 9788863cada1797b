package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/cloudmon/internal/model"
)

func dispatchAlert(channels []string) *model.Alert {
	return &model.Alert{
		ID:        "alert-1",
		RuleID:    "rule-1",
		RuleName:  "High CPU Usage",
		Message:   "High CPU Usage: CPU usage exceeds 80% (current: 92percent)",
		Severity:  model.AlertSeverityHigh,
		Status:    model.AlertStatusActive,
		CreatedAt: time.Now(),
		Channels:  channels,
	}
}

func TestDispatcher_FanOut(t *testing.T) {
	email := &recordingChannel{}
	slack := &recordingChannel{}
	dispatcher := NewDispatcher(map[string]NotificationChannel{
		"email": email,
		"slack": slack,
	}, zaptest.NewLogger(t))

	dispatcher.Dispatch(dispatchAlert([]string{"email", "slack"}), model.AlertEventTriggered)

	assert.Equal(t, 1, email.sent())
	assert.Equal(t, 1, slack.sent())
	assert.Equal(t, model.AlertEventTriggered, email.lastEvent())
}

func TestDispatcher_RespectsAlertChannels(t *testing.T) {
	email := &recordingChannel{}
	slack := &recordingChannel{}
	dispatcher := NewDispatcher(map[string]NotificationChannel{
		"email": email,
		"slack": slack,
	}, zaptest.NewLogger(t))

	dispatcher.Dispatch(dispatchAlert([]string{"email"}), model.AlertEventTriggered)

	assert.Equal(t, 1, email.sent())
	assert.Equal(t, 0, slack.sent())
}

func TestDispatcher_ChannelFailureIsIsolated(t *testing.T) {
	email := &recordingChannel{err: errors.New("smtp unreachable")}
	slack := &recordingChannel{}
	webhook := &recordingChannel{}
	dispatcher := NewDispatcher(map[string]NotificationChannel{
		"email":   email,
		"slack":   slack,
		"webhook": webhook,
	}, zaptest.NewLogger(t))

	dispatcher.Dispatch(dispatchAlert([]string{"email", "slack", "webhook"}), model.AlertEventTriggered)

	assert.Equal(t, 1, slack.sent(), "slack delivery must not be blocked by the email failure")
	assert.Equal(t, 1, webhook.sent())
}

func TestDispatcher_UnknownChannel(t *testing.T) {
	slack := &recordingChannel{}
	dispatcher := NewDispatcher(map[string]NotificationChannel{"slack": slack}, zaptest.NewLogger(t))

	// "pager" has no registered sender; dispatch logs and moves on
	dispatcher.Dispatch(dispatchAlert([]string{"pager", "slack"}), model.AlertEventResolved)

	assert.Equal(t, 1, slack.sent())
	assert.Equal(t, model.AlertEventResolved, slack.lastEvent())
}
