package monitor

import (
	"go.uber.org/zap"

	"github.com/t77yq/cloudmon/internal/model"
)

// NotificationChannel represents a channel for sending alert notifications
type NotificationChannel interface {
	Send(alert *model.Alert, event model.AlertEventType) error
}

// Dispatcher fans lifecycle events out to the channels configured on
// the alert. Delivery is best-effort: a failing channel is logged and
// never affects the other channels or the alert's state.
type Dispatcher struct {
	logger   *zap.Logger
	channels map[string]NotificationChannel
}

// NewDispatcher creates a dispatcher over the given channel senders,
// keyed by channel name (email, slack, webhook, ...)
func NewDispatcher(channels map[string]NotificationChannel, logger *zap.Logger) *Dispatcher {
	if channels == nil {
		channels = make(map[string]NotificationChannel)
	}
	return &Dispatcher{
		logger:   logger.Named("dispatcher"),
		channels: channels,
	}
}

// RegisterChannel adds or replaces a channel sender. Not safe for use
// concurrently with Dispatch; register channels before starting the engine.
func (d *Dispatcher) RegisterChannel(name string, channel NotificationChannel) {
	d.channels[name] = channel
}

// Dispatch sends the event to every channel configured on the alert
func (d *Dispatcher) Dispatch(alert *model.Alert, event model.AlertEventType) {
	for _, name := range alert.Channels {
		channel, ok := d.channels[name]
		if !ok {
			d.logger.Warn("No sender registered for channel",
				zap.String("channel", name),
				zap.String("alert_id", alert.ID))
			continue
		}

		if err := channel.Send(alert, event); err != nil {
			d.logger.Error("Failed to send notification",
				zap.String("channel", name),
				zap.String("alert_id", alert.ID),
				zap.String("event", string(event)),
				zap.Error(err))
			continue
		}

		d.logger.Info("Notification sent",
			zap.String("channel", name),
			zap.String("alert_id", alert.ID),
			zap.String("event", string(event)))
	}
}
