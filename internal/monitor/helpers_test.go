package monitor

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/cloudmon/internal/model"
	"github.com/t77yq/cloudmon/internal/storage"
)

func newMetricStore(t *testing.T) *storage.SQLiteMetricStore {
	t.Helper()

	store, err := storage.NewSQLiteMetricStore(zaptest.NewLogger(t), filepath.Join(t.TempDir(), "metrics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newAlertStore(t *testing.T) *storage.SQLiteAlertStore {
	t.Helper()

	store, err := storage.NewSQLiteAlertStore(zaptest.NewLogger(t), filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// cpuRule is the rule from the high-CPU scenario: gt 80 over 5 minutes
// with a 10 minute cooldown
func cpuRule() *model.AlertRule {
	return &model.AlertRule{
		ID:              "rule-cpu",
		Name:            "High CPU Usage",
		Description:     "CPU usage exceeds 80%",
		MetricName:      "cpu_usage",
		Condition:       model.ConditionGreaterThan,
		Threshold:       80,
		WindowMinutes:   5,
		Severity:        model.AlertSeverityHigh,
		Enabled:         true,
		Channels:        []string{"email", "slack"},
		CooldownMinutes: 10,
	}
}

// seedSamples appends count samples for a metric, evenly spread over the
// window ending at now, all with the same value
func seedSamples(t *testing.T, store storage.MetricStorage, metricName string, value float64, count int, now time.Time) {
	t.Helper()

	for i := 0; i < count; i++ {
		sample := &model.MetricSample{
			Provider:     model.ProviderAWS,
			ResourceType: model.ResourceTypeCompute,
			ResourceID:   "aws-instance-1",
			MetricName:   metricName,
			Value:        value,
			Unit:         "percent",
			Timestamp:    now.Add(-time.Duration(i) * 10 * time.Second),
		}
		require.NoError(t, store.Append(context.Background(), sample))
	}
}

// recordingChannel captures dispatched notifications
type recordingChannel struct {
	mu     sync.Mutex
	err    error
	alerts []*model.Alert
	events []model.AlertEventType
}

func (c *recordingChannel) Send(alert *model.Alert, event model.AlertEventType) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.alerts = append(c.alerts, alert)
	c.events = append(c.events, event)
	return nil
}

func (c *recordingChannel) sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

func (c *recordingChannel) lastEvent() model.AlertEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return ""
	}
	return c.events[len(c.events)-1]
}

// staticSource returns a fixed set of raw samples, or an error
type staticSource struct {
	name    model.Provider
	samples []model.RawSample
	err     error

	mu    sync.Mutex
	pulls int
}

func (s *staticSource) Name() model.Provider {
	return s.name
}

func (s *staticSource) Pull(ctx context.Context) ([]model.RawSample, error) {
	s.mu.Lock()
	s.pulls++
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	return s.samples, nil
}

func (s *staticSource) pullCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulls
}
