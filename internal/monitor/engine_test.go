package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/cloudmon/internal/model"
	"github.com/t77yq/cloudmon/internal/provider"
	"github.com/t77yq/cloudmon/internal/testutil"
)

// settableSource reports a single cpu_usage sample whose value can be
// changed between cycles
type settableSource struct {
	mu    sync.Mutex
	value float64
}

func (s *settableSource) Name() model.Provider { return model.ProviderAWS }

func (s *settableSource) Pull(ctx context.Context) ([]model.RawSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []model.RawSample{{
		ResourceType: model.ResourceTypeCompute,
		ResourceID:   "aws-instance-1",
		MetricName:   "cpu_usage",
		Value:        s.value,
		Unit:         "percent",
	}}, nil
}

func (s *settableSource) set(value float64) {
	s.mu.Lock()
	s.value = value
	s.mu.Unlock()
}

type engineFixture struct {
	engine *Engine
	source *settableSource
	email  *recordingChannel
}

func newEngineFixture(t *testing.T, interval time.Duration) *engineFixture {
	t.Helper()

	logger := zaptest.NewLogger(t)
	metrics := newMetricStore(t)
	alerts := newAlertStore(t)

	source := &settableSource{value: 95}
	email := &recordingChannel{}

	registry := NewRuleRegistry(alerts, logger)
	collector := NewCollector(metrics, []provider.Source{source}, 30*24*time.Hour, logger)
	evaluator := NewEvaluator(metrics, logger)
	lifecycle := NewLifecycleManager(alerts, registry, logger)
	dispatcher := NewDispatcher(map[string]NotificationChannel{"email": email}, logger)

	js, cleanup := testutil.StartJetStream(t)
	t.Cleanup(cleanup)

	engine := NewEngine(collector, registry, evaluator, lifecycle, dispatcher, alerts, js, interval, logger)

	// persist a rule up front so Load does not seed the defaults
	rule := cpuRule()
	rule.Channels = []string{"email"}
	require.NoError(t, registry.Upsert(context.Background(), rule))

	return &engineFixture{engine: engine, source: source, email: email}
}

func TestEngine_StartStop(t *testing.T) {
	f := newEngineFixture(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, f.engine.Start(ctx))
	assert.True(t, f.engine.Status().Running)

	// second Start is a no-op
	require.NoError(t, f.engine.Start(ctx))

	f.engine.Stop()
	assert.False(t, f.engine.Status().Running)

	// Stop on a stopped engine is a no-op
	f.engine.Stop()
}

func TestEngine_CycleTriggersAlert(t *testing.T) {
	f := newEngineFixture(t, 100*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, f.engine.Start(ctx))
	defer f.engine.Stop()

	require.Eventually(t, func() bool {
		return f.email.sent() >= 1
	}, 10*time.Second, 50*time.Millisecond, "cycle should trigger and notify")

	assert.Equal(t, model.AlertEventTriggered, f.email.lastEvent())

	open := f.engine.ActiveAlerts()
	require.Len(t, open, 1)
	assert.Equal(t, "rule-cpu", open[0].RuleID)
	assert.Equal(t, 1, f.engine.Status().ActiveAlerts)

	// the event also reached the ALERTS stream
	msgs, err := testutil.ConsumeMessages(f.engine.js, "alert.triggered", 2*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, msgs)

	var event model.AlertEvent
	require.NoError(t, json.Unmarshal(msgs[0], &event))
	assert.Equal(t, model.AlertEventTriggered, event.Type)
	assert.Equal(t, "rule-cpu", event.Alert.RuleID)

	// condition persists: the open alert suppresses further notifications
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, f.email.sent())
}

func TestEngine_CycleResolvesAlert(t *testing.T) {
	f := newEngineFixture(t, time.Hour)
	ctx := context.Background()

	// drive cycles by hand with a controlled clock
	now := time.Now().UTC()
	f.engine.now = func() time.Time { return now }

	require.NoError(t, f.engine.Start(ctx))
	defer f.engine.Stop()

	f.engine.runCycle(ctx)
	require.Equal(t, 1, f.email.sent())
	require.Equal(t, model.AlertEventTriggered, f.email.lastEvent())

	// metric drops far enough to pull the window mean below the threshold
	f.source.set(10)
	now = now.Add(time.Minute)
	f.engine.runCycle(ctx)

	require.Equal(t, 2, f.email.sent())
	assert.Equal(t, model.AlertEventResolved, f.email.lastEvent())
	assert.Empty(t, f.engine.ActiveAlerts())

	// recovered state stays quiet
	now = now.Add(time.Minute)
	f.engine.runCycle(ctx)
	assert.Equal(t, 2, f.email.sent())
}

func TestEngine_RuleCommands(t *testing.T) {
	f := newEngineFixture(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, f.engine.Start(ctx))
	defer f.engine.Stop()

	rule := cpuRule()
	rule.ID = "rule-mem"
	rule.Name = "High Memory Usage"
	rule.MetricName = "memory_usage"
	rule.Channels = []string{"email"}

	data, err := json.Marshal(rule)
	require.NoError(t, err)
	_, err = f.engine.js.Publish("rule.upsert", data)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := f.engine.GetRule("rule-mem")
		return err == nil
	}, 10*time.Second, 50*time.Millisecond, "published rule should reach the registry")

	id, err := json.Marshal("rule-mem")
	require.NoError(t, err)
	_, err = f.engine.js.Publish("rule.remove", id)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := f.engine.GetRule("rule-mem")
		return err != nil
	}, 10*time.Second, 50*time.Millisecond, "removed rule should leave the registry")
}
