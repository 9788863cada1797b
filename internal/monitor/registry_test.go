package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/cloudmon/internal/model"
)

func TestRuleRegistry_Upsert(t *testing.T) {
	registry := NewRuleRegistry(nil, zaptest.NewLogger(t))
	ctx := context.Background()

	rule := cpuRule()
	rule.ID = ""
	require.NoError(t, registry.Upsert(ctx, rule))
	require.NotEmpty(t, rule.ID)
	require.False(t, rule.CreatedAt.IsZero())

	got, err := registry.Get(rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "High CPU Usage", got.Name)

	// update keeps creation time and trigger time
	triggered := time.Now()
	registry.SetLastTriggered(ctx, rule.ID, triggered)

	update := cpuRule()
	update.ID = rule.ID
	update.Threshold = 90
	require.NoError(t, registry.Upsert(ctx, update))

	got, err = registry.Get(rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 90.0, got.Threshold)
	assert.Equal(t, rule.CreatedAt, got.CreatedAt)
	require.NotNil(t, got.LastTriggeredAt)
}

func TestRuleRegistry_UpsertInvalid(t *testing.T) {
	registry := NewRuleRegistry(nil, zaptest.NewLogger(t))
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*model.AlertRule)
	}{
		{"MissingName", func(r *model.AlertRule) { r.Name = "" }},
		{"MissingMetric", func(r *model.AlertRule) { r.MetricName = "" }},
		{"BadCondition", func(r *model.AlertRule) { r.Condition = "between" }},
		{"BadSeverity", func(r *model.AlertRule) { r.Severity = "urgent" }},
		{"ZeroWindow", func(r *model.AlertRule) { r.WindowMinutes = 0 }},
		{"NegativeCooldown", func(r *model.AlertRule) { r.CooldownMinutes = -1 }},
		{"EnabledWithoutChannels", func(r *model.AlertRule) { r.Channels = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := cpuRule()
			tt.mutate(rule)
			assert.Error(t, registry.Upsert(ctx, rule))
		})
	}

	// a disabled rule may have no channels
	rule := cpuRule()
	rule.Enabled = false
	rule.Channels = nil
	assert.NoError(t, registry.Upsert(ctx, rule))
}

func TestRuleRegistry_Remove(t *testing.T) {
	registry := NewRuleRegistry(nil, zaptest.NewLogger(t))
	ctx := context.Background()

	rule := cpuRule()
	require.NoError(t, registry.Upsert(ctx, rule))
	require.NoError(t, registry.Remove(ctx, rule.ID))

	_, err := registry.Get(rule.ID)
	assert.ErrorIs(t, err, ErrRuleNotFound)
	assert.ErrorIs(t, registry.Remove(ctx, rule.ID), ErrRuleNotFound)
}

func TestRuleRegistry_Counts(t *testing.T) {
	registry := NewRuleRegistry(nil, zaptest.NewLogger(t))
	ctx := context.Background()

	enabled := cpuRule()
	require.NoError(t, registry.Upsert(ctx, enabled))

	disabled := cpuRule()
	disabled.ID = "rule-cpu-disabled"
	disabled.Enabled = false
	require.NoError(t, registry.Upsert(ctx, disabled))

	assert.Equal(t, 2, registry.Count())
	assert.Equal(t, 1, registry.EnabledCount())
	assert.Len(t, registry.List(), 2)
}

func TestRuleRegistry_LoadSeedsDefaults(t *testing.T) {
	store := newAlertStore(t)
	registry := NewRuleRegistry(store, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, registry.Load(ctx))
	assert.Equal(t, len(model.DefaultRules()), registry.Count())

	// a fresh registry over the same store loads the persisted rules
	// instead of re-seeding
	registry2 := NewRuleRegistry(store, zaptest.NewLogger(t))
	require.NoError(t, registry2.Load(ctx))
	assert.Equal(t, registry.Count(), registry2.Count())
}

func TestRuleRegistry_WriteThrough(t *testing.T) {
	store := newAlertStore(t)
	registry := NewRuleRegistry(store, zaptest.NewLogger(t))
	ctx := context.Background()

	rule := cpuRule()
	require.NoError(t, registry.Upsert(ctx, rule))

	persisted, err := store.LoadRules(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, rule.ID, persisted[0].ID)

	require.NoError(t, registry.Remove(ctx, rule.ID))
	persisted, err = store.LoadRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, persisted)
}
