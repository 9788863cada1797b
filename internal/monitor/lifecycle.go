package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/cloudmon/internal/model"
	"github.com/t77yq/cloudmon/internal/storage"
)

// LifecycleManager owns the per-rule alert state machine: it opens an
// alert when a rule's condition transitions false→true (respecting the
// cooldown), resolves it on true→false, and handles explicit
// acknowledgement. At most one open (active or acknowledged) alert
// exists per rule; all transitions for a rule are serialized.
type LifecycleManager struct {
	logger   *zap.Logger
	store    storage.AlertStorage
	registry *RuleRegistry

	mu         sync.Mutex
	locks      map[string]*sync.Mutex // per-rule transition locks
	openByRule map[string]*model.Alert
	openByID   map[string]*model.Alert
}

// NewLifecycleManager creates a new lifecycle manager. store may be nil
// when durability is not wanted.
func NewLifecycleManager(store storage.AlertStorage, registry *RuleRegistry, logger *zap.Logger) *LifecycleManager {
	return &LifecycleManager{
		logger:     logger.Named("lifecycle"),
		store:      store,
		registry:   registry,
		locks:      make(map[string]*sync.Mutex),
		openByRule: make(map[string]*model.Alert),
		openByID:   make(map[string]*model.Alert),
	}
}

// Load restores open alerts from storage after a restart
func (m *LifecycleManager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	restore := func(status model.AlertStatus) error {
		alerts, err := m.store.ListAlerts(ctx, storage.AlertFilter{Status: status, Limit: 1000})
		if err != nil {
			return fmt.Errorf("failed to load %s alerts: %w", status, err)
		}
		m.mu.Lock()
		for _, alert := range alerts {
			m.openByRule[alert.RuleID] = alert
			m.openByID[alert.ID] = alert
		}
		m.mu.Unlock()
		return nil
	}

	if err := restore(model.AlertStatusActive); err != nil {
		return err
	}
	if err := restore(model.AlertStatusAcknowledged); err != nil {
		return err
	}

	if n := m.ActiveCount(); n > 0 {
		m.logger.Info("Restored open alerts", zap.Int("count", n))
	}
	return nil
}

// ruleLock returns the transition lock for a rule, creating it on first use
func (m *LifecycleManager) ruleLock(ruleID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[ruleID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[ruleID] = lock
	}
	return lock
}

// Apply feeds one evaluation result into the state machine and returns
// the lifecycle event it produced, if any. The common steady-state case
// (no open alert, condition false) does no work.
func (m *LifecycleManager) Apply(ctx context.Context, rule *model.AlertRule, conditionMet bool, sample *model.MetricSample, now time.Time) (*model.AlertEvent, error) {
	lock := m.ruleLock(rule.ID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	open := m.openByRule[rule.ID]
	m.mu.Unlock()

	if conditionMet {
		if open != nil {
			// an open alert already exists; cooldown gates re-triggering
			// while resolved, never a second open alert
			return nil, nil
		}
		if rule.LastTriggeredAt != nil && now.Sub(*rule.LastTriggeredAt) <= rule.Cooldown() {
			m.logger.Debug("Trigger suppressed by cooldown",
				zap.String("rule_id", rule.ID),
				zap.Time("last_triggered", *rule.LastTriggeredAt))
			return nil, nil
		}
		return m.trigger(ctx, rule, sample, now), nil
	}

	if open != nil {
		return m.resolve(ctx, rule, open, now), nil
	}

	return nil, nil
}

// trigger opens a new alert for the rule
func (m *LifecycleManager) trigger(ctx context.Context, rule *model.AlertRule, sample *model.MetricSample, now time.Time) *model.AlertEvent {
	message := rule.Name
	if sample != nil {
		message = fmt.Sprintf("%s: %s (current: %g%s)", rule.Name, rule.Description, sample.Value, sample.Unit)
	}

	alert := &model.Alert{
		ID:               uuid.New().String(),
		RuleID:           rule.ID,
		RuleName:         rule.Name,
		Message:          message,
		Severity:         rule.Severity,
		Status:           model.AlertStatusActive,
		CreatedAt:        now,
		TriggeringSample: sample,
		Channels:         append([]string(nil), rule.Channels...),
	}

	m.mu.Lock()
	m.openByRule[rule.ID] = alert
	m.openByID[alert.ID] = alert
	m.mu.Unlock()

	m.registry.SetLastTriggered(ctx, rule.ID, now)

	if m.store != nil {
		if err := m.store.StoreAlert(ctx, alert); err != nil {
			m.logger.Error("Failed to persist alert",
				zap.String("alert_id", alert.ID),
				zap.Error(err))
		}
	}

	m.logger.Warn("Alert triggered",
		zap.String("alert_id", alert.ID),
		zap.String("rule_id", rule.ID),
		zap.String("severity", string(alert.Severity)),
		zap.String("message", alert.Message))

	return &model.AlertEvent{Type: model.AlertEventTriggered, Alert: alert, Timestamp: now}
}

// resolve closes the open alert for the rule. Resolution is independent
// of the cooldown, which only gates triggering.
func (m *LifecycleManager) resolve(ctx context.Context, rule *model.AlertRule, alert *model.Alert, now time.Time) *model.AlertEvent {
	resolvedAt := now
	alert.Status = model.AlertStatusResolved
	alert.ResolvedAt = &resolvedAt

	m.mu.Lock()
	delete(m.openByRule, rule.ID)
	delete(m.openByID, alert.ID)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.UpdateAlert(ctx, alert); err != nil {
			m.logger.Error("Failed to persist alert resolution",
				zap.String("alert_id", alert.ID),
				zap.Error(err))
		}
	}

	m.logger.Info("Alert resolved",
		zap.String("alert_id", alert.ID),
		zap.String("rule_id", rule.ID))

	return &model.AlertEvent{Type: model.AlertEventResolved, Alert: alert, Timestamp: now}
}

// Acknowledge marks an open active alert as acknowledged by a user.
// Returns ErrAlertNotFound when no matching active alert exists.
func (m *LifecycleManager) Acknowledge(ctx context.Context, alertID, userID string) error {
	m.mu.Lock()
	alert, ok := m.openByID[alertID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrAlertNotFound, alertID)
	}

	lock := m.ruleLock(alert.RuleID)
	lock.Lock()
	defer lock.Unlock()

	// re-check under the rule lock: a concurrent resolve may have won
	m.mu.Lock()
	alert, ok = m.openByID[alertID]
	m.mu.Unlock()
	if !ok || alert.Status != model.AlertStatusActive {
		return fmt.Errorf("%w: %s", ErrAlertNotFound, alertID)
	}

	acknowledgedAt := time.Now()
	alert.Status = model.AlertStatusAcknowledged
	alert.AcknowledgedAt = &acknowledgedAt
	alert.AcknowledgedBy = userID

	if m.store != nil {
		if err := m.store.UpdateAlert(ctx, alert); err != nil {
			m.logger.Error("Failed to persist alert acknowledgement",
				zap.String("alert_id", alert.ID),
				zap.Error(err))
		}
	}

	m.logger.Info("Alert acknowledged",
		zap.String("alert_id", alert.ID),
		zap.String("user", userID))
	return nil
}

// ActiveAlerts returns a snapshot of all open alerts
func (m *LifecycleManager) ActiveAlerts() []*model.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	alerts := make([]*model.Alert, 0, len(m.openByRule))
	for _, alert := range m.openByRule {
		alerts = append(alerts, alert)
	}
	return alerts
}

// ActiveCount returns the number of open alerts
func (m *LifecycleManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.openByRule)
}
