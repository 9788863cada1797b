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

// RuleRegistry holds the set of alert rule definitions. It is safe for
// concurrent reads by the evaluation cycle and writes by configuration
// calls. When backed by an AlertStorage it loads rules on start and
// writes through on every mutation.
type RuleRegistry struct {
	logger *zap.Logger
	store  storage.AlertStorage
	mu     sync.RWMutex
	rules  map[string]*model.AlertRule
}

// NewRuleRegistry creates an empty registry. store may be nil for a
// purely in-memory registry.
func NewRuleRegistry(store storage.AlertStorage, logger *zap.Logger) *RuleRegistry {
	return &RuleRegistry{
		logger: logger.Named("rule-registry"),
		store:  store,
		rules:  make(map[string]*model.AlertRule),
	}
}

// Load populates the registry from persisted rules. When none exist the
// default rule set is seeded.
func (r *RuleRegistry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	rules, err := r.store.LoadRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	if len(rules) == 0 {
		for _, rule := range model.DefaultRules() {
			if err := r.Upsert(ctx, rule); err != nil {
				return fmt.Errorf("failed to seed default rule %s: %w", rule.ID, err)
			}
		}
		r.logger.Info("Seeded default alert rules", zap.Int("count", len(model.DefaultRules())))
		return nil
	}

	r.mu.Lock()
	for _, rule := range rules {
		r.rules[rule.ID] = rule
	}
	r.mu.Unlock()

	r.logger.Info("Loaded alert rules", zap.Int("count", len(rules)))
	return nil
}

// Upsert validates and inserts or replaces a rule
func (r *RuleRegistry) Upsert(ctx context.Context, rule *model.AlertRule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	r.mu.Lock()
	if existing, ok := r.rules[rule.ID]; ok {
		rule.CreatedAt = existing.CreatedAt
		// lastTriggeredAt is owned by the lifecycle manager, keep it
		// across configuration updates
		if rule.LastTriggeredAt == nil {
			rule.LastTriggeredAt = existing.LastTriggeredAt
		}
	}
	r.rules[rule.ID] = rule
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.SaveRule(ctx, rule); err != nil {
			r.logger.Error("Failed to persist rule",
				zap.String("rule_id", rule.ID),
				zap.Error(err))
		}
	}

	r.logger.Info("Rule upserted",
		zap.String("rule_id", rule.ID),
		zap.String("name", rule.Name),
		zap.Bool("enabled", rule.Enabled))
	return nil
}

// Remove deletes a rule by ID
func (r *RuleRegistry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.rules[id]
	if ok {
		delete(r.rules, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}

	if r.store != nil {
		if err := r.store.DeleteRule(ctx, id); err != nil {
			r.logger.Error("Failed to delete persisted rule",
				zap.String("rule_id", id),
				zap.Error(err))
		}
	}

	r.logger.Info("Rule removed", zap.String("rule_id", id))
	return nil
}

// Get returns a rule by ID
func (r *RuleRegistry) Get(id string) (*model.AlertRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return rule, nil
}

// List returns all rules
func (r *RuleRegistry) List() []*model.AlertRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := make([]*model.AlertRule, 0, len(r.rules))
	for _, rule := range r.rules {
		rules = append(rules, rule)
	}
	return rules
}

// EnabledCount returns the number of enabled rules
func (r *RuleRegistry) EnabledCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, rule := range r.rules {
		if rule.Enabled {
			count++
		}
	}
	return count
}

// Count returns the total number of rules
func (r *RuleRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// SetLastTriggered records the trigger time for a rule. Called only by
// the lifecycle manager.
func (r *RuleRegistry) SetLastTriggered(ctx context.Context, id string, t time.Time) {
	r.mu.Lock()
	rule, ok := r.rules[id]
	if ok {
		triggered := t
		rule.LastTriggeredAt = &triggered
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	if r.store != nil {
		if err := r.store.SaveRule(ctx, rule); err != nil {
			r.logger.Error("Failed to persist rule trigger time",
				zap.String("rule_id", id),
				zap.Error(err))
		}
	}
}
