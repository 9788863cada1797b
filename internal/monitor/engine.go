package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/t77yq/cloudmon/internal/model"
	"github.com/t77yq/cloudmon/internal/storage"
)

// EngineStatus is a point-in-time summary of the engine
type EngineStatus struct {
	Running      bool `json:"running"`
	ActiveAlerts int  `json:"active_alerts"`
	TotalRules   int  `json:"total_rules"`
	EnabledRules int  `json:"enabled_rules"`
}

// Engine drives the monitoring loop: each cycle collects metrics from
// all providers, evaluates every enabled rule and dispatches the
// lifecycle events that evaluation produced. Cycles never overlap; a
// slow cycle delays the next tick.
type Engine struct {
	logger     *zap.Logger
	js         nats.JetStreamContext
	collector  *Collector
	registry   *RuleRegistry
	evaluator  *Evaluator
	lifecycle  *LifecycleManager
	dispatcher *Dispatcher
	alerts     storage.AlertStorage
	interval   time.Duration
	now        func() time.Time

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
	subs    []*nats.Subscription
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// NewEngine wires the monitoring components together. js may be nil to
// run without the event stream; alerts may be nil to run without
// durable alert history.
func NewEngine(
	collector *Collector,
	registry *RuleRegistry,
	evaluator *Evaluator,
	lifecycle *LifecycleManager,
	dispatcher *Dispatcher,
	alerts storage.AlertStorage,
	js nats.JetStreamContext,
	interval time.Duration,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		logger:     logger.Named("engine"),
		js:         js,
		collector:  collector,
		registry:   registry,
		evaluator:  evaluator,
		lifecycle:  lifecycle,
		dispatcher: dispatcher,
		alerts:     alerts,
		interval:   interval,
		now:        time.Now,
	}
}

// Start begins periodic collection and evaluation. Calling Start on a
// running engine is a no-op with a warning.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		e.logger.Warn("Start called on running engine", zap.Error(ErrAlreadyRunning))
		return nil
	}

	if err := e.registry.Load(ctx); err != nil {
		return err
	}
	if err := e.lifecycle.Load(ctx); err != nil {
		return err
	}

	if e.js != nil {
		if err := e.ensureStream("ALERTS", "alert.*"); err != nil {
			return err
		}
		if err := e.ensureStream("RULES", "rule.*"); err != nil {
			return err
		}
		if err := e.subscribeToRuleCommands(ctx); err != nil {
			return err
		}
	}

	cl := &cronLogger{logger: e.logger.Named("cron")}
	e.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cl),
		cron.Recover(cl),
	))

	if _, err := e.cron.AddFunc(fmt.Sprintf("@every %s", e.interval), func() {
		e.runCycle(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule collection cycle: %w", err)
	}

	e.cron.Start()
	e.running = true

	e.logger.Info("Monitoring engine started",
		zap.Duration("interval", e.interval),
		zap.Int("rules", e.registry.Count()))
	return nil
}

// Stop cancels the timer and waits for any in-flight cycle to complete
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	for _, sub := range e.subs {
		sub.Unsubscribe()
	}
	e.subs = nil

	stopCtx := e.cron.Stop()
	<-stopCtx.Done()

	e.running = false
	e.logger.Info("Monitoring engine stopped")
}

// ensureStream creates a JetStream stream if it doesn't exist yet
func (e *Engine) ensureStream(name, subject string) error {
	_, err := e.js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	_, err = e.js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: []string{subject},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s stream: %w", name, err)
	}
	return nil
}

// subscribeToRuleCommands lets external configuration publish rule
// changes instead of calling the engine in-process
func (e *Engine) subscribeToRuleCommands(ctx context.Context) error {
	sub, err := e.js.Subscribe("rule.upsert", func(msg *nats.Msg) {
		var rule model.AlertRule
		if err := json.Unmarshal(msg.Data, &rule); err != nil {
			e.logger.Error("Failed to unmarshal rule", zap.Error(err))
			return
		}
		if err := e.registry.Upsert(ctx, &rule); err != nil {
			e.logger.Error("Failed to upsert rule", zap.Error(err))
		}
	}, nats.Durable("rule-upsert-consumer"))
	if err != nil {
		return fmt.Errorf("failed to subscribe to rule.upsert: %w", err)
	}
	e.subs = append(e.subs, sub)

	sub, err = e.js.Subscribe("rule.remove", func(msg *nats.Msg) {
		var id string
		if err := json.Unmarshal(msg.Data, &id); err != nil {
			e.logger.Error("Failed to unmarshal rule ID", zap.Error(err))
			return
		}
		if err := e.registry.Remove(ctx, id); err != nil {
			e.logger.Error("Failed to remove rule", zap.Error(err))
		}
	}, nats.Durable("rule-remove-consumer"))
	if err != nil {
		return fmt.Errorf("failed to subscribe to rule.remove: %w", err)
	}
	e.subs = append(e.subs, sub)

	return nil
}

// runCycle performs one collect-evaluate-dispatch pass. Errors inside a
// cycle are logged and isolated; the next tick always runs.
func (e *Engine) runCycle(ctx context.Context) {
	now := e.now()

	e.collector.CollectAll(ctx, now)

	var wg sync.WaitGroup
	for _, rule := range e.registry.List() {
		if !rule.Enabled {
			continue
		}
		wg.Add(1)
		go func(rule *model.AlertRule) {
			defer wg.Done()
			e.evaluateRule(ctx, rule, now)
		}(rule)
	}
	wg.Wait()
}

// evaluateRule evaluates one rule and dispatches any lifecycle event
func (e *Engine) evaluateRule(ctx context.Context, rule *model.AlertRule, now time.Time) {
	met, sample, err := e.evaluator.Evaluate(ctx, rule, now)
	if err != nil {
		e.logger.Error("Rule evaluation failed",
			zap.String("rule_id", rule.ID),
			zap.Error(err))
		return
	}

	event, err := e.lifecycle.Apply(ctx, rule, met, sample, now)
	if err != nil {
		e.logger.Error("Lifecycle transition failed",
			zap.String("rule_id", rule.ID),
			zap.Error(err))
		return
	}
	if event == nil {
		return
	}

	e.publishEvent(event)
	e.dispatcher.Dispatch(event.Alert, event.Type)
}

// publishEvent writes the lifecycle event to the ALERTS stream for
// external consumers. Best-effort only.
func (e *Engine) publishEvent(event *model.AlertEvent) {
	if e.js == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("Failed to marshal alert event", zap.Error(err))
		return
	}

	if _, err := e.js.Publish("alert."+string(event.Type), data); err != nil {
		e.logger.Error("Failed to publish alert event",
			zap.String("event", string(event.Type)),
			zap.Error(err))
	}
}

// UpsertRule adds or updates an alert rule
func (e *Engine) UpsertRule(ctx context.Context, rule *model.AlertRule) error {
	return e.registry.Upsert(ctx, rule)
}

// RemoveRule deletes an alert rule
func (e *Engine) RemoveRule(ctx context.Context, id string) error {
	return e.registry.Remove(ctx, id)
}

// GetRule returns a rule by ID
func (e *Engine) GetRule(id string) (*model.AlertRule, error) {
	return e.registry.Get(id)
}

// ListRules returns all configured rules
func (e *Engine) ListRules() []*model.AlertRule {
	return e.registry.List()
}

// ActiveAlerts returns all currently open alerts
func (e *Engine) ActiveAlerts() []*model.Alert {
	return e.lifecycle.ActiveAlerts()
}

// AlertHistory returns persisted alerts matching the filter
func (e *Engine) AlertHistory(ctx context.Context, filter storage.AlertFilter) ([]*model.Alert, error) {
	if e.alerts == nil {
		return nil, nil
	}
	return e.alerts.ListAlerts(ctx, filter)
}

// Acknowledge marks an active alert as acknowledged by a user
func (e *Engine) Acknowledge(ctx context.Context, alertID, userID string) error {
	return e.lifecycle.Acknowledge(ctx, alertID, userID)
}

// Status returns a summary of the engine state
func (e *Engine) Status() EngineStatus {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()

	return EngineStatus{
		Running:      running,
		ActiveAlerts: e.lifecycle.ActiveCount(),
		TotalRules:   e.registry.Count(),
		EnabledRules: e.registry.EnabledCount(),
	}
}
