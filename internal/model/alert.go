package model

import (
	"fmt"
	"time"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "low"
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityCritical AlertSeverity = "critical"
)

// AlertCondition is the comparison applied between the aggregated
// metric value and the rule threshold
type AlertCondition string

const (
	ConditionGreaterThan  AlertCondition = "gt"
	ConditionLessThan     AlertCondition = "lt"
	ConditionEqual        AlertCondition = "eq"
	ConditionGreaterEqual AlertCondition = "gte"
	ConditionLessEqual    AlertCondition = "lte"
)

// AlertStatus represents the lifecycle state of an alert
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// AlertEventType distinguishes lifecycle events handed to the dispatcher
type AlertEventType string

const (
	AlertEventTriggered AlertEventType = "triggered"
	AlertEventResolved  AlertEventType = "resolved"
)

// AlertRule defines a threshold rule evaluated against a sliding
// window of metric samples
type AlertRule struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	MetricName      string         `json:"metric_name"`
	Condition       AlertCondition `json:"condition"`
	Threshold       float64        `json:"threshold"`
	WindowMinutes   int            `json:"window_minutes"`
	Severity        AlertSeverity  `json:"severity"`
	Enabled         bool           `json:"enabled"`
	Channels        []string       `json:"channels"`
	CooldownMinutes int            `json:"cooldown_minutes"`
	LastTriggeredAt *time.Time     `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Window returns the sliding window duration for this rule
func (r *AlertRule) Window() time.Duration {
	return time.Duration(r.WindowMinutes) * time.Minute
}

// Cooldown returns the minimum time between triggers for this rule
func (r *AlertRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// Validate checks the rule invariants before it is accepted by the registry
func (r *AlertRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.MetricName == "" {
		return fmt.Errorf("rule metric name is required")
	}
	switch r.Condition {
	case ConditionGreaterThan, ConditionLessThan, ConditionEqual,
		ConditionGreaterEqual, ConditionLessEqual:
	default:
		return fmt.Errorf("unknown condition: %q", r.Condition)
	}
	switch r.Severity {
	case AlertSeverityLow, AlertSeverityMedium, AlertSeverityHigh, AlertSeverityCritical:
	default:
		return fmt.Errorf("unknown severity: %q", r.Severity)
	}
	if r.WindowMinutes < 1 {
		return fmt.Errorf("window must be at least 1 minute, got %d", r.WindowMinutes)
	}
	if r.CooldownMinutes < 0 {
		return fmt.Errorf("cooldown must not be negative, got %d", r.CooldownMinutes)
	}
	if r.Enabled && len(r.Channels) == 0 {
		return fmt.Errorf("enabled rule must have at least one notification channel")
	}
	return nil
}

// Alert represents one open-or-closed incident for a rule
type Alert struct {
	ID               string        `json:"id"`
	RuleID           string        `json:"rule_id"`
	RuleName         string        `json:"rule_name"`
	Message          string        `json:"message"`
	Severity         AlertSeverity `json:"severity"`
	Status           AlertStatus   `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	ResolvedAt       *time.Time    `json:"resolved_at,omitempty"`
	AcknowledgedAt   *time.Time    `json:"acknowledged_at,omitempty"`
	AcknowledgedBy   string        `json:"acknowledged_by,omitempty"`
	TriggeringSample *MetricSample `json:"triggering_sample,omitempty"`
	Channels         []string      `json:"channels"`
}

// Open reports whether the alert still counts against the
// at-most-one-open-alert-per-rule invariant
func (a *Alert) Open() bool {
	return a.Status == AlertStatusActive || a.Status == AlertStatusAcknowledged
}

// AlertEvent is a lifecycle transition handed to the dispatcher and
// published on the event stream
type AlertEvent struct {
	Type      AlertEventType `json:"type"`
	Alert     *Alert         `json:"alert"`
	Timestamp time.Time      `json:"timestamp"`
}

// DefaultRules returns the built-in rule set seeded when no persisted
// rules exist yet
func DefaultRules() []*AlertRule {
	return []*AlertRule{
		{
			ID:              "high-cpu-usage",
			Name:            "High CPU Usage",
			Description:     "CPU usage exceeds 80%",
			MetricName:      "cpu_usage",
			Condition:       ConditionGreaterThan,
			Threshold:       80,
			WindowMinutes:   5,
			Severity:        AlertSeverityHigh,
			Enabled:         true,
			Channels:        []string{"email", "slack"},
			CooldownMinutes: 10,
		},
		{
			ID:              "high-memory-usage",
			Name:            "High Memory Usage",
			Description:     "Memory usage exceeds 85%",
			MetricName:      "memory_usage",
			Condition:       ConditionGreaterThan,
			Threshold:       85,
			WindowMinutes:   5,
			Severity:        AlertSeverityHigh,
			Enabled:         true,
			Channels:        []string{"email"},
			CooldownMinutes: 10,
		},
		{
			ID:              "high-error-rate",
			Name:            "High Error Rate",
			Description:     "Error rate exceeds 5%",
			MetricName:      "error_rate",
			Condition:       ConditionGreaterThan,
			Threshold:       5,
			WindowMinutes:   10,
			Severity:        AlertSeverityCritical,
			Enabled:         true,
			Channels:        []string{"email", "slack", "webhook"},
			CooldownMinutes: 5,
		},
		{
			ID:              "low-availability",
			Name:            "Low Availability",
			Description:     "Service availability below 99%",
			MetricName:      "availability",
			Condition:       ConditionLessThan,
			Threshold:       99,
			WindowMinutes:   15,
			Severity:        AlertSeverityCritical,
			Enabled:         true,
			Channels:        []string{"email", "slack"},
			CooldownMinutes: 5,
		},
	}
}
