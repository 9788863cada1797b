package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/cloudmon/internal/model"
)

// AlertFilter narrows ListAlerts results
type AlertFilter struct {
	RuleID   string
	Status   model.AlertStatus
	Severity model.AlertSeverity
	From     time.Time
	To       time.Time
	Limit    int
}

// AlertStorage provides durability for alerts and alert rules
type AlertStorage interface {
	// StoreAlert persists a newly created alert
	StoreAlert(ctx context.Context, alert *model.Alert) error

	// UpdateAlert persists a lifecycle transition (acknowledge/resolve)
	UpdateAlert(ctx context.Context, alert *model.Alert) error

	// GetAlert retrieves an alert by ID, or nil if it does not exist
	GetAlert(ctx context.Context, id string) (*model.Alert, error)

	// ListAlerts retrieves alerts matching the filter, newest first
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*model.Alert, error)

	// SaveRule inserts or replaces a rule definition
	SaveRule(ctx context.Context, rule *model.AlertRule) error

	// DeleteRule removes a rule definition
	DeleteRule(ctx context.Context, id string) error

	// LoadRules retrieves all persisted rule definitions
	LoadRules(ctx context.Context) ([]*model.AlertRule, error)
}

// SQLiteAlertStore implements AlertStorage using SQLite
type SQLiteAlertStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteAlertStore creates a new SQLite-backed alert store
func NewSQLiteAlertStore(logger *zap.Logger, dbPath string) (*SQLiteAlertStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open alert database: %w", err)
	}

	store := &SQLiteAlertStore{
		logger: logger.Named("alert-store"),
		db:     db,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteAlertStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			rule_id TEXT NOT NULL,
			rule_name TEXT NOT NULL,
			message TEXT NOT NULL,
			severity TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			resolved_at DATETIME,
			acknowledged_at DATETIME,
			acknowledged_by TEXT,
			sample TEXT,
			channels TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_rule_id ON alerts(rule_id);
		CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
		CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);

		CREATE TABLE IF NOT EXISTS alert_rules (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			metric_name TEXT NOT NULL,
			condition TEXT NOT NULL,
			threshold REAL NOT NULL,
			window_minutes INTEGER NOT NULL,
			severity TEXT NOT NULL,
			enabled INTEGER NOT NULL,
			channels TEXT,
			cooldown_minutes INTEGER NOT NULL,
			last_triggered_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize alert database: %w", err)
	}
	return nil
}

// StoreAlert implements AlertStorage.StoreAlert
func (s *SQLiteAlertStore) StoreAlert(ctx context.Context, alert *model.Alert) error {
	sampleStr, err := marshalNullable(alert.TriggeringSample)
	if err != nil {
		return fmt.Errorf("failed to marshal triggering sample: %w", err)
	}
	channelsStr, err := marshalNullable(alert.Channels)
	if err != nil {
		return fmt.Errorf("failed to marshal channels: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (
			id, rule_id, rule_name, message, severity, status,
			created_at, resolved_at, acknowledged_at, acknowledged_by, sample, channels
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID,
		alert.RuleID,
		alert.RuleName,
		alert.Message,
		alert.Severity,
		alert.Status,
		alert.CreatedAt,
		nullableTime(alert.ResolvedAt),
		nullableTime(alert.AcknowledgedAt),
		sql.NullString{String: alert.AcknowledgedBy, Valid: alert.AcknowledgedBy != ""},
		sampleStr,
		channelsStr,
	)
	if err != nil {
		return fmt.Errorf("failed to store alert: %w", err)
	}
	return nil
}

// UpdateAlert implements AlertStorage.UpdateAlert
func (s *SQLiteAlertStore) UpdateAlert(ctx context.Context, alert *model.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET
			status = ?,
			resolved_at = ?,
			acknowledged_at = ?,
			acknowledged_by = ?
		WHERE id = ?`,
		alert.Status,
		nullableTime(alert.ResolvedAt),
		nullableTime(alert.AcknowledgedAt),
		sql.NullString{String: alert.AcknowledgedBy, Valid: alert.AcknowledgedBy != ""},
		alert.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	return nil
}

// GetAlert implements AlertStorage.GetAlert
func (s *SQLiteAlertStore) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, rule_id, rule_name, message, severity, status,
			created_at, resolved_at, acknowledged_at, acknowledged_by, sample, channels
		FROM alerts
		WHERE id = ?`, id)

	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return alert, err
}

// ListAlerts implements AlertStorage.ListAlerts
func (s *SQLiteAlertStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]*model.Alert, error) {
	query := `
		SELECT id, rule_id, rule_name, message, severity, status,
			created_at, resolved_at, acknowledged_at, acknowledged_by, sample, channels
		FROM alerts WHERE 1=1`
	args := make([]interface{}, 0)

	if filter.RuleID != "" {
		query += " AND rule_id = ?"
		args = append(args, filter.RuleID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, filter.Severity)
	}
	if !filter.From.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, filter.To)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*model.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return alerts, nil
}

// SaveRule implements AlertStorage.SaveRule
func (s *SQLiteAlertStore) SaveRule(ctx context.Context, rule *model.AlertRule) error {
	channelsStr, err := marshalNullable(rule.Channels)
	if err != nil {
		return fmt.Errorf("failed to marshal channels: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO alert_rules (
			id, name, description, metric_name, condition, threshold,
			window_minutes, severity, enabled, channels, cooldown_minutes,
			last_triggered_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID,
		rule.Name,
		rule.Description,
		rule.MetricName,
		rule.Condition,
		rule.Threshold,
		rule.WindowMinutes,
		rule.Severity,
		rule.Enabled,
		channelsStr,
		rule.CooldownMinutes,
		nullableTime(rule.LastTriggeredAt),
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	return nil
}

// DeleteRule implements AlertStorage.DeleteRule
func (s *SQLiteAlertStore) DeleteRule(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM alert_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return nil
}

// LoadRules implements AlertStorage.LoadRules
func (s *SQLiteAlertStore) LoadRules(ctx context.Context) ([]*model.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, metric_name, condition, threshold,
			window_minutes, severity, enabled, channels, cooldown_minutes,
			last_triggered_at, created_at, updated_at
		FROM alert_rules`)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	defer rows.Close()

	var rules []*model.AlertRule
	for rows.Next() {
		rule := &model.AlertRule{}
		var description, channels sql.NullString
		var lastTriggered sql.NullTime

		err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&description,
			&rule.MetricName,
			&rule.Condition,
			&rule.Threshold,
			&rule.WindowMinutes,
			&rule.Severity,
			&rule.Enabled,
			&channels,
			&rule.CooldownMinutes,
			&lastTriggered,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		rule.Description = description.String
		if channels.Valid && channels.String != "" {
			if err := json.Unmarshal([]byte(channels.String), &rule.Channels); err != nil {
				return nil, fmt.Errorf("failed to unmarshal channels: %w", err)
			}
		}
		if lastTriggered.Valid {
			rule.LastTriggeredAt = &lastTriggered.Time
		}

		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return rules, nil
}

// Close closes the database connection
func (s *SQLiteAlertStore) Close() error {
	return s.db.Close()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row scannable) (*model.Alert, error) {
	alert := &model.Alert{}
	var resolvedAt, acknowledgedAt sql.NullTime
	var acknowledgedBy, sample, channels sql.NullString

	err := row.Scan(
		&alert.ID,
		&alert.RuleID,
		&alert.RuleName,
		&alert.Message,
		&alert.Severity,
		&alert.Status,
		&alert.CreatedAt,
		&resolvedAt,
		&acknowledgedAt,
		&acknowledgedBy,
		&sample,
		&channels,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}

	if resolvedAt.Valid {
		alert.ResolvedAt = &resolvedAt.Time
	}
	if acknowledgedAt.Valid {
		alert.AcknowledgedAt = &acknowledgedAt.Time
	}
	alert.AcknowledgedBy = acknowledgedBy.String
	if sample.Valid && sample.String != "" {
		if err := json.Unmarshal([]byte(sample.String), &alert.TriggeringSample); err != nil {
			return nil, fmt.Errorf("failed to unmarshal triggering sample: %w", err)
		}
	}
	if channels.Valid && channels.String != "" {
		if err := json.Unmarshal([]byte(channels.String), &alert.Channels); err != nil {
			return nil, fmt.Errorf("failed to unmarshal channels: %w", err)
		}
	}

	return alert, nil
}

func marshalNullable(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
