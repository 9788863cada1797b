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

// MetricStorage defines the interface for the time-series metric store
type MetricStorage interface {
	// Append stores a single metric sample
	Append(ctx context.Context, sample *model.MetricSample) error

	// Query retrieves samples for a metric within [from, to], newest first,
	// capped at limit
	Query(ctx context.Context, metricName string, from, to time.Time, limit int) ([]*model.MetricSample, error)

	// DeleteBefore removes samples older than the cutoff and returns the
	// number of rows deleted
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteMetricStore implements MetricStorage using SQLite
type SQLiteMetricStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteMetricStore creates a new SQLite-backed metric store
func NewSQLiteMetricStore(logger *zap.Logger, dbPath string) (*SQLiteMetricStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open metric database: %w", err)
	}

	store := &SQLiteMetricStore{
		logger: logger.Named("metric-store"),
		db:     db,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initialize creates the metrics table if it doesn't exist
func (s *SQLiteMetricStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			metric_name TEXT NOT NULL,
			value REAL NOT NULL,
			unit TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			tags TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_metrics_name_ts ON metrics(metric_name, timestamp);
		CREATE INDEX IF NOT EXISTS idx_metrics_timestamp ON metrics(timestamp);
		CREATE INDEX IF NOT EXISTS idx_metrics_provider ON metrics(provider);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize metric database: %w", err)
	}
	return nil
}

// Append implements MetricStorage.Append
func (s *SQLiteMetricStore) Append(ctx context.Context, sample *model.MetricSample) error {
	var tagsStr sql.NullString
	if len(sample.Tags) > 0 {
		data, err := json.Marshal(sample.Tags)
		if err != nil {
			return fmt.Errorf("failed to marshal tags: %w", err)
		}
		tagsStr = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metrics (
			provider, resource_type, resource_id, metric_name, value, unit, timestamp, tags
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sample.Provider,
		sample.ResourceType,
		sample.ResourceID,
		sample.MetricName,
		sample.Value,
		sample.Unit,
		sample.Timestamp,
		tagsStr,
	)
	if err != nil {
		return fmt.Errorf("failed to append metric: %w", err)
	}
	return nil
}

// Query implements MetricStorage.Query
func (s *SQLiteMetricStore) Query(ctx context.Context, metricName string, from, to time.Time, limit int) ([]*model.MetricSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, resource_type, resource_id, metric_name, value, unit, timestamp, tags
		FROM metrics
		WHERE metric_name = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp DESC
		LIMIT ?`,
		metricName, from, to, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var samples []*model.MetricSample
	for rows.Next() {
		sample := &model.MetricSample{}
		var tags sql.NullString

		err := rows.Scan(
			&sample.Provider,
			&sample.ResourceType,
			&sample.ResourceID,
			&sample.MetricName,
			&sample.Value,
			&sample.Unit,
			&sample.Timestamp,
			&tags,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}

		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &sample.Tags); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
			}
		}

		samples = append(samples, sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return samples, nil
}

// DeleteBefore implements MetricStorage.DeleteBefore
func (s *SQLiteMetricStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM metrics WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old metrics: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected > 0 {
		s.logger.Info("Deleted old metric samples",
			zap.Time("before", cutoff),
			zap.Int64("deleted", affected))
	}

	return affected, nil
}

// Close closes the database connection
func (s *SQLiteMetricStore) Close() error {
	return s.db.Close()
}
