package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/secondary"
)

// MetricRepository implements secondary.MetricRepository with SQLite.
type MetricRepository struct {
	db *sql.DB
}

// NewMetricRepository creates a new SQLite metric repository.
func NewMetricRepository(db *sql.DB) *MetricRepository {
	return &MetricRepository{db: db}
}

// Append persists a new sample.
func (r *MetricRepository) Append(ctx context.Context, sample *models.MetricSample) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO metric_samples (id, instance_id, metric_type, value, recorded_at) VALUES (?, ?, ?, ?, ?)",
		sample.ID, sample.InstanceID, sample.MetricType, sample.Value, sample.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append metric sample: %w", err)
	}
	return nil
}

// Values retrieves sample values for one series inside [from, to).
func (r *MetricRepository) Values(ctx context.Context, instanceID, metricType string, from, to time.Time) ([]float64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT value FROM metric_samples
		 WHERE instance_id = ? AND metric_type = ? AND recorded_at >= ? AND recorded_at < ?
		 ORDER BY recorded_at ASC`,
		instanceID, metricType, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query metric values: %w", err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan metric value: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// Series lists the distinct (instance, metricType) pairs inside [from, to).
func (r *MetricRepository) Series(ctx context.Context, from, to time.Time) ([]secondary.SeriesKey, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT instance_id, metric_type FROM metric_samples
		 WHERE recorded_at >= ? AND recorded_at < ?`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list metric series: %w", err)
	}
	defer rows.Close()

	var series []secondary.SeriesKey
	for rows.Next() {
		var k secondary.SeriesKey
		if err := rows.Scan(&k.InstanceID, &k.MetricType); err != nil {
			return nil, fmt.Errorf("failed to scan metric series: %w", err)
		}
		series = append(series, k)
	}
	return series, rows.Err()
}

// SaveRollup upserts a rollup for one window.
func (r *MetricRepository) SaveRollup(ctx context.Context, rollup *models.MetricRollup) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO metric_rollups
			(id, instance_id, metric_type, window, window_start, min, max, avg, sum, count, p50, p95, p99)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(instance_id, metric_type, window, window_start) DO UPDATE SET
			min = excluded.min, max = excluded.max, avg = excluded.avg,
			sum = excluded.sum, count = excluded.count,
			p50 = excluded.p50, p95 = excluded.p95, p99 = excluded.p99`,
		rollup.ID, rollup.InstanceID, rollup.MetricType, string(rollup.Window), rollup.WindowStart,
		rollup.Min, rollup.Max, rollup.Avg, rollup.Sum, rollup.Count,
		rollup.P50, rollup.P95, rollup.P99,
	)
	if err != nil {
		return fmt.Errorf("failed to save rollup: %w", err)
	}
	return nil
}

// ListRollups retrieves rollups for an instance and window, newest first.
func (r *MetricRepository) ListRollups(ctx context.Context, instanceID string, window models.RollupWindow, limit int) ([]*models.MetricRollup, error) {
	query := `SELECT id, instance_id, metric_type, window, window_start,
			min, max, avg, sum, count, p50, p95, p99
		FROM metric_rollups WHERE instance_id = ? AND window = ?
		ORDER BY window_start DESC`
	args := []any{instanceID, string(window)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rollups: %w", err)
	}
	defer rows.Close()

	var rollups []*models.MetricRollup
	for rows.Next() {
		var (
			rec models.MetricRollup
			w   string
		)
		if err := rows.Scan(&rec.ID, &rec.InstanceID, &rec.MetricType, &w, &rec.WindowStart,
			&rec.Min, &rec.Max, &rec.Avg, &rec.Sum, &rec.Count,
			&rec.P50, &rec.P95, &rec.P99); err != nil {
			return nil, fmt.Errorf("failed to scan rollup: %w", err)
		}
		rec.Window = models.RollupWindow(w)
		rollups = append(rollups, &rec)
	}
	return rollups, rows.Err()
}

// Ensure MetricRepository implements the interface.
var _ secondary.MetricRepository = (*MetricRepository)(nil)
