package mysqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/storage"
)

// UpsertDaySummary creates or overwrites the one-per-date cache row,
// using MySQL's ON DUPLICATE KEY UPDATE in place of sqlite's
// ON CONFLICT(date) DO UPDATE over the same unique key on date.
func (s *Store) UpsertDaySummary(ctx context.Context, d *domain.DaySummaryCache) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO day_summaries
		(date, summary, device_stats, parallel_work, usage_patterns, active_device_count, source_llm_call_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			summary = VALUES(summary),
			device_stats = VALUES(device_stats),
			parallel_work = VALUES(parallel_work),
			usage_patterns = VALUES(usage_patterns),
			active_device_count = VALUES(active_device_count),
			source_llm_call_id = VALUES(source_llm_call_id),
			updated_at = VALUES(updated_at)`,
		d.Date, d.Summary, d.DeviceStats, d.ParallelWork, d.UsagePatterns, d.ActiveDeviceCount,
		d.SourceLLMCallID, now, now)
	if err != nil {
		return fmt.Errorf("mysqlstore: upsert day_summary %s: %w", d.Date, err)
	}
	return nil
}

// GetDaySummary fetches the cache row for one date.
func (s *Store) GetDaySummary(ctx context.Context, date string) (*domain.DaySummaryCache, error) {
	row := s.db.QueryRowContext(ctx, `SELECT date, summary, device_stats, parallel_work, usage_patterns,
		active_device_count, source_llm_call_id, created_at, updated_at FROM day_summaries WHERE date = ?`, date)

	var d domain.DaySummaryCache
	var sourceID sql.NullInt64
	if err := row.Scan(&d.Date, &d.Summary, &d.DeviceStats, &d.ParallelWork, &d.UsagePatterns,
		&d.ActiveDeviceCount, &sourceID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("mysqlstore: get day_summary %s: %w", date, err)
	}
	if sourceID.Valid {
		v := sourceID.Int64
		d.SourceLLMCallID = &v
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}

// DeleteDaySummary removes the cache row for one date.
func (s *Store) DeleteDaySummary(ctx context.Context, date string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM day_summaries WHERE date = ?`, date); err != nil {
		return fmt.Errorf("mysqlstore: delete day_summary %s: %w", date, err)
	}
	return nil
}
