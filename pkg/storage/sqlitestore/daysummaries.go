package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/storage"
)

// UpsertDaySummary creates or overwrites the one-per-date cache row.
func (s *Store) UpsertDaySummary(ctx context.Context, d *domain.DaySummaryCache) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx, `INSERT INTO day_summaries
		(date, summary, device_stats, parallel_work, usage_patterns, active_device_count, source_llm_call_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			summary = excluded.summary,
			device_stats = excluded.device_stats,
			parallel_work = excluded.parallel_work,
			usage_patterns = excluded.usage_patterns,
			active_device_count = excluded.active_device_count,
			source_llm_call_id = excluded.source_llm_call_id,
			updated_at = excluded.updated_at`,
		d.Date, d.Summary, d.DeviceStats, d.ParallelWork, d.UsagePatterns, d.ActiveDeviceCount,
		d.SourceLLMCallID, now, now)
	if err != nil {
		return fmt.Errorf("sqlitestore: upsert day_summary %s: %w", d.Date, err)
	}
	return nil
}

// GetDaySummary fetches the cache row for one date.
func (s *Store) GetDaySummary(ctx context.Context, date string) (*domain.DaySummaryCache, error) {
	row := s.db.QueryRowContext(ctx, `SELECT date, summary, device_stats, parallel_work, usage_patterns,
		active_device_count, source_llm_call_id, created_at, updated_at FROM day_summaries WHERE date = ?`, date)

	var d domain.DaySummaryCache
	var sourceID sql.NullInt64
	var created, updated string
	if err := row.Scan(&d.Date, &d.Summary, &d.DeviceStats, &d.ParallelWork, &d.UsagePatterns,
		&d.ActiveDeviceCount, &sourceID, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlitestore: get day_summary %s: %w", date, err)
	}
	if sourceID.Valid {
		v := sourceID.Int64
		d.SourceLLMCallID = &v
	}
	var err error
	if d.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("parse day_summary created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("parse day_summary updated_at: %w", err)
	}
	return &d, nil
}

// DeleteDaySummary removes the cache row for one date.
func (s *Store) DeleteDaySummary(ctx context.Context, date string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM day_summaries WHERE date = ?`, date); err != nil {
		return fmt.Errorf("sqlitestore: delete day_summary %s: %w", date, err)
	}
	return nil
}
