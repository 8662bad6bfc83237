package sqlitestore

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/kestrel-dev/screenlens/pkg/domain"
)

// GetActivitiesByDateRange returns one bucket per calendar date in
// [start,end), with session count, total minutes, and the top categories
// observed across that date's timeline cards.
func (s *Store) GetActivitiesByDateRange(ctx context.Context, start, end time.Time, deviceID string) ([]domain.ActivityBucket, error) {
	query := `SELECT substr(start_time, 1, 10) AS day, COUNT(*) AS session_count,
		SUM((julianday(end_time) - julianday(start_time)) * 24 * 60) AS total_minutes
		FROM sessions WHERE start_time >= ? AND start_time < ?`
	args := []any{start.UTC().Format(timeLayout), end.UTC().Format(timeLayout)}
	if deviceID != "" {
		query += ` AND device_id = ?`
		args = append(args, deviceID)
	}
	query += ` GROUP BY day ORDER BY day ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query activities by date range: %w", err)
	}
	defer rows.Close()

	var buckets []domain.ActivityBucket
	for rows.Next() {
		var b domain.ActivityBucket
		if err := rows.Scan(&b.Date, &b.SessionCount, &b.TotalMinutes); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan activity bucket: %w", err)
		}
		cats, err := s.mainCategoriesForDate(ctx, b.Date, deviceID)
		if err != nil {
			return nil, err
		}
		b.MainCategories = cats
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

func (s *Store) mainCategoriesForDate(ctx context.Context, date, deviceID string) ([]domain.Category, error) {
	query := `SELECT timeline_cards.category, COUNT(*) AS n
		FROM timeline_cards JOIN sessions ON sessions.id = timeline_cards.session_id
		WHERE substr(sessions.start_time, 1, 10) = ?`
	args := []any{date}
	if deviceID != "" {
		query += ` AND sessions.device_id = ?`
		args = append(args, deviceID)
	}
	query += ` GROUP BY timeline_cards.category ORDER BY n DESC LIMIT 3`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query main categories for %s: %w", date, err)
	}
	defer rows.Close()

	var cats []domain.Category
	for rows.Next() {
		var c string
		var n int
		if err := rows.Scan(&c, &n); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan main category: %w", err)
		}
		cats = append(cats, domain.Category(c))
	}
	return cats, rows.Err()
}

// GetStats returns the storage-wide counts and approximate database size.
func (s *Store) GetStats(ctx context.Context) (*domain.StorageStats, error) {
	stats := &domain.StorageStats{}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&stats.SessionCount); err != nil {
		return nil, fmt.Errorf("sqlitestore: count sessions: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM frames`).Scan(&stats.FrameCount); err != nil {
		return nil, fmt.Errorf("sqlitestore: count frames: %w", err)
	}
	if info, err := os.Stat(s.path); err == nil {
		stats.DBSizeBytes = info.Size()
	}
	return stats, nil
}

// GetDistinctAnalyzedVideoPaths returns every non-empty video_path value
// recorded on a session, used by the cleaner's orphan scan to avoid
// unlinking clips that are still referenced.
func (s *Store) GetDistinctAnalyzedVideoPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT video_path FROM sessions WHERE video_path != ''`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query distinct video paths: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan video path: %w", err)
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out, rows.Err()
}
