package sqlitestore

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrel-dev/screenlens/pkg/domain"
)

// SessionsStartingBefore returns sessions (with their file paths) whose
// start_time precedes cutoff, for the cleaner to read before the
// cascading delete removes them. Only ID and VideoPath are populated.
func (s *Store) SessionsStartingBefore(ctx context.Context, cutoff time.Time) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, video_path FROM sessions WHERE start_time < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query sessions before cutoff: %w", err)
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		var sess domain.Session
		if err := rows.Scan(&sess.ID, &sess.VideoPath); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan session before cutoff: %w", err)
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// DeleteSessionsStartingBefore removes sessions (and, via cascade, their
// dependents) whose start_time precedes cutoff. Returns the row count.
func (s *Store) DeleteSessionsStartingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE start_time < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: delete sessions before cutoff: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: rows affected for cutoff delete: %w", err)
	}
	return int(n), nil
}
