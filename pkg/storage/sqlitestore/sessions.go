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

// InsertSession inserts one session row and returns its assigned id.
func (s *Store) InsertSession(ctx context.Context, sess *domain.Session) (int64, error) {
	tagsJSON, err := marshalTags(sess.Tags)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO sessions
		(device_id, start_time, end_time, title, summary, video_path, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.DeviceID, sess.StartTime.UTC().Format(timeLayout), sess.EndTime.UTC().Format(timeLayout),
		sess.Title, sess.Summary, sess.VideoPath, tagsJSON, time.Now().UTC().Format(timeLayout))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, &storage.SessionAlreadyExistsError{DeviceID: sess.DeviceID, WindowStart: sess.StartTime}
		}
		return 0, fmt.Errorf("sqlitestore: insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: session insert id: %w", err)
	}
	return id, nil
}

// BulkInsertSessions inserts sessions one at a time inside a transaction;
// sqlite's single-writer model makes a batched multi-row INSERT no faster
// than sequential inserts under one transaction.
func (s *Store) BulkInsertSessions(ctx context.Context, sessions []*domain.Session) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: begin bulk session insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]int64, 0, len(sessions))
	for _, sess := range sessions {
		tagsJSON, err := marshalTags(sess.Tags)
		if err != nil {
			return nil, err
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO sessions
			(device_id, start_time, end_time, title, summary, video_path, tags, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.DeviceID, sess.StartTime.UTC().Format(timeLayout), sess.EndTime.UTC().Format(timeLayout),
			sess.Title, sess.Summary, sess.VideoPath, tagsJSON, time.Now().UTC().Format(timeLayout))
		if err != nil {
			if isUniqueViolation(err) {
				return nil, &storage.SessionAlreadyExistsError{DeviceID: sess.DeviceID, WindowStart: sess.StartTime}
			}
			return nil, fmt.Errorf("sqlitestore: bulk insert session: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: bulk session insert id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlitestore: commit bulk session insert: %w", err)
	}
	return ids, nil
}

func scanSession(row interface{ Scan(...any) error }) (*domain.Session, error) {
	var sess domain.Session
	var start, end, created, tagsJSON string
	if err := row.Scan(&sess.ID, &sess.DeviceID, &start, &end, &sess.Title, &sess.Summary,
		&sess.VideoPath, &tagsJSON, &created); err != nil {
		return nil, err
	}
	var err error
	if sess.StartTime, err = time.Parse(timeLayout, start); err != nil {
		return nil, fmt.Errorf("sqlitestore: parse start_time: %w", err)
	}
	if sess.EndTime, err = time.Parse(timeLayout, end); err != nil {
		return nil, fmt.Errorf("sqlitestore: parse end_time: %w", err)
	}
	if sess.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("sqlitestore: parse created_at: %w", err)
	}
	if sess.Tags, err = unmarshalTags(tagsJSON); err != nil {
		return nil, err
	}
	return &sess, nil
}

const sessionColumns = `id, device_id, start_time, end_time, title, summary, video_path, tags, created_at`

// GetSession fetches one session by id.
func (s *Store) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlitestore: get session %d: %w", id, err)
	}
	return sess, nil
}

// GetSessionsByDate returns all sessions whose start_time falls on the
// given UTC calendar date (YYYY-MM-DD), optionally filtered by device.
func (s *Store) GetSessionsByDate(ctx context.Context, date string, deviceID string) ([]*domain.Session, error) {
	dayStart := date + "T00:00:00Z"
	dayEndTime, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: parse date %q: %w", date, err)
	}
	dayEnd := dayEndTime.Add(24 * time.Hour).UTC().Format(timeLayout)

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE start_time >= ? AND start_time < ?`
	args := []any{dayStart, dayEnd}
	if deviceID != "" {
		query += ` AND device_id = ?`
		args = append(args, deviceID)
	}
	query += ` ORDER BY start_time ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query sessions by date: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// GetAllSessions returns a page of sessions ordered newest-first.
func (s *Store) GetAllSessions(ctx context.Context, limit, offset int) ([]*domain.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY start_time DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query all sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func collectSessions(rows *sql.Rows) ([]*domain.Session, error) {
	var out []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// UpdateSession rewrites the mutable fields of a session (final
// title/summary/tags, typically after phase 2 completes).
func (s *Store) UpdateSession(ctx context.Context, sess *domain.Session) error {
	tagsJSON, err := marshalTags(sess.Tags)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET title = ?, summary = ?, video_path = ?, tags = ? WHERE id = ?`,
		sess.Title, sess.Summary, sess.VideoPath, tagsJSON, sess.ID)
	if err != nil {
		return fmt.Errorf("sqlitestore: update session %d: %w", sess.ID, err)
	}
	return requireRowAffected(res, sess.ID)
}

// DeleteSession removes the session row; ON DELETE CASCADE handles
// dependents.
func (s *Store) DeleteSession(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlitestore: delete session %d: %w", id, err)
	}
	return requireRowAffected(res, id)
}

// UpdateSessionTags rewrites only the tags column.
func (s *Store) UpdateSessionTags(ctx context.Context, id int64, tags []domain.Tag) error {
	tagsJSON, err := marshalTags(tags)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET tags = ? WHERE id = ?`, tagsJSON, id)
	if err != nil {
		return fmt.Errorf("sqlitestore: update tags for session %d: %w", id, err)
	}
	return requireRowAffected(res, id)
}

// UpdateSessionVideoPath rewrites only the video_path column.
func (s *Store) UpdateSessionVideoPath(ctx context.Context, id int64, videoPath string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET video_path = ? WHERE id = ?`, videoPath, id)
	if err != nil {
		return fmt.Errorf("sqlitestore: update video_path for session %d: %w", id, err)
	}
	return requireRowAffected(res, id)
}

// UpdateSessionDeviceInfo rewrites only the device_id column.
func (s *Store) UpdateSessionDeviceInfo(ctx context.Context, id int64, deviceID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET device_id = ? WHERE id = ?`, deviceID, id)
	if err != nil {
		return fmt.Errorf("sqlitestore: update device_id for session %d: %w", id, err)
	}
	return requireRowAffected(res, id)
}

func requireRowAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlitestore: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sqlitestore: session %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

// isUniqueViolation recognizes sqlite's constraint-violation wording.
// modernc.org/sqlite reports driver errors as plain *sqlite.Error values
// whose Error() text is the SQLite library's own message; matching on
// that text avoids taking a direct dependency on the driver's internal
// error type, which is not part of its stable API.
func isUniqueViolation(err error) bool {
	return containsFold(err.Error(), "UNIQUE constraint failed")
}

func containsFold(s, substr string) bool {
	return len(s) >= len(substr) && indexFold(s, substr) >= 0
}

func indexFold(s, substr string) int {
	n, m := len(s), len(substr)
	for i := 0; i+m <= n; i++ {
		if equalFold(s[i:i+m], substr) {
			return i
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
