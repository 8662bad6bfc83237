package mysqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/storage"
)

func marshalTags(tags []domain.Tag) (string, error) {
	if tags == nil {
		tags = []domain.Tag{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("mysqlstore: marshal tags: %w", err)
	}
	return string(b), nil
}

func unmarshalTags(raw string) ([]domain.Tag, error) {
	if raw == "" {
		return nil, nil
	}
	var tags []domain.Tag
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("mysqlstore: unmarshal tags: %w", err)
	}
	return tags, nil
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1452 // Cannot add or update a child row: a foreign key constraint fails
	}
	return false
}

// checkSessionExists pre-checks a parent session before inserting a
// dependent row, so the caller gets a descriptive storage.ErrForeignKey
// naming the missing parent id rather than a raw driver error. Callers
// still rely on isForeignKeyViolation as a backstop for races between
// this check and the insert.
func checkSessionExists(ctx context.Context, db *sql.DB, sessionID int64) error {
	var exists int
	if err := db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("mysqlstore: session %d does not exist: %w", sessionID, storage.ErrForeignKey)
		}
		return fmt.Errorf("mysqlstore: check session %d exists: %w", sessionID, err)
	}
	return nil
}

const sessionColumns = `id, device_id, start_time, end_time, title, summary, video_path, tags, created_at`

// InsertSession inserts one session row and returns its assigned id.
func (s *Store) InsertSession(ctx context.Context, sess *domain.Session) (int64, error) {
	tagsJSON, err := marshalTags(sess.Tags)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO sessions
		(device_id, start_time, end_time, title, summary, video_path, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.DeviceID, sess.StartTime.UTC(), sess.EndTime.UTC(), sess.Title, sess.Summary,
		sess.VideoPath, tagsJSON, time.Now().UTC())
	if err != nil {
		if isDuplicateKey(err) {
			return 0, &storage.SessionAlreadyExistsError{DeviceID: sess.DeviceID, WindowStart: sess.StartTime}
		}
		return 0, fmt.Errorf("mysqlstore: insert session: %w", err)
	}
	return res.LastInsertId()
}

// BulkInsertSessions inserts sessions inside a single transaction.
func (s *Store) BulkInsertSessions(ctx context.Context, sessions []*domain.Session) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: begin bulk session insert: %w", err)
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
			sess.DeviceID, sess.StartTime.UTC(), sess.EndTime.UTC(), sess.Title, sess.Summary,
			sess.VideoPath, tagsJSON, time.Now().UTC())
		if err != nil {
			if isDuplicateKey(err) {
				return nil, &storage.SessionAlreadyExistsError{DeviceID: sess.DeviceID, WindowStart: sess.StartTime}
			}
			return nil, fmt.Errorf("mysqlstore: bulk insert session: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("mysqlstore: bulk session insert id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("mysqlstore: commit bulk session insert: %w", err)
	}
	return ids, nil
}

func scanSession(row interface{ Scan(...any) error }) (*domain.Session, error) {
	var sess domain.Session
	var tagsJSON string
	if err := row.Scan(&sess.ID, &sess.DeviceID, &sess.StartTime, &sess.EndTime, &sess.Title,
		&sess.Summary, &sess.VideoPath, &tagsJSON, &sess.CreatedAt); err != nil {
		return nil, err
	}
	sess.StartTime = sess.StartTime.UTC()
	sess.EndTime = sess.EndTime.UTC()
	sess.CreatedAt = sess.CreatedAt.UTC()
	tags, err := unmarshalTags(tagsJSON)
	if err != nil {
		return nil, err
	}
	sess.Tags = tags
	return &sess, nil
}

// GetSession fetches one session by id.
func (s *Store) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("mysqlstore: get session %d: %w", id, err)
	}
	return sess, nil
}

// GetSessionsByDate returns sessions starting on the given UTC calendar
// date, optionally filtered by device.
func (s *Store) GetSessionsByDate(ctx context.Context, date string, deviceID string) ([]*domain.Session, error) {
	dayStart, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: parse date %q: %w", date, err)
	}
	dayEnd := dayStart.Add(24 * time.Hour)

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE start_time >= ? AND start_time < ?`
	args := []any{dayStart.UTC(), dayEnd.UTC()}
	if deviceID != "" {
		query += ` AND device_id = ?`
		args = append(args, deviceID)
	}
	query += ` ORDER BY start_time ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: query sessions by date: %w", err)
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
		return nil, fmt.Errorf("mysqlstore: query all sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func collectSessions(rows *sql.Rows) ([]*domain.Session, error) {
	var out []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("mysqlstore: scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// UpdateSession rewrites the mutable fields of a session.
func (s *Store) UpdateSession(ctx context.Context, sess *domain.Session) error {
	tagsJSON, err := marshalTags(sess.Tags)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET title = ?, summary = ?, video_path = ?, tags = ? WHERE id = ?`,
		sess.Title, sess.Summary, sess.VideoPath, tagsJSON, sess.ID)
	if err != nil {
		return fmt.Errorf("mysqlstore: update session %d: %w", sess.ID, err)
	}
	return requireRowAffected(res, sess.ID)
}

// DeleteSession removes the session row; ON DELETE CASCADE removes
// dependents.
func (s *Store) DeleteSession(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mysqlstore: delete session %d: %w", id, err)
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
		return fmt.Errorf("mysqlstore: update tags for session %d: %w", id, err)
	}
	return requireRowAffected(res, id)
}

// UpdateSessionVideoPath rewrites only the video_path column.
func (s *Store) UpdateSessionVideoPath(ctx context.Context, id int64, videoPath string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET video_path = ? WHERE id = ?`, videoPath, id)
	if err != nil {
		return fmt.Errorf("mysqlstore: update video_path for session %d: %w", id, err)
	}
	return requireRowAffected(res, id)
}

// UpdateSessionDeviceInfo rewrites only the device_id column.
func (s *Store) UpdateSessionDeviceInfo(ctx context.Context, id int64, deviceID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET device_id = ? WHERE id = ?`, deviceID, id)
	if err != nil {
		return fmt.Errorf("mysqlstore: update device_id for session %d: %w", id, err)
	}
	return requireRowAffected(res, id)
}

func requireRowAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mysqlstore: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mysqlstore: session %d: %w", id, storage.ErrNotFound)
	}
	return nil
}
