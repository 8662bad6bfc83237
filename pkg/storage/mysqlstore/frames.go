package mysqlstore

import (
	"context"
	"fmt"

	"github.com/kestrel-dev/screenlens/pkg/domain"
)

// InsertFrame inserts one frame row.
func (s *Store) InsertFrame(ctx context.Context, f *domain.Frame) (int64, error) {
	if err := checkSessionExists(ctx, s.db, f.SessionID); err != nil {
		return 0, fmt.Errorf("mysqlstore: insert frame: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO frames (session_id, device_id, timestamp, path) VALUES (?, ?, ?, ?)`,
		f.SessionID, f.DeviceID, f.Timestamp.UTC(), f.Path)
	if err != nil {
		return 0, fmt.Errorf("mysqlstore: insert frame: %w", err)
	}
	return res.LastInsertId()
}

// BulkInsertFrames inserts frames in one transaction.
func (s *Store) BulkInsertFrames(ctx context.Context, frames []*domain.Frame) ([]int64, error) {
	seen := make(map[int64]struct{})
	for _, f := range frames {
		if _, ok := seen[f.SessionID]; ok {
			continue
		}
		seen[f.SessionID] = struct{}{}
		if err := checkSessionExists(ctx, s.db, f.SessionID); err != nil {
			return nil, fmt.Errorf("mysqlstore: bulk insert frames: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: begin bulk frame insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]int64, 0, len(frames))
	for _, f := range frames {
		res, err := tx.ExecContext(ctx, `INSERT INTO frames (session_id, device_id, timestamp, path) VALUES (?, ?, ?, ?)`,
			f.SessionID, f.DeviceID, f.Timestamp.UTC(), f.Path)
		if err != nil {
			return nil, fmt.Errorf("mysqlstore: bulk insert frame: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("mysqlstore: bulk frame insert id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("mysqlstore: commit bulk frame insert: %w", err)
	}
	return ids, nil
}

// GetFramesBySession returns frames for a session ordered by timestamp.
func (s *Store) GetFramesBySession(ctx context.Context, sessionID int64) ([]*domain.Frame, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, device_id, timestamp, path FROM frames WHERE session_id = ? ORDER BY timestamp ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: query frames for session %d: %w", sessionID, err)
	}
	defer rows.Close()

	var out []*domain.Frame
	for rows.Next() {
		var f domain.Frame
		if err := rows.Scan(&f.ID, &f.SessionID, &f.DeviceID, &f.Timestamp, &f.Path); err != nil {
			return nil, fmt.Errorf("mysqlstore: scan frame: %w", err)
		}
		f.Timestamp = f.Timestamp.UTC()
		out = append(out, &f)
	}
	return out, rows.Err()
}

// DeleteFramesBySession removes all frame rows for a session.
func (s *Store) DeleteFramesBySession(ctx context.Context, sessionID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM frames WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("mysqlstore: delete frames for session %d: %w", sessionID, err)
	}
	return nil
}
