package mysqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kestrel-dev/screenlens/pkg/domain"
)

// BulkInsertSegments inserts video segments produced at the end of
// phase 1, in one transaction.
func (s *Store) BulkInsertSegments(ctx context.Context, segments []*domain.VideoSegment) ([]int64, error) {
	seen := make(map[int64]struct{})
	for _, seg := range segments {
		if _, ok := seen[seg.SessionID]; ok {
			continue
		}
		seen[seg.SessionID] = struct{}{}
		if err := checkSessionExists(ctx, s.db, seg.SessionID); err != nil {
			return nil, fmt.Errorf("mysqlstore: bulk insert segments: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: begin bulk segment insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]int64, 0, len(segments))
	for _, seg := range segments {
		res, err := tx.ExecContext(ctx, `INSERT INTO video_segments (session_id, llm_call_id, start_time, end_time, description)
			VALUES (?, ?, ?, ?, ?)`,
			seg.SessionID, seg.LLMCallID, seg.StartTime.UTC(), seg.EndTime.UTC(), seg.Description)
		if err != nil {
			return nil, fmt.Errorf("mysqlstore: bulk insert segment: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("mysqlstore: bulk segment insert id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("mysqlstore: commit bulk segment insert: %w", err)
	}
	return ids, nil
}

// GetSegmentsBySession returns segments for a session ordered by start
// time.
func (s *Store) GetSegmentsBySession(ctx context.Context, sessionID int64) ([]*domain.VideoSegment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, llm_call_id, start_time, end_time, description
		FROM video_segments WHERE session_id = ? ORDER BY start_time ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: query segments for session %d: %w", sessionID, err)
	}
	defer rows.Close()

	var out []*domain.VideoSegment
	for rows.Next() {
		var seg domain.VideoSegment
		var llmCallID sql.NullInt64
		if err := rows.Scan(&seg.ID, &seg.SessionID, &llmCallID, &seg.StartTime, &seg.EndTime, &seg.Description); err != nil {
			return nil, fmt.Errorf("mysqlstore: scan segment: %w", err)
		}
		if llmCallID.Valid {
			v := llmCallID.Int64
			seg.LLMCallID = &v
		}
		seg.StartTime = seg.StartTime.UTC()
		seg.EndTime = seg.EndTime.UTC()
		out = append(out, &seg)
	}
	return out, rows.Err()
}

// DeleteSegmentsBySession removes all segment rows for a session.
func (s *Store) DeleteSegmentsBySession(ctx context.Context, sessionID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM video_segments WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("mysqlstore: delete segments for session %d: %w", sessionID, err)
	}
	return nil
}
