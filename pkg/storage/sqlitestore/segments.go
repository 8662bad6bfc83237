package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kestrel-dev/screenlens/pkg/domain"
)

// BulkInsertSegments inserts video segments produced at the end of
// phase 1, in one transaction.
func (s *Store) BulkInsertSegments(ctx context.Context, segments []*domain.VideoSegment) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: begin bulk segment insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]int64, 0, len(segments))
	for _, seg := range segments {
		res, err := tx.ExecContext(ctx, `INSERT INTO video_segments (session_id, llm_call_id, start_time, end_time, description)
			VALUES (?, ?, ?, ?, ?)`,
			seg.SessionID, seg.LLMCallID, seg.StartTime.UTC().Format(timeLayout), seg.EndTime.UTC().Format(timeLayout), seg.Description)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: bulk insert segment: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: bulk segment insert id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlitestore: commit bulk segment insert: %w", err)
	}
	return ids, nil
}

// GetSegmentsBySession returns segments for a session ordered by start
// time.
func (s *Store) GetSegmentsBySession(ctx context.Context, sessionID int64) ([]*domain.VideoSegment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, llm_call_id, start_time, end_time, description
		FROM video_segments WHERE session_id = ? ORDER BY start_time ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query segments for session %d: %w", sessionID, err)
	}
	defer rows.Close()

	var out []*domain.VideoSegment
	for rows.Next() {
		var seg domain.VideoSegment
		var start, end string
		var llmCallID sql.NullInt64
		if err := rows.Scan(&seg.ID, &seg.SessionID, &llmCallID, &start, &end, &seg.Description); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan segment: %w", err)
		}
		if llmCallID.Valid {
			v := llmCallID.Int64
			seg.LLMCallID = &v
		}
		if seg.StartTime, err = time.Parse(timeLayout, start); err != nil {
			return nil, fmt.Errorf("sqlitestore: parse segment start_time: %w", err)
		}
		if seg.EndTime, err = time.Parse(timeLayout, end); err != nil {
			return nil, fmt.Errorf("sqlitestore: parse segment end_time: %w", err)
		}
		out = append(out, &seg)
	}
	return out, rows.Err()
}

// DeleteSegmentsBySession removes all segment rows for a session.
func (s *Store) DeleteSegmentsBySession(ctx context.Context, sessionID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM video_segments WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("sqlitestore: delete segments for session %d: %w", sessionID, err)
	}
	return nil
}
