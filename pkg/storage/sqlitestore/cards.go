package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kestrel-dev/screenlens/pkg/domain"
)

// BulkInsertCards inserts timeline cards produced at the end of phase 2.
func (s *Store) BulkInsertCards(ctx context.Context, cards []*domain.TimelineCard) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: begin bulk card insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]int64, 0, len(cards))
	for _, c := range cards {
		distractionsJSON, err := json.Marshal(nonNilDistractions(c.Distractions))
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: marshal distractions: %w", err)
		}
		secondaryJSON, err := json.Marshal(nonNilStrings(c.SecondaryApps))
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: marshal secondary apps: %w", err)
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO timeline_cards
			(session_id, llm_call_id, start_time, end_time, category, subcategory, title, summary,
			 detailed_summary, distractions, primary_app, secondary_apps, preview_path)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.SessionID, c.LLMCallID, c.StartTime.UTC().Format(timeLayout), c.EndTime.UTC().Format(timeLayout),
			string(c.Category), c.Subcategory, c.Title, c.Summary, c.DetailedSummary,
			string(distractionsJSON), c.PrimaryApp, string(secondaryJSON), c.PreviewPath)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: bulk insert card: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: bulk card insert id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlitestore: commit bulk card insert: %w", err)
	}
	return ids, nil
}

func nonNilDistractions(d []domain.Distraction) []domain.Distraction {
	if d == nil {
		return []domain.Distraction{}
	}
	return d
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func scanCard(row interface{ Scan(...any) error }) (*domain.TimelineCard, error) {
	var c domain.TimelineCard
	var start, end, category, distractionsJSON, secondaryJSON string
	var llmCallID sql.NullInt64
	if err := row.Scan(&c.ID, &c.SessionID, &llmCallID, &start, &end, &category, &c.Subcategory,
		&c.Title, &c.Summary, &c.DetailedSummary, &distractionsJSON, &c.PrimaryApp, &secondaryJSON, &c.PreviewPath); err != nil {
		return nil, err
	}
	if llmCallID.Valid {
		v := llmCallID.Int64
		c.LLMCallID = &v
	}
	c.Category = domain.Category(category)
	var err error
	if c.StartTime, err = time.Parse(timeLayout, start); err != nil {
		return nil, fmt.Errorf("parse card start_time: %w", err)
	}
	if c.EndTime, err = time.Parse(timeLayout, end); err != nil {
		return nil, fmt.Errorf("parse card end_time: %w", err)
	}
	if err := json.Unmarshal([]byte(distractionsJSON), &c.Distractions); err != nil {
		return nil, fmt.Errorf("unmarshal distractions: %w", err)
	}
	if err := json.Unmarshal([]byte(secondaryJSON), &c.SecondaryApps); err != nil {
		return nil, fmt.Errorf("unmarshal secondary apps: %w", err)
	}
	return &c, nil
}

const cardColumns = `id, session_id, llm_call_id, start_time, end_time, category, subcategory, title,
	summary, detailed_summary, distractions, primary_app, secondary_apps, preview_path`

// GetCardsBySession returns cards for a session ordered by start time.
func (s *Store) GetCardsBySession(ctx context.Context, sessionID int64) ([]*domain.TimelineCard, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+cardColumns+` FROM timeline_cards WHERE session_id = ? ORDER BY start_time ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query cards for session %d: %w", sessionID, err)
	}
	defer rows.Close()
	return collectCards(rows)
}

// GetRecentCards returns the most recent cards across sessions for a
// device, used as phase 2's "previous" continuity context.
func (s *Store) GetRecentCards(ctx context.Context, deviceID string, limit int) ([]*domain.TimelineCard, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+cardColumns+` FROM timeline_cards
		JOIN sessions ON sessions.id = timeline_cards.session_id
		WHERE sessions.device_id = ? OR ? = ''
		ORDER BY timeline_cards.start_time DESC LIMIT ?`, deviceID, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query recent cards: %w", err)
	}
	defer rows.Close()
	return collectCards(rows)
}

func collectCards(rows *sql.Rows) ([]*domain.TimelineCard, error) {
	var out []*domain.TimelineCard
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: scan card: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCardsBySession removes all card rows for a session.
func (s *Store) DeleteCardsBySession(ctx context.Context, sessionID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM timeline_cards WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("sqlitestore: delete cards for session %d: %w", sessionID, err)
	}
	return nil
}
