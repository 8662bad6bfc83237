package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/storage"
)

// InsertLLMCall persists one LLM invocation audit row. If SessionID is
// set, the parent session must exist (sqlite enforces this via its own
// foreign-key pragma, already enabled at Open).
func (s *Store) InsertLLMCall(ctx context.Context, c *domain.LLMCall) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO llm_calls
		(session_id, provider, model, kind, request_headers, request_body, response_headers,
		 response_body, status_code, error_message, latency_ms, token_usage, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.SessionID, c.Provider, c.Model, string(c.Kind), c.RequestHeaders, c.RequestBody,
		c.ResponseHeaders, c.ResponseBody, c.StatusCode, c.ErrorMessage, c.LatencyMS, c.TokenUsage,
		time.Now().UTC().Format(timeLayout))
	if err != nil {
		if containsFold(err.Error(), "FOREIGN KEY constraint failed") {
			return 0, fmt.Errorf("sqlitestore: insert llm_call references missing session: %w", storage.ErrForeignKey)
		}
		return 0, fmt.Errorf("sqlitestore: insert llm_call: %w", err)
	}
	return res.LastInsertId()
}

func scanLLMCall(row interface{ Scan(...any) error }) (*domain.LLMCall, error) {
	var c domain.LLMCall
	var sessionID sql.NullInt64
	var kind, created string
	if err := row.Scan(&c.ID, &sessionID, &c.Provider, &c.Model, &kind, &c.RequestHeaders, &c.RequestBody,
		&c.ResponseHeaders, &c.ResponseBody, &c.StatusCode, &c.ErrorMessage, &c.LatencyMS, &c.TokenUsage, &created); err != nil {
		return nil, err
	}
	if sessionID.Valid {
		v := sessionID.Int64
		c.SessionID = &v
	}
	c.Kind = domain.CallKind(kind)
	var err error
	if c.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("parse llm_call created_at: %w", err)
	}
	return &c, nil
}

const llmCallColumns = `id, session_id, provider, model, kind, request_headers, request_body,
	response_headers, response_body, status_code, error_message, latency_ms, token_usage, created_at`

// GetLLMCallsBySession returns the LLM call audit trail for a session.
func (s *Store) GetLLMCallsBySession(ctx context.Context, sessionID int64) ([]*domain.LLMCall, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+llmCallColumns+` FROM llm_calls WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query llm_calls for session %d: %w", sessionID, err)
	}
	defer rows.Close()
	return collectLLMCalls(rows)
}

// GetRecentLLMErrors returns the most recent LLM calls with a non-empty
// error message.
func (s *Store) GetRecentLLMErrors(ctx context.Context, limit int) ([]*domain.LLMCall, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+llmCallColumns+` FROM llm_calls
		WHERE error_message != '' ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query recent llm errors: %w", err)
	}
	defer rows.Close()
	return collectLLMCalls(rows)
}

func collectLLMCalls(rows *sql.Rows) ([]*domain.LLMCall, error) {
	var out []*domain.LLMCall
	for rows.Next() {
		c, err := scanLLMCall(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: scan llm_call: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteLLMCallsBySession removes all LLM call rows for a session.
func (s *Store) DeleteLLMCallsBySession(ctx context.Context, sessionID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM llm_calls WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("sqlitestore: delete llm_calls for session %d: %w", sessionID, err)
	}
	return nil
}
