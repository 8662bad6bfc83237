package mysqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/storage"
)

// InsertLLMCall persists one LLM invocation audit row. Unlike the
// embedded backend, which relies on sqlite's own pragma-enabled
// foreign-key enforcement, this backend pre-checks the parent session
// with an explicit SELECT before inserting, so the caller gets a
// descriptive storage.ErrForeignKey naming the missing parent id rather
// than a raw driver error (the same posture the driver-level check in
// isForeignKeyViolation backstops for races between the check and the
// insert).
func (s *Store) InsertLLMCall(ctx context.Context, c *domain.LLMCall) (int64, error) {
	if c.SessionID != nil {
		if err := checkSessionExists(ctx, s.db, *c.SessionID); err != nil {
			return 0, fmt.Errorf("mysqlstore: insert llm_call: %w", err)
		}
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO llm_calls
		(session_id, provider, model, kind, request_headers, request_body, response_headers,
		 response_body, status_code, error_message, latency_ms, token_usage, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.SessionID, c.Provider, c.Model, string(c.Kind), c.RequestHeaders, c.RequestBody,
		c.ResponseHeaders, c.ResponseBody, c.StatusCode, c.ErrorMessage, c.LatencyMS, c.TokenUsage,
		time.Now().UTC())
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, fmt.Errorf("mysqlstore: insert llm_call references missing session: %w", storage.ErrForeignKey)
		}
		return 0, fmt.Errorf("mysqlstore: insert llm_call: %w", err)
	}
	return res.LastInsertId()
}

func scanLLMCall(row interface{ Scan(...any) error }) (*domain.LLMCall, error) {
	var c domain.LLMCall
	var sessionID sql.NullInt64
	var kind string
	if err := row.Scan(&c.ID, &sessionID, &c.Provider, &c.Model, &kind, &c.RequestHeaders, &c.RequestBody,
		&c.ResponseHeaders, &c.ResponseBody, &c.StatusCode, &c.ErrorMessage, &c.LatencyMS, &c.TokenUsage, &c.CreatedAt); err != nil {
		return nil, err
	}
	if sessionID.Valid {
		v := sessionID.Int64
		c.SessionID = &v
	}
	c.Kind = domain.CallKind(kind)
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

const llmCallColumns = `id, session_id, provider, model, kind, request_headers, request_body,
	response_headers, response_body, status_code, error_message, latency_ms, token_usage, created_at`

// GetLLMCallsBySession returns the LLM call audit trail for a session.
func (s *Store) GetLLMCallsBySession(ctx context.Context, sessionID int64) ([]*domain.LLMCall, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+llmCallColumns+` FROM llm_calls WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: query llm_calls for session %d: %w", sessionID, err)
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
		return nil, fmt.Errorf("mysqlstore: query recent llm errors: %w", err)
	}
	defer rows.Close()
	return collectLLMCalls(rows)
}

func collectLLMCalls(rows *sql.Rows) ([]*domain.LLMCall, error) {
	var out []*domain.LLMCall
	for rows.Next() {
		c, err := scanLLMCall(rows)
		if err != nil {
			return nil, fmt.Errorf("mysqlstore: scan llm_call: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteLLMCallsBySession removes all LLM call rows for a session.
func (s *Store) DeleteLLMCallsBySession(ctx context.Context, sessionID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM llm_calls WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("mysqlstore: delete llm_calls for session %d: %w", sessionID, err)
	}
	return nil
}
