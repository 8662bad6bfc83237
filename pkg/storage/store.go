// Package storage defines the single repository contract implemented by
// the two interchangeable backends (pkg/storage/sqlitestore, an embedded
// file engine, and pkg/storage/mysqlstore, a networked SQL engine) plus a
// transparent LRU caching wrapper (pkg/storage/cache).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/kestrel-dev/screenlens/pkg/domain"
)

// Sentinel errors returned by Store implementations. Callers use
// errors.Is against these rather than matching driver-specific strings.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrForeignKey indicates a write referenced a parent row that does
	// not exist. On the networked backend this is raised by an explicit
	// pre-check (see §4.1 failure semantics); on the embedded backend only
	// InsertLLMCall maps the driver's foreign-key failure onto it, and the
	// other inserts return the driver's error without this sentinel.
	ErrForeignKey = errors.New("storage: foreign key violation")

	// ErrDuplicateWindow indicates an insert would violate the
	// at-most-one-session-per-(device,window_start) invariant.
	ErrDuplicateWindow = errors.New("storage: session already exists for this device/window")
)

// TimezonePolicy records which of the two historical timestamp
// representations the current schema uses. See DESIGN.md for the Open
// Question resolution: this repository stores UTC uniformly and the
// migration, if ever run, is one-directional (local -> UTC).
type TimezonePolicy string

const (
	TimezoneUTC   TimezonePolicy = "utc"
	TimezoneLocal TimezonePolicy = "local"
)

// Store is the single operation set implemented by both backends.
type Store interface {
	// Lifecycle

	// InitializeTables applies the embedded schema migrations for this
	// backend's dialect. Idempotent.
	InitializeTables(ctx context.Context) error

	// DBType reports the backend identity: "sqlite" or "mariadb".
	DBType() string

	// Close releases underlying connections.
	Close() error

	// Sessions

	InsertSession(ctx context.Context, s *domain.Session) (int64, error)
	BulkInsertSessions(ctx context.Context, sessions []*domain.Session) ([]int64, error)
	GetSession(ctx context.Context, id int64) (*domain.Session, error)
	GetSessionsByDate(ctx context.Context, date string, deviceID string) ([]*domain.Session, error)
	GetAllSessions(ctx context.Context, limit, offset int) ([]*domain.Session, error)
	UpdateSession(ctx context.Context, s *domain.Session) error
	DeleteSession(ctx context.Context, id int64) error
	UpdateSessionTags(ctx context.Context, id int64, tags []domain.Tag) error
	UpdateSessionVideoPath(ctx context.Context, id int64, videoPath string) error
	UpdateSessionDeviceInfo(ctx context.Context, id int64, deviceID string) error

	// Frames

	InsertFrame(ctx context.Context, f *domain.Frame) (int64, error)
	BulkInsertFrames(ctx context.Context, frames []*domain.Frame) ([]int64, error)
	GetFramesBySession(ctx context.Context, sessionID int64) ([]*domain.Frame, error)
	DeleteFramesBySession(ctx context.Context, sessionID int64) error

	// Segments

	BulkInsertSegments(ctx context.Context, segments []*domain.VideoSegment) ([]int64, error)
	GetSegmentsBySession(ctx context.Context, sessionID int64) ([]*domain.VideoSegment, error)
	DeleteSegmentsBySession(ctx context.Context, sessionID int64) error

	// Cards

	BulkInsertCards(ctx context.Context, cards []*domain.TimelineCard) ([]int64, error)
	GetCardsBySession(ctx context.Context, sessionID int64) ([]*domain.TimelineCard, error)
	GetRecentCards(ctx context.Context, deviceID string, limit int) ([]*domain.TimelineCard, error)
	DeleteCardsBySession(ctx context.Context, sessionID int64) error

	// LLM calls

	InsertLLMCall(ctx context.Context, c *domain.LLMCall) (int64, error)
	GetLLMCallsBySession(ctx context.Context, sessionID int64) ([]*domain.LLMCall, error)
	GetRecentLLMErrors(ctx context.Context, limit int) ([]*domain.LLMCall, error)
	DeleteLLMCallsBySession(ctx context.Context, sessionID int64) error

	// Day summaries

	UpsertDaySummary(ctx context.Context, d *domain.DaySummaryCache) error
	GetDaySummary(ctx context.Context, date string) (*domain.DaySummaryCache, error)
	DeleteDaySummary(ctx context.Context, date string) error

	// Aggregates

	GetActivitiesByDateRange(ctx context.Context, start, end time.Time, deviceID string) ([]domain.ActivityBucket, error)
	GetStats(ctx context.Context) (*domain.StorageStats, error)
	GetDistinctAnalyzedVideoPaths(ctx context.Context) ([]string, error)

	// Retention support

	// SessionsStartingBefore returns sessions whose start_time is before
	// cutoff, for the cleaner to read file paths before cascading delete.
	SessionsStartingBefore(ctx context.Context, cutoff time.Time) ([]*domain.Session, error)
	// DeleteSessionsStartingBefore performs the cascading delete itself
	// and returns the count removed.
	DeleteSessionsStartingBefore(ctx context.Context, cutoff time.Time) (int, error)

	// MigrateTimezoneToLocal is the one-shot migration named in spec §9.
	// In this repository's chosen policy (store UTC, see DESIGN.md) it is
	// a no-op in both backends, never a live rewrite in the opposite
	// direction.
	MigrateTimezoneToLocal(ctx context.Context) error
}

// SessionAlreadyExistsError is returned by BulkInsertSessions/InsertSession
// when the (device, window_start) dedup key already has a row, wrapping
// ErrDuplicateWindow with the offending bucket for logging.
type SessionAlreadyExistsError struct {
	DeviceID    string
	WindowStart time.Time
}

func (e *SessionAlreadyExistsError) Error() string {
	return "storage: session already exists for device " + e.DeviceID + " at window " + e.WindowStart.Format(time.RFC3339)
}

func (e *SessionAlreadyExistsError) Unwrap() error { return ErrDuplicateWindow }
