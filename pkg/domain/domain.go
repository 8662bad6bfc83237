// Package domain holds the persisted entities of the screen activity
// analyzer: sessions, frames, video segments, timeline cards, LLM call
// audit rows, and the per-day summary cache. These are plain Go structs;
// the storage backends (pkg/storage/sqlitestore, pkg/storage/mysqlstore)
// map them onto rows, since generated query-builder code is not available
// here (see DESIGN.md).
package domain

import "time"

// Category is the closed set of six timeline-card activity categories.
type Category string

// The six closed-set categories. Any other value observed from an LLM
// response MUST be mapped to CategoryOther on ingest.
const (
	CategoryWork          Category = "work"
	CategoryCommunication Category = "communication"
	CategoryLearning      Category = "learning"
	CategoryPersonal      Category = "personal"
	CategoryIdle          Category = "idle"
	CategoryOther         Category = "other"
)

var validCategories = map[Category]struct{}{
	CategoryWork:          {},
	CategoryCommunication: {},
	CategoryLearning:      {},
	CategoryPersonal:      {},
	CategoryIdle:          {},
	CategoryOther:         {},
}

// IsValid reports whether c is one of the six closed-set values.
func (c Category) IsValid() bool {
	_, ok := validCategories[c]
	return ok
}

// NormalizeCategory maps a mis-cased closed-set value ("Work") to its
// lower-case category and any other value to CategoryOther, per
// invariant 2.
func NormalizeCategory(raw string) Category {
	c := Category(raw)
	if c.IsValid() {
		return c
	}
	lowered := Category(lowerASCII(raw))
	if lowered.IsValid() {
		return lowered
	}
	return CategoryOther
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// CallKind identifies the kind of LLM invocation an LLMCall row records.
type CallKind string

const (
	CallKindAnalyzeFrames     CallKind = "analyze_frames"
	CallKindSegmentVideo      CallKind = "segment_video"
	CallKindGenerateTimeline  CallKind = "generate_timeline"
	CallKindGenerateDaySummary CallKind = "generate_day_summary"
	CallKindHealthCheck       CallKind = "health_check"
)

// PlaceholderTitle and PlaceholderSummary are written into a Session row
// the moment it is created, before phase 1/2 complete. A session whose
// Title still equals PlaceholderTitle has not finished analysis.
const (
	PlaceholderTitle   = "处理中..."
	PlaceholderSummary = "正在分析..."
)

// Session is a fixed-duration window of activity (default 15 minutes).
type Session struct {
	ID        int64
	DeviceID  string
	StartTime time.Time // UTC
	EndTime   time.Time // UTC
	Title     string
	Summary   string
	VideoPath string // empty if no clip was assembled
	Tags      []Tag  // JSON-serialized in storage
	CreatedAt time.Time
}

// IsPlaceholder reports whether the session has not yet been finalized
// by phase 2 of the analysis pipeline.
func (s *Session) IsPlaceholder() bool {
	return s.Title == PlaceholderTitle
}

// Tag is one derived category weighting for a session, computed from its
// timeline cards (see pkg/orchestrator tag derivation).
type Tag struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Keywords   []string `json:"keywords"`
}

// Frame is one captured image.
type Frame struct {
	ID        int64
	SessionID int64 // 0 until the owning session is created
	DeviceID  string
	Timestamp time.Time // UTC, millisecond precision
	Path      string
}

// VideoSegment is one temporal span identified by the LLM inside a
// session (phase 1 output, rewritten from MM:SS to absolute RFC3339).
type VideoSegment struct {
	ID          int64
	SessionID   int64
	LLMCallID   *int64 // nullable, ON DELETE SET NULL
	StartTime   time.Time
	EndTime     time.Time
	Description string
}

// Distraction is a nested sub-interval of reduced focus within a
// TimelineCard, parsed heuristically from free-text LLM output.
type Distraction struct {
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Title     string     `json:"title"`
	Summary   string     `json:"summary"`
}

// TimelineCard is one high-level activity card spanning one or more
// segments (phase 2 output, possibly collapsed — see §4.5.1).
type TimelineCard struct {
	ID              int64
	SessionID       int64
	LLMCallID       *int64
	StartTime       time.Time
	EndTime         time.Time
	Category        Category
	Subcategory     string
	Title           string
	Summary         string
	DetailedSummary string
	Distractions    []Distraction
	PrimaryApp      string
	SecondaryApps   []string
	PreviewPath     string
}

// LLMCall is one outbound model invocation, persisted for audit and
// chargeback.
type LLMCall struct {
	ID              int64
	SessionID       *int64 // nullable — health checks have none
	Provider        string
	Model           string
	Kind            CallKind
	RequestHeaders  string // sanitized
	RequestBody     string // sanitized: media blobs replaced by length markers
	ResponseHeaders string
	ResponseBody    string // truncated
	StatusCode      int
	ErrorMessage    string
	LatencyMS       int64
	TokenUsage      string // JSON
	CreatedAt       time.Time
}

// DaySummaryCache is one per calendar date, an aggregation over that
// day's sessions.
type DaySummaryCache struct {
	Date              string // YYYY-MM-DD, unique key
	Summary           string
	DeviceStats       string // JSON
	ParallelWork      string // JSON
	UsagePatterns     string // JSON
	ActiveDeviceCount int
	SourceLLMCallID   *int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ActivityBucket is one row of the activities-by-date-range aggregate.
type ActivityBucket struct {
	Date            string
	SessionCount    int
	TotalMinutes    float64
	MainCategories  []Category
}

// StorageStats is the result of the "stats" aggregate query.
type StorageStats struct {
	SessionCount int
	FrameCount   int
	DBSizeBytes  int64
}
