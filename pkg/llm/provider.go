// Package llm defines the vision-LLM provider contract shared by the
// cloud HTTP backend (pkg/llm/provider/cloudvision) and the subprocess
// agent backend (pkg/llm/provider/agentproc), grounded on the shape of
// the teacher's pkg/agent.LLMClient interface — a small, uniform
// surface that concrete backends implement and callers never type-switch
// on.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/kestrel-dev/screenlens/pkg/domain"
)

// ErrVideoTooShort is the distinguished sentinel a provider returns
// when phase 1 received fewer than 10 usable frames (or the upstream
// model reports the clip itself is too short). The orchestrator
// recognizes this and converts it into "delete placeholder and clip,
// return cleanly" rather than surfacing an error.
var ErrVideoTooShort = errors.New("llm: video is too short to analyze")

// ErrNotConfigured is returned by any operation attempted before
// Configure has supplied valid credentials.
var ErrNotConfigured = errors.New("llm: provider is not configured")

// MinUsableFrames is the floor below which segment_video must fail with
// ErrVideoTooShort rather than attempt a call.
const MinUsableFrames = 10

// Capabilities describes what a provider supports, queried once by the
// orchestrator/manager to decide which pipeline shape to use.
type Capabilities struct {
	VisionSupport         bool
	BatchAnalysis         bool
	Streaming             bool
	MaxInputTokens        int
	SupportedImageFormats []string
}

// SessionBrief is the compact per-session input to GenerateDaySummary.
type SessionBrief struct {
	SessionID int64
	Title     string
	Summary   string
	Start     time.Time
	End       time.Time
	Tags      []domain.Tag
}

// RawSegment is phase 1's output shape before MM:SS→absolute rewriting.
type RawSegment struct {
	StartTimestamp string // "MM:SS", relative to window start
	EndTimestamp   string
	Description    string
}

// RawDistraction mirrors domain.Distraction but with relative MM:SS
// fields, parsed heuristically from free text by the provider before
// the orchestrator ever sees it.
type RawDistraction struct {
	StartTimestamp string
	EndTimestamp   string
	Title          string
	Summary        string
}

// RawCard is phase 2's output shape before MM:SS→absolute rewriting.
type RawCard struct {
	StartTime       string
	EndTime         string
	Category        string
	Subcategory     string
	Title           string
	Summary         string
	DetailedSummary string
	Distractions    []RawDistraction
	PrimaryApp      string
	SecondaryApps   []string
}

// Provider is the uniform interface every vision-LLM backend
// implements. CallID-returning methods let the orchestrator link the
// persisted LLMCall row to the segments/cards it produced.
type Provider interface {
	// AnalyzeFrames is the legacy single-phase, day-only summarization
	// path: a straight vision call over a frame set with no segmenting.
	AnalyzeFrames(ctx context.Context, framePaths []string) (summary string, callID int64, err error)

	// SegmentVideo is phase 1 of the two-phase pipeline. framePaths may
	// be empty when a pre-encoded clip has been set via SetVideoPath on
	// the owning manager; durationMinutes is ceil((end-start)/60s).
	SegmentVideo(ctx context.Context, framePaths []string, durationMinutes int) (segments []RawSegment, callID int64, err error)

	// GenerateTimeline is phase 2, text-only. previous supplies optional
	// continuity context (most recent cards of the prior window); nil
	// means no continuity hint.
	GenerateTimeline(ctx context.Context, segments []RawSegment, previous []domain.TimelineCard) (cards []RawCard, callID int64, err error)

	// GenerateDaySummary produces a coarse narrative aggregation over a
	// calendar date's sessions.
	GenerateDaySummary(ctx context.Context, date string, sessions []SessionBrief) (summary string, callID int64, err error)

	// Configure applies provider-specific JSON configuration (API key,
	// model, base URL, ...). Safe to call repeatedly; the most recent
	// call wins.
	Configure(raw []byte) error

	// IsConfigured reports whether the provider currently has the
	// credentials it needs to make a call.
	IsConfigured() bool

	// Capabilities reports what this provider supports.
	Capabilities() Capabilities

	// Name returns the provider's short identifier ("cloudvision", "agentproc", ...).
	Name() string

	// LastCallID returns the most recent LLMCall id recorded for kind,
	// or false if none has been made yet.
	LastCallID(kind domain.CallKind) (int64, bool)
}

// SessionContext is the mutable, session-scoped state a Provider
// implementation needs injected before a two-phase run: the active
// session id to link LLMCall rows to, the window bounds, the video clip
// path (for video-mode providers), and the playback speed multiplier
// baked into prompts. The repository handle for writing LLMCall rows is
// injected separately, through the provider's SetCallRecorder.
// This mirrors spec §4.5 step 4 ("provider priming") and is set by the
// LLM Manager Actor, never called directly by the orchestrator.
type SessionContext struct {
	SessionID int64
	Start     time.Time
	End       time.Time
	VideoPath string
	Speed     float64
}

// SessionAware is implemented by providers that need SessionContext
// injected before a call (both concrete providers do).
type SessionAware interface {
	SetSessionContext(SessionContext)
}
