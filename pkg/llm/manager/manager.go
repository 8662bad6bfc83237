// Package manager implements the LLM Manager Actor: the single owner
// of the active Provider and its session-scoped mutable state. All
// provider operations are serialized through one goroutine reading a
// bounded command channel, the same mailbox-plus-one-shot-reply shape
// the teacher uses for pkg/queue.Worker, scaled down from a worker pool
// to a single always-on actor since vision APIs are rate-limited and
// provider state (video path, session window) is scoped per call.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/llm"
)

// QueueCapacity bounds the actor's command mailbox.
const QueueCapacity = 200

// HealthCheckTimeout is the client-side timeout for a HealthCheck
// round-trip, independent of whatever timeout the underlying provider
// call uses internally.
const HealthCheckTimeout = 5 * time.Second

// ErrActorStopped is returned when a caller's command could not be
// enqueued because the actor has shut down.
var ErrActorStopped = errors.New("llm/manager: actor已停止")

// SegmentAndTimelineResult is the composite output of
// SegmentVideoAndGenerateTimeline.
type SegmentAndTimelineResult struct {
	Segments       []llm.RawSegment
	Cards          []llm.RawCard
	SegmentCallID  int64
	TimelineCallID int64
}

type commandKind int

const (
	cmdConfigure commandKind = iota
	cmdSwitchProvider
	cmdSetProviderDatabase
	cmdSetSessionWindow
	cmdSetVideoPath
	cmdSetVideoSpeed
	cmdAnalyzeFrames
	cmdSegmentAndTimeline
	cmdGenerateTimeline
	cmdGenerateDaySummary
	cmdGetLastCallID
	cmdHealthCheck
)

type command struct {
	kind commandKind
	ctx  context.Context

	configRaw     []byte
	provider      llm.Provider
	recorder      llm.CallRecorder
	sessionID     int64
	start, end    time.Time
	videoPath     string
	speed         float64
	framePaths    []string
	durationMins  int
	segments      []llm.RawSegment
	previous      []domain.TimelineCard
	date          string
	sessionBriefs []llm.SessionBrief
	callKind      domain.CallKind

	reply chan result
}

type result struct {
	err          error
	summary      string
	callID       int64
	segments     []llm.RawSegment
	cards        []llm.RawCard
	composite    SegmentAndTimelineResult
	lastCallID   int64
	lastCallIDOK bool
}

// providerRecorder is satisfied by a Provider that also accepts
// session context, which both concrete providers do.
type providerRecorder interface {
	llm.Provider
	llm.SessionAware
}

// recorderAware is implemented by providers that persist their own
// LLMCall audit rows and need the repository handle injected.
type recorderAware interface {
	SetCallRecorder(llm.CallRecorder)
}

// Manager owns the active provider and serializes every operation
// against it through a single goroutine.
type Manager struct {
	cmdCh  chan command
	doneCh chan struct{}
}

// New constructs and starts a Manager with no active provider. Callers
// must send a SwitchProvider command before issuing analysis commands.
func New() *Manager {
	m := &Manager{
		cmdCh:  make(chan command, QueueCapacity),
		doneCh: make(chan struct{}),
	}
	go m.run()
	return m
}

// Stop closes the command channel and waits for the actor loop to
// drain and exit: commands already queued are still processed and
// answered before Stop returns. Commands sent after Stop fail with
// ErrActorStopped.
func (m *Manager) Stop() {
	close(m.cmdCh)
	<-m.doneCh
}

func (m *Manager) run() {
	defer close(m.doneCh)
	var current providerRecorder
	var recorder llm.CallRecorder

	// session is the actor's own mutable session-scoped state (current
	// session id, window, video path, speed), per spec §4.7 — the
	// Manager owns this, not the provider, so a field can be cleared
	// back to its zero value on teardown without that "clear" being
	// indistinguishable from "leave unset".
	var session llm.SessionContext

	pushSession := func() {
		if current != nil {
			current.SetSessionContext(session)
		}
	}

	for cmd := range m.cmdCh {
		switch cmd.kind {
		case cmdConfigure:
			var err error
			if current == nil {
				err = llm.ErrNotConfigured
			} else {
				err = current.Configure(cmd.configRaw)
			}
			m.reply(cmd, result{err: err})

		case cmdSwitchProvider:
			if p, ok := cmd.provider.(providerRecorder); ok {
				current = p
				if recorder != nil {
					if ra, ok := current.(recorderAware); ok {
						ra.SetCallRecorder(recorder)
					}
				}
				pushSession()
				m.reply(cmd, result{})
			} else {
				m.reply(cmd, result{err: fmt.Errorf("llm/manager: provider %T does not implement SessionAware", cmd.provider)})
			}

		case cmdSetProviderDatabase:
			recorder = cmd.recorder
			if current != nil {
				if ra, ok := current.(recorderAware); ok {
					ra.SetCallRecorder(recorder)
				}
			}
			m.reply(cmd, result{})

		case cmdSetSessionWindow:
			session.SessionID = cmd.sessionID
			session.Start = cmd.start
			session.End = cmd.end
			pushSession()
			m.reply(cmd, result{})

		case cmdSetVideoPath:
			session.VideoPath = cmd.videoPath
			pushSession()
			m.reply(cmd, result{})

		case cmdSetVideoSpeed:
			session.Speed = cmd.speed
			pushSession()
			m.reply(cmd, result{})

		case cmdAnalyzeFrames:
			if current == nil {
				m.reply(cmd, result{err: llm.ErrNotConfigured})
				continue
			}
			summary, callID, err := current.AnalyzeFrames(cmd.ctx, cmd.framePaths)
			m.reply(cmd, result{summary: summary, callID: callID, err: err})

		case cmdSegmentAndTimeline:
			if current == nil {
				m.reply(cmd, result{err: llm.ErrNotConfigured})
				continue
			}
			segments, segCallID, err := current.SegmentVideo(cmd.ctx, cmd.framePaths, cmd.durationMins)
			if err != nil {
				m.reply(cmd, result{err: err})
				continue
			}
			cards, timelineCallID, err := current.GenerateTimeline(cmd.ctx, segments, cmd.previous)
			if err != nil {
				m.reply(cmd, result{err: err, segments: segments, composite: SegmentAndTimelineResult{Segments: segments, SegmentCallID: segCallID}})
				continue
			}
			m.reply(cmd, result{composite: SegmentAndTimelineResult{
				Segments: segments, Cards: cards, SegmentCallID: segCallID, TimelineCallID: timelineCallID,
			}})

		case cmdGenerateTimeline:
			if current == nil {
				m.reply(cmd, result{err: llm.ErrNotConfigured})
				continue
			}
			cards, callID, err := current.GenerateTimeline(cmd.ctx, cmd.segments, cmd.previous)
			m.reply(cmd, result{cards: cards, callID: callID, err: err})

		case cmdGenerateDaySummary:
			if current == nil {
				m.reply(cmd, result{err: llm.ErrNotConfigured})
				continue
			}
			summary, callID, err := current.GenerateDaySummary(cmd.ctx, cmd.date, cmd.sessionBriefs)
			m.reply(cmd, result{summary: summary, callID: callID, err: err})

		case cmdGetLastCallID:
			if current == nil {
				m.reply(cmd, result{err: llm.ErrNotConfigured})
				continue
			}
			id, ok := current.LastCallID(cmd.callKind)
			m.reply(cmd, result{lastCallID: id, lastCallIDOK: ok})

		case cmdHealthCheck:
			if current == nil || !current.IsConfigured() {
				m.reply(cmd, result{err: llm.ErrNotConfigured})
				continue
			}
			m.reply(cmd, result{})
		}
	}
}

// reply sends a result on cmd's reply channel without blocking forever:
// if the caller has already given up (dropped context), the send is
// best-effort and silently skipped, matching spec §5's "reply channels
// dropped by the caller cause the actor's send to fail silently."
func (m *Manager) reply(cmd command, r result) {
	select {
	case cmd.reply <- r:
	default:
	}
}

// send enqueues cmd and blocks for its reply. A full queue blocks the
// caller (the documented backpressure mechanism) until either a slot
// opens or ctx is canceled.
func (m *Manager) send(cmd command) (r result, err error) {
	cmd.reply = make(chan result, 1)
	defer func() {
		// A send on the closed command channel panics once Stop has run.
		if recover() != nil {
			r, err = result{}, ErrActorStopped
		}
	}()
	select {
	case m.cmdCh <- cmd:
	case <-cmd.ctx.Done():
		return result{}, cmd.ctx.Err()
	}
	select {
	case r := <-cmd.reply:
		return r, r.err
	case <-cmd.ctx.Done():
		return result{}, cmd.ctx.Err()
	}
}

// SwitchProvider installs p as the active provider.
func (m *Manager) SwitchProvider(ctx context.Context, p llm.Provider) error {
	_, err := m.send(command{kind: cmdSwitchProvider, ctx: ctx, provider: p})
	return err
}

// Configure applies raw JSON configuration to the active provider.
func (m *Manager) Configure(ctx context.Context, raw []byte) error {
	_, err := m.send(command{kind: cmdConfigure, ctx: ctx, configRaw: raw})
	return err
}

// SetProviderDatabase attaches the repository handle providers use to
// write their own LLMCall audit rows.
func (m *Manager) SetProviderDatabase(ctx context.Context, recorder llm.CallRecorder) error {
	_, err := m.send(command{kind: cmdSetProviderDatabase, ctx: ctx, recorder: recorder})
	return err
}

// SetSessionWindow scopes subsequent calls to sessionID and [start,end).
func (m *Manager) SetSessionWindow(ctx context.Context, sessionID int64, start, end time.Time) error {
	_, err := m.send(command{kind: cmdSetSessionWindow, ctx: ctx, sessionID: sessionID, start: start, end: end})
	return err
}

// SetVideoPath scopes subsequent calls to a pre-encoded clip.
func (m *Manager) SetVideoPath(ctx context.Context, path string) error {
	_, err := m.send(command{kind: cmdSetVideoPath, ctx: ctx, videoPath: path})
	return err
}

// SetVideoSpeed propagates the playback speed multiplier into the
// phase-1 prompt.
func (m *Manager) SetVideoSpeed(ctx context.Context, speed float64) error {
	_, err := m.send(command{kind: cmdSetVideoSpeed, ctx: ctx, speed: speed})
	return err
}

// AnalyzeFrames runs the legacy single-phase summarization path.
func (m *Manager) AnalyzeFrames(ctx context.Context, framePaths []string) (string, int64, error) {
	r, err := m.send(command{kind: cmdAnalyzeFrames, ctx: ctx, framePaths: framePaths})
	return r.summary, r.callID, err
}

// SegmentVideoAndGenerateTimeline performs both phases of the pipeline
// in one actor turn, so no other caller's work can interleave video
// path / session window state between phase 1 and phase 2.
func (m *Manager) SegmentVideoAndGenerateTimeline(ctx context.Context, framePaths []string, durationMinutes int, previous []domain.TimelineCard) (SegmentAndTimelineResult, error) {
	r, err := m.send(command{kind: cmdSegmentAndTimeline, ctx: ctx, framePaths: framePaths, durationMins: durationMinutes, previous: previous})
	return r.composite, err
}

// GenerateTimeline runs phase 2 standalone (used by regenerate_timeline).
func (m *Manager) GenerateTimeline(ctx context.Context, segments []llm.RawSegment, previous []domain.TimelineCard) ([]llm.RawCard, int64, error) {
	r, err := m.send(command{kind: cmdGenerateTimeline, ctx: ctx, segments: segments, previous: previous})
	return r.cards, r.callID, err
}

// GenerateDaySummary produces a coarse per-day narrative.
func (m *Manager) GenerateDaySummary(ctx context.Context, date string, sessions []llm.SessionBrief) (string, int64, error) {
	r, err := m.send(command{kind: cmdGenerateDaySummary, ctx: ctx, date: date, sessionBriefs: sessions})
	return r.summary, r.callID, err
}

// GetLastCallID returns the most recent LLMCall id for kind.
func (m *Manager) GetLastCallID(ctx context.Context, kind domain.CallKind) (int64, bool, error) {
	r, err := m.send(command{kind: cmdGetLastCallID, ctx: ctx, callKind: kind})
	return r.lastCallID, r.lastCallIDOK, err
}

// HealthCheck pings the active provider with a 5s client-side timeout,
// independent of whatever ctx the caller supplied.
func (m *Manager) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()
	_, err := m.send(command{kind: cmdHealthCheck, ctx: ctx})
	return err
}
