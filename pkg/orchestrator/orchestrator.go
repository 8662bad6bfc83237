// Package orchestrator implements the Analysis Orchestrator: the
// component that turns one WindowReady event into an assembled clip, a
// two-phase LLM analysis, and a persisted session/segments/cards
// triple. The Start/Stop/subscribe-and-run shape mirrors the teacher's
// pkg/queue.Worker polling loop, adapted from polling a DB queue to
// draining an in-process eventbus.Subscription.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/eventbus"
	"github.com/kestrel-dev/screenlens/pkg/llm"
	"github.com/kestrel-dev/screenlens/pkg/llm/manager"
	"github.com/kestrel-dev/screenlens/pkg/status"
	"github.com/kestrel-dev/screenlens/pkg/storage"
	"github.com/kestrel-dev/screenlens/pkg/video"
)

// ContinuityLimit is how many of the device's most recent timeline
// cards are passed as phase-2 continuity context.
const ContinuityLimit = 3

// Config controls per-window behavior that does not change the shape
// of the pipeline itself.
type Config struct {
	DeviceID        string
	FramesDir       string
	VideosDir       string
	Resolution      video.Resolution
	SpeedMultiplier float64
	AddTimestamp    bool
}

// Orchestrator owns the subscription loop that drives WindowReady
// events through the full pipeline described in §4.5.
type Orchestrator struct {
	cfg       Config
	store     storage.Store
	manager   *manager.Manager
	assembler *video.Assembler
	statusAct *status.Actor
	bus       *eventbus.Bus

	sub    *eventbus.Subscription
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs an Orchestrator. None of the dependencies may be nil.
func New(cfg Config, store storage.Store, mgr *manager.Manager, assembler *video.Assembler, statusAct *status.Actor, bus *eventbus.Bus) *Orchestrator {
	if store == nil {
		panic("orchestrator.New: store must not be nil")
	}
	if mgr == nil {
		panic("orchestrator.New: manager must not be nil")
	}
	if assembler == nil {
		panic("orchestrator.New: assembler must not be nil")
	}
	if statusAct == nil {
		panic("orchestrator.New: status actor must not be nil")
	}
	if bus == nil {
		panic("orchestrator.New: bus must not be nil")
	}
	if cfg.SpeedMultiplier <= 0 {
		cfg.SpeedMultiplier = 1
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		manager:   mgr,
		assembler: assembler,
		statusAct: statusAct,
		bus:       bus,
		stopCh:    make(chan struct{}),
	}
}

// Start subscribes to the bus and begins processing WindowReady events
// in a background goroutine, one window at a time (matching §5's "the
// LLM Manager Actor... serializes concurrent window analyses").
func (o *Orchestrator) Start(ctx context.Context) {
	o.sub = o.bus.Subscribe()
	o.wg.Add(1)
	go o.run(ctx)
}

// Stop unsubscribes and waits for any in-flight window to finish.
func (o *Orchestrator) Stop() {
	close(o.stopCh)
	if o.sub != nil {
		o.sub.Unsubscribe()
	}
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case evt, ok := <-o.sub.C():
			if !ok {
				return
			}
			if evt.Type != eventbus.EventTypeWindowReady {
				continue
			}
			payload, ok := evt.Payload.(eventbus.WindowReadyPayload)
			if !ok {
				continue
			}
			if err := o.ProcessWindow(ctx, payload); err != nil {
				slog.Warn("orchestrator: window processing failed", "start", payload.Start, "end", payload.End, "error", err)
			}
		}
	}
}

// ProcessWindow runs the full pipeline for one window. It is exported
// so retry_session_analysis (pkg/rpc) can re-drive a failed window
// without waiting for a fresh WindowReady event.
func (o *Orchestrator) ProcessWindow(ctx context.Context, payload eventbus.WindowReadyPayload) error {
	start := time.UnixMilli(payload.Start).UTC()
	end := time.UnixMilli(payload.End).UTC()

	o.statusAct.SetProcessing(true)
	defer o.statusAct.SetProcessing(false)
	o.bus.Publish(eventbus.Event{Type: eventbus.EventTypeAnalysisStarted, Payload: payload})

	// Step 1: gate on provider usability.
	if err := o.manager.HealthCheck(ctx); err != nil {
		o.fail(payload, fmt.Errorf("orchestrator: provider unusable: %w", err))
		return err
	}

	frames, err := listFramesInWindow(o.cfg.FramesDir, start, end)
	if err != nil {
		o.fail(payload, fmt.Errorf("orchestrator: list frames: %w", err))
		return err
	}

	durationMinutes := int(math.Ceil(end.Sub(start).Minutes()))

	// Step 2: video assembly.
	clipPath := o.clipOutputPath(start, end)
	o.bus.Publish(eventbus.Event{Type: eventbus.EventTypeVideoGenerationStarted, Payload: payload})
	clipErr := o.assembler.AssembleClip(ctx, frames, clipPath, video.Options{
		Resolution:      o.cfg.Resolution,
		SpeedMultiplier: o.cfg.SpeedMultiplier,
		AddTimestamp:    o.cfg.AddTimestamp,
	})
	videoPath := clipPath
	if clipErr != nil {
		videoPath = ""
		slog.Warn("orchestrator: clip assembly failed, continuing without a clip", "error", clipErr)
		o.bus.Publish(eventbus.Event{Type: eventbus.EventTypeVideoGenerationFailed, Payload: payload})
	} else {
		o.bus.Publish(eventbus.Event{Type: eventbus.EventTypeVideoGenerationCompleted, Payload: payload})
	}

	// Step 3: placeholder session row.
	session := &domain.Session{
		DeviceID:  o.cfg.DeviceID,
		StartTime: start,
		EndTime:   end,
		Title:     domain.PlaceholderTitle,
		Summary:   domain.PlaceholderSummary,
		VideoPath: videoPath,
		CreatedAt: time.Now().UTC(),
	}
	sessionID, err := o.store.InsertSession(ctx, session)
	if err != nil {
		o.fail(payload, fmt.Errorf("orchestrator: insert placeholder session: %w", err))
		return err
	}
	session.ID = sessionID

	if clipErr != nil {
		o.persistFramesWithoutClip(ctx, sessionID, frames)
	}

	// Step 4: provider priming.
	if err := o.manager.SetProviderDatabase(ctx, o.store); err != nil {
		o.fail(payload, fmt.Errorf("orchestrator: attach provider database: %w", err))
		return err
	}
	if err := o.manager.SetSessionWindow(ctx, sessionID, start, end); err != nil {
		o.fail(payload, fmt.Errorf("orchestrator: set session window: %w", err))
		return err
	}
	if err := o.manager.SetVideoPath(ctx, videoPath); err != nil {
		o.fail(payload, fmt.Errorf("orchestrator: set video path: %w", err))
		return err
	}
	if err := o.manager.SetVideoSpeed(ctx, o.cfg.SpeedMultiplier); err != nil {
		o.fail(payload, fmt.Errorf("orchestrator: set video speed: %w", err))
		return err
	}
	defer o.teardownSession(context.Background())

	previous, err := o.store.GetRecentCards(ctx, o.cfg.DeviceID, ContinuityLimit)
	if err != nil {
		// Continuity is an optimization, not a requirement: a lookup
		// failure here should not abort the window.
		slog.Warn("orchestrator: fetching continuity cards failed", "error", err)
		previous = nil
	}

	// Phases 1 and 2.
	result, err := o.manager.SegmentVideoAndGenerateTimeline(ctx, frames, durationMinutes, previous)
	if err != nil {
		if errors.Is(err, llm.ErrVideoTooShort) {
			return o.abandonTooShort(ctx, sessionID, videoPath)
		}
		o.statusAct.SetError(err.Error())
		o.bus.Publish(eventbus.Event{Type: eventbus.EventTypeAnalysisFailed, Payload: payload})
		return fmt.Errorf("orchestrator: analysis failed, placeholder left for retry: %w", err)
	}

	// Step 7: MM:SS -> absolute time rewrite.
	segments, err := rewriteSegments(sessionID, result.SegmentCallID, start, end, result.Segments)
	if err != nil {
		o.statusAct.SetError(err.Error())
		o.bus.Publish(eventbus.Event{Type: eventbus.EventTypeAnalysisFailed, Payload: payload})
		return fmt.Errorf("orchestrator: rewrite segments: %w", err)
	}
	cards, err := rewriteCards(sessionID, result.TimelineCallID, start, end, videoPath, result.Cards)
	if err != nil {
		o.statusAct.SetError(err.Error())
		o.bus.Publish(eventbus.Event{Type: eventbus.EventTypeAnalysisFailed, Payload: payload})
		return fmt.Errorf("orchestrator: rewrite cards: %w", err)
	}

	// Step 8: persist. A window always collapses to exactly one card
	// (scenario #5: two cards for a single window collapse to one).
	if len(segments) > 0 {
		if _, err := o.store.BulkInsertSegments(ctx, segments); err != nil {
			slog.Warn("orchestrator: bulk insert segments failed", "session_id", sessionID, "error", err)
		}
	}
	collapsed := collapseCards(cards)
	var persistedCards []*domain.TimelineCard
	if collapsed != nil {
		persistedCards = []*domain.TimelineCard{collapsed}
		if _, err := o.store.BulkInsertCards(ctx, persistedCards); err != nil {
			slog.Warn("orchestrator: bulk insert cards failed", "session_id", sessionID, "error", err)
		}
		session.Title = collapsed.Title
		session.Summary = collapsed.Summary
	}
	session.Tags = deriveTags(persistedCards)
	if err := o.store.UpdateSession(ctx, session); err != nil {
		slog.Warn("orchestrator: session finalize update failed", "session_id", sessionID, "error", err)
	}

	// Step 9: frame cleanup, async, only if the clip actually exists.
	if clipErr == nil {
		go cleanupFrames(frames)
	}

	o.statusAct.RecordProcess(time.Now().UTC())
	o.statusAct.ClearError()
	o.bus.Publish(eventbus.Event{Type: eventbus.EventTypeAnalysisCompleted, Payload: payload})
	return nil
}

// abandonTooShort implements the VIDEO_TOO_SHORT error path: delete
// the placeholder session and the clip file, and return with no error
// surfaced to the caller — this is an expected outcome for a mostly-
// idle window, not a failure.
func (o *Orchestrator) abandonTooShort(ctx context.Context, sessionID int64, videoPath string) error {
	if err := o.store.DeleteSession(ctx, sessionID); err != nil {
		slog.Warn("orchestrator: delete placeholder after VIDEO_TOO_SHORT failed", "session_id", sessionID, "error", err)
	}
	if videoPath != "" {
		if err := os.Remove(videoPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("orchestrator: remove clip after VIDEO_TOO_SHORT failed", "path", videoPath, "error", err)
		}
	}
	slog.Info("orchestrator: window too short to analyze, skipped", "session_id", sessionID)
	return nil
}

// teardownSession clears the manager's video path and session window
// (step 10), run with a background context since the triggering
// request context may already be canceled by the time this defer
// fires.
func (o *Orchestrator) teardownSession(ctx context.Context) {
	if err := o.manager.SetVideoPath(ctx, ""); err != nil {
		slog.Warn("orchestrator: clear video path on teardown failed", "error", err)
	}
	if err := o.manager.SetSessionWindow(ctx, 0, time.Time{}, time.Time{}); err != nil {
		slog.Warn("orchestrator: clear session window on teardown failed", "error", err)
	}
}

func (o *Orchestrator) fail(payload eventbus.WindowReadyPayload, err error) {
	o.statusAct.SetError(err.Error())
	o.bus.Publish(eventbus.Event{Type: eventbus.EventTypeAnalysisFailed, Payload: payload})
}

func (o *Orchestrator) persistFramesWithoutClip(ctx context.Context, sessionID int64, frames []string) {
	rows := make([]*domain.Frame, 0, len(frames))
	for _, p := range frames {
		ts, ok := parseFrameFilename(filepath.Base(p))
		if !ok {
			continue
		}
		rows = append(rows, &domain.Frame{
			SessionID: sessionID,
			DeviceID:  o.cfg.DeviceID,
			Timestamp: time.UnixMilli(ts).UTC(),
			Path:      p,
		})
	}
	if len(rows) == 0 {
		return
	}
	if _, err := o.store.BulkInsertFrames(ctx, rows); err != nil {
		slog.Warn("orchestrator: persist frames without clip failed", "session_id", sessionID, "error", err)
	}
}

func (o *Orchestrator) clipOutputPath(start, end time.Time) string {
	name := fmt.Sprintf("%s-%s.mp4", start.Format("200601021504"), end.Format("200601021504"))
	return filepath.Join(o.cfg.VideosDir, name)
}

// cleanupFrames best-effort unlinks frame files once their clip has
// been assembled successfully. Run in a goroutine so a slow or
// failing filesystem never delays the window's own completion.
func cleanupFrames(frames []string) {
	for _, p := range frames {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("orchestrator: cleanup frame failed", "path", p, "error", err)
		}
	}
}

// listFramesInWindow enumerates "<epoch_millis>.jpg" files under dir
// whose parsed timestamp falls in [start,end), sorted ascending —
// mirroring pkg/capture/scheduler.go's own filename parsing so both
// components agree on what a "frame in this window" means.
func listFramesInWindow(dir string, start, end time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type stamped struct {
		path string
		ts   int64
	}
	var matched []stamped
	startMS := start.UnixMilli()
	endMS := end.UnixMilli()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ts, ok := parseFrameFilename(e.Name())
		if !ok || ts < startMS || ts >= endMS {
			continue
		}
		matched = append(matched, stamped{path: filepath.Join(dir, e.Name()), ts: ts})
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ts < matched[j].ts })

	paths := make([]string, len(matched))
	for i, m := range matched {
		paths[i] = m.path
	}
	return paths, nil
}

func parseFrameFilename(name string) (int64, bool) {
	if !strings.HasSuffix(name, ".jpg") {
		return 0, false
	}
	stem := strings.TrimSuffix(name, ".jpg")
	ts, err := strconv.ParseInt(stem, 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
