// Package rpc implements the command surface described in spec §6: one
// method per verb the UI/command layer calls. There is no network
// transport here — spec places the UI layer itself out of scope, so
// this is the interface a transport would dispatch onto, called
// directly by cmd/analyzerctl.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kestrel-dev/screenlens/pkg/capture"
	"github.com/kestrel-dev/screenlens/pkg/cleanup"
	"github.com/kestrel-dev/screenlens/pkg/config"
	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/eventbus"
	"github.com/kestrel-dev/screenlens/pkg/llm"
	"github.com/kestrel-dev/screenlens/pkg/llm/manager"
	"github.com/kestrel-dev/screenlens/pkg/orchestrator"
	"github.com/kestrel-dev/screenlens/pkg/status"
	"github.com/kestrel-dev/screenlens/pkg/storage"
	"github.com/kestrel-dev/screenlens/pkg/video"
)

// CoreAPI is the full set of operations the command layer can invoke.
// Every method takes a context and returns either a value or an error;
// there is deliberately no separate "ok bool" convention.
type CoreAPI interface {
	GetDatabaseStatus(ctx context.Context) (*domain.StorageStats, error)
	GetActivities(ctx context.Context, start, end time.Time) ([]domain.ActivityBucket, error)
	GetDaySessions(ctx context.Context, date string) ([]*domain.Session, error)
	GetDaySummary(ctx context.Context, date string, forceRefresh bool) (*domain.DaySummaryCache, error)
	GetSessionDetail(ctx context.Context, id int64) (*SessionDetail, error)
	GetAppConfig(ctx context.Context) (*config.Config, error)
	UpdateConfig(ctx context.Context, next *config.Config) error
	AddManualTag(ctx context.Context, sessionID int64, tag domain.Tag) error
	RemoveTag(ctx context.Context, sessionID int64, tagIndex int) error
	GetSystemStatus(ctx context.Context) (status.Snapshot, error)
	ToggleCapture(ctx context.Context, enabled bool) error
	TriggerAnalysis(ctx context.Context) error
	GenerateVideo(ctx context.Context, sessionID int64, speed float64) (string, error)
	GetVideoURL(ctx context.Context, sessionID int64) (string, error)
	GetVideoData(ctx context.Context, sessionID int64) ([]byte, error)
	TestGenerateVideos(ctx context.Context, settings config.VideoConfig) error
	CleanupStorage(ctx context.Context) error
	GetStorageStats(ctx context.Context) (*domain.StorageStats, error)
	MigrateTimezoneToLocal(ctx context.Context) error
	RefreshDeviceInfo(ctx context.Context, sessionID int64, deviceID string) error
	RetrySessionAnalysis(ctx context.Context, sessionID int64) error
	RegenerateTimeline(ctx context.Context, date string) error
	DeleteSession(ctx context.Context, id int64) error
	OpenStorageFolder(ctx context.Context, which string) error
	TestCapture(ctx context.Context) (string, error)
	TestLLMAPI(ctx context.Context, p llm.Provider, rawConfig []byte) error
}

// SessionDetail bundles a session with its timeline cards and segments,
// the shape a detail view actually renders.
type SessionDetail struct {
	Session  *domain.Session
	Cards    []*domain.TimelineCard
	Segments []*domain.VideoSegment
}

// API is the concrete CoreAPI implementation, wired at daemon startup.
type API struct {
	Store        storage.Store
	ConfigStore  *config.Store
	Manager      *manager.Manager
	Status       *status.Actor
	Orchestrator *orchestrator.Orchestrator
	Assembler    *video.Assembler
	Cleanup      *cleanup.Service
	Scheduler    *capture.Scheduler
	VideosDir    string
	FramesDir    string
}

var _ CoreAPI = (*API)(nil)

func (a *API) GetDatabaseStatus(ctx context.Context) (*domain.StorageStats, error) {
	return a.Store.GetStats(ctx)
}

func (a *API) GetActivities(ctx context.Context, start, end time.Time) ([]domain.ActivityBucket, error) {
	return a.Store.GetActivitiesByDateRange(ctx, start, end, "")
}

func (a *API) GetDaySessions(ctx context.Context, date string) ([]*domain.Session, error) {
	return a.Store.GetSessionsByDate(ctx, date, "")
}

func (a *API) GetDaySummary(ctx context.Context, date string, forceRefresh bool) (*domain.DaySummaryCache, error) {
	if !forceRefresh {
		if cached, err := a.Store.GetDaySummary(ctx, date); err == nil && cached != nil {
			return cached, nil
		}
	}
	sessions, err := a.Store.GetSessionsByDate(ctx, date, "")
	if err != nil {
		return nil, err
	}
	briefs := make([]llm.SessionBrief, 0, len(sessions))
	for _, s := range sessions {
		briefs = append(briefs, llm.SessionBrief{
			SessionID: s.ID, Title: s.Title, Summary: s.Summary,
			Start: s.StartTime, End: s.EndTime, Tags: s.Tags,
		})
	}
	summary, callID, err := a.Manager.GenerateDaySummary(ctx, date, briefs)
	if err != nil {
		return nil, fmt.Errorf("rpc: generate day summary for %s: %w", date, err)
	}
	cache := &domain.DaySummaryCache{Date: date, Summary: summary, SourceLLMCallID: &callID}
	if err := a.Store.UpsertDaySummary(ctx, cache); err != nil {
		return nil, err
	}
	return cache, nil
}

func (a *API) GetSessionDetail(ctx context.Context, id int64) (*SessionDetail, error) {
	s, err := a.Store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, storage.ErrNotFound
	}
	cards, err := a.Store.GetCardsBySession(ctx, id)
	if err != nil {
		return nil, err
	}
	segments, err := a.Store.GetSegmentsBySession(ctx, id)
	if err != nil {
		return nil, err
	}
	return &SessionDetail{Session: s, Cards: cards, Segments: segments}, nil
}

func (a *API) GetAppConfig(ctx context.Context) (*config.Config, error) {
	return a.ConfigStore.Get(), nil
}

func (a *API) UpdateConfig(ctx context.Context, next *config.Config) error {
	return a.ConfigStore.Update(next)
}

func (a *API) AddManualTag(ctx context.Context, sessionID int64, tag domain.Tag) error {
	s, err := a.Store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if s == nil {
		return storage.ErrNotFound
	}
	tag.Category = domain.NormalizeCategory(string(tag.Category))
	tags := append(append([]domain.Tag{}, s.Tags...), tag)
	return a.Store.UpdateSessionTags(ctx, sessionID, tags)
}

func (a *API) RemoveTag(ctx context.Context, sessionID int64, tagIndex int) error {
	s, err := a.Store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if s == nil {
		return storage.ErrNotFound
	}
	if tagIndex < 0 || tagIndex >= len(s.Tags) {
		return fmt.Errorf("rpc: tag index %d out of range for session %d", tagIndex, sessionID)
	}
	tags := append(append([]domain.Tag{}, s.Tags[:tagIndex]...), s.Tags[tagIndex+1:]...)
	return a.Store.UpdateSessionTags(ctx, sessionID, tags)
}

func (a *API) GetSystemStatus(ctx context.Context) (status.Snapshot, error) {
	return a.Status.Get(ctx)
}

func (a *API) ToggleCapture(ctx context.Context, enabled bool) error {
	if a.Scheduler == nil {
		return errors.New("rpc: capture scheduler not wired")
	}
	if enabled {
		a.Scheduler.Start(ctx)
	} else {
		a.Scheduler.Stop()
	}
	a.Status.SetCapturing(enabled)
	return nil
}

func (a *API) TriggerAnalysis(ctx context.Context) error {
	now := time.Now()
	start := now.Add(-15 * time.Minute)
	return a.Orchestrator.ProcessWindow(ctx, eventbus.WindowReadyPayload{
		Start: start.UnixMilli(), End: now.UnixMilli(),
	})
}

func (a *API) GenerateVideo(ctx context.Context, sessionID int64, speed float64) (string, error) {
	s, err := a.Store.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", storage.ErrNotFound
	}
	frames, err := a.Store.GetFramesBySession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if len(frames) == 0 {
		return "", fmt.Errorf("rpc: no frames remain for session %d", sessionID)
	}
	if speed <= 0 {
		speed = 4
	}
	paths := make([]string, len(frames))
	for i, f := range frames {
		paths[i] = f.Path
	}
	out := filepath.Join(a.VideosDir, fmt.Sprintf("session-%d.mp4", sessionID))
	opts := video.Options{Resolution: video.Resolution1080p, SpeedMultiplier: speed, AddTimestamp: true}
	if err := a.Assembler.AssembleClip(ctx, paths, out, opts); err != nil {
		return "", fmt.Errorf("rpc: assemble clip for session %d: %w", sessionID, err)
	}
	if err := a.Store.UpdateSessionVideoPath(ctx, sessionID, out); err != nil {
		return "", err
	}
	return out, nil
}

func (a *API) GetVideoURL(ctx context.Context, sessionID int64) (string, error) {
	s, err := a.Store.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if s == nil || s.VideoPath == "" {
		return "", storage.ErrNotFound
	}
	return "file://" + s.VideoPath, nil
}

func (a *API) GetVideoData(ctx context.Context, sessionID int64) ([]byte, error) {
	s, err := a.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil || s.VideoPath == "" {
		return nil, storage.ErrNotFound
	}
	return os.ReadFile(s.VideoPath)
}

func (a *API) TestGenerateVideos(ctx context.Context, settings config.VideoConfig) error {
	tmp, err := os.MkdirTemp("", "test-generate-videos-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	frame := filepath.Join(tmp, fmt.Sprintf("%d.jpg", time.Now().UnixMilli()))
	if err := os.WriteFile(frame, []byte("jpeg"), 0o644); err != nil {
		return err
	}
	out := filepath.Join(tmp, "probe.mp4")
	opts := video.Options{Resolution: video.Resolution1080p, SpeedMultiplier: settings.SpeedMultiplier, AddTimestamp: settings.AddTimestamp}
	return a.Assembler.AssembleClip(ctx, []string{frame}, out, opts)
}

func (a *API) CleanupStorage(ctx context.Context) error {
	if a.Cleanup == nil {
		return errors.New("rpc: cleanup service not wired")
	}
	a.Cleanup.Sweep(ctx)
	return nil
}

func (a *API) GetStorageStats(ctx context.Context) (*domain.StorageStats, error) {
	return a.Store.GetStats(ctx)
}

func (a *API) MigrateTimezoneToLocal(ctx context.Context) error {
	return a.Store.MigrateTimezoneToLocal(ctx)
}

func (a *API) RefreshDeviceInfo(ctx context.Context, sessionID int64, deviceID string) error {
	return a.Store.UpdateSessionDeviceInfo(ctx, sessionID, deviceID)
}

// RetrySessionAnalysis re-drives the orchestrator pipeline for a
// session still holding its placeholder title, using the frame rows
// persisted for it (the clip-assembly-failed path keeps these; the
// clip-succeeded path does not, and there is nothing left to retry).
func (a *API) RetrySessionAnalysis(ctx context.Context, sessionID int64) error {
	s, err := a.Store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if s == nil {
		return storage.ErrNotFound
	}
	if !s.IsPlaceholder() {
		return fmt.Errorf("rpc: session %d already has a finalized analysis", sessionID)
	}
	frames, err := a.Store.GetFramesBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return fmt.Errorf("rpc: no frames remain to retry analysis for session %d", sessionID)
	}
	if err := a.Store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	return a.Orchestrator.ProcessWindow(ctx, eventbus.WindowReadyPayload{
		Start: s.StartTime.UnixMilli(), End: s.EndTime.UnixMilli(),
	})
}

// RegenerateTimeline re-runs phase 2 over each session's existing
// segments for the given date (or the 1000 most recent sessions if
// date is empty),
// replacing their cards without re-running phase 1's video analysis.
func (a *API) RegenerateTimeline(ctx context.Context, date string) error {
	var sessions []*domain.Session
	var err error
	if date != "" {
		sessions, err = a.Store.GetSessionsByDate(ctx, date, "")
	} else {
		sessions, err = a.Store.GetAllSessions(ctx, 1000, 0)
	}
	if err != nil {
		return err
	}

	for _, s := range sessions {
		segments, err := a.Store.GetSegmentsBySession(ctx, s.ID)
		if err != nil || len(segments) == 0 {
			continue
		}
		raw := make([]llm.RawSegment, len(segments))
		for i, seg := range segments {
			raw[i] = llm.RawSegment{
				StartTimestamp: domain.FormatMMSS(seg.StartTime.Sub(s.StartTime)),
				EndTimestamp:   domain.FormatMMSS(seg.EndTime.Sub(s.StartTime)),
				Description:    seg.Description,
			}
		}
		cards, callID, err := a.Manager.GenerateTimeline(ctx, raw, nil)
		if err != nil {
			return fmt.Errorf("rpc: regenerate timeline for session %d: %w", s.ID, err)
		}
		rewritten, err := orchestrator.RewriteCards(s.ID, callID, s.StartTime, s.EndTime, s.VideoPath, cards)
		if err != nil {
			return err
		}
		if err := a.Store.DeleteCardsBySession(ctx, s.ID); err != nil {
			return err
		}
		if _, err := a.Store.BulkInsertCards(ctx, rewritten); err != nil {
			return err
		}
	}
	return nil
}

func (a *API) DeleteSession(ctx context.Context, id int64) error {
	return a.Store.DeleteSession(ctx, id)
}

func (a *API) OpenStorageFolder(ctx context.Context, which string) error {
	var dir string
	switch which {
	case "frames":
		dir = a.FramesDir
	case "videos":
		dir = a.VideosDir
	default:
		return fmt.Errorf("rpc: unknown storage folder %q", which)
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", dir)
	case "windows":
		cmd = exec.CommandContext(ctx, "explorer", dir)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", dir)
	}
	return cmd.Run()
}

func (a *API) TestCapture(ctx context.Context) (string, error) {
	frames, err := os.ReadDir(a.FramesDir)
	if err != nil {
		return "", fmt.Errorf("rpc: frames directory unreadable: %w", err)
	}
	return fmt.Sprintf("%d frame(s) present in %s", len(frames), a.FramesDir), nil
}

// TestLLMAPI configures the candidate provider and exercises it with a
// real, minimal request (an empty-session day summary, an
// operation that needs no frames) rather than trusting Configure's own
// bookkeeping, so a syntactically valid but wrong key/base_url is
// caught here instead of at the next real analysis.
func (a *API) TestLLMAPI(ctx context.Context, p llm.Provider, rawConfig []byte) error {
	if err := p.Configure(rawConfig); err != nil {
		return err
	}
	if !p.IsConfigured() {
		return errors.New("rpc: provider reports not configured after Configure")
	}
	ctx, cancel := context.WithTimeout(ctx, manager.HealthCheckTimeout)
	defer cancel()
	if _, _, err := p.GenerateDaySummary(ctx, "", nil); err != nil {
		return fmt.Errorf("rpc: provider connectivity check failed: %w", err)
	}
	return nil
}
