package orchestrator_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/eventbus"
	"github.com/kestrel-dev/screenlens/pkg/llm"
	"github.com/kestrel-dev/screenlens/pkg/llm/manager"
	"github.com/kestrel-dev/screenlens/pkg/orchestrator"
	"github.com/kestrel-dev/screenlens/pkg/status"
	"github.com/kestrel-dev/screenlens/pkg/video"
)

type fakeProvider struct {
	configured bool
	segments   []llm.RawSegment
	cards      []llm.RawCard
	err        error
}

func (f *fakeProvider) AnalyzeFrames(context.Context, []string) (string, int64, error) {
	return "", 0, nil
}
func (f *fakeProvider) SegmentVideo(context.Context, []string, int) ([]llm.RawSegment, int64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.segments, 10, nil
}
func (f *fakeProvider) GenerateTimeline(context.Context, []llm.RawSegment, []domain.TimelineCard) ([]llm.RawCard, int64, error) {
	return f.cards, 11, nil
}
func (f *fakeProvider) GenerateDaySummary(context.Context, string, []llm.SessionBrief) (string, int64, error) {
	return "", 0, nil
}
func (f *fakeProvider) Configure([]byte) error                   { return nil }
func (f *fakeProvider) IsConfigured() bool                       { return f.configured }
func (f *fakeProvider) Capabilities() llm.Capabilities           { return llm.Capabilities{VisionSupport: true} }
func (f *fakeProvider) Name() string                             { return "fake" }
func (f *fakeProvider) LastCallID(domain.CallKind) (int64, bool) { return 0, false }
func (f *fakeProvider) SetSessionContext(llm.SessionContext)     {}

func writeFrame(t *testing.T, dir string, ts time.Time) string {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("%d.jpg", ts.UnixMilli()))
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o644))
	return path
}

func TestProcessWindowPersistsSegmentsCardsAndFinalizesSession(t *testing.T) {
	framesDir := t.TempDir()
	videosDir := t.TempDir()

	start := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(15 * time.Minute)
	writeFrame(t, framesDir, start.Add(time.Minute))
	writeFrame(t, framesDir, start.Add(5*time.Minute))
	writeFrame(t, framesDir, start.Add(14*time.Minute))
	// Outside the window: must be ignored.
	writeFrame(t, framesDir, end.Add(time.Minute))

	fp := &fakeProvider{
		configured: true,
		segments:   []llm.RawSegment{{StartTimestamp: "00:00", EndTimestamp: "15:00", Description: "coding"}},
		cards: []llm.RawCard{
			{StartTime: "00:00", EndTime: "07:00", Category: "work", Title: "写代码", Subcategory: "ide"},
			{StartTime: "07:00", EndTime: "15:00", Category: "work", Title: "看文档", Subcategory: "docs"},
		},
	}

	mgr := manager.New()
	defer mgr.Stop()
	require.NoError(t, mgr.SwitchProvider(context.Background(), fp))

	store := newFakeStore()
	statusAct := status.New()
	defer statusAct.Stop()
	bus := eventbus.New(0)
	assembler := &video.Assembler{} // unresolved binary: AssembleClip always fails, exercising the no-clip path

	o := orchestrator.New(orchestrator.Config{
		DeviceID:        "device-1",
		FramesDir:       framesDir,
		VideosDir:       videosDir,
		SpeedMultiplier: 4,
	}, store, mgr, assembler, statusAct, bus)

	err := o.ProcessWindow(context.Background(), eventbus.WindowReadyPayload{
		Start: start.UnixMilli(), End: end.UnixMilli(), FrameCount: 3,
	})
	require.NoError(t, err)

	require.Len(t, store.sessions, 1)
	var session *domain.Session
	for _, s := range store.sessions {
		session = s
	}
	require.NotNil(t, session)
	assert.NotEqual(t, domain.PlaceholderTitle, session.Title)
	assert.Equal(t, "写代码 等 2 项活动", session.Title)
	assert.Empty(t, session.VideoPath) // clip assembly failed, so no clip

	// Two raw cards for one window collapse to a single persisted card.
	require.Len(t, store.cards, 1)
	require.Len(t, store.segments, 1)

	// Clip failed, so frames are persisted as rows instead of being
	// unlinked, and the out-of-window frame must not appear.
	assert.Len(t, store.frames, 3)

	require.NotEmpty(t, session.Tags)
	assert.Equal(t, domain.CategoryWork, session.Tags[0].Category)
}

func TestProcessWindowVideoTooShortDeletesPlaceholder(t *testing.T) {
	framesDir := t.TempDir()
	videosDir := t.TempDir()
	start := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(15 * time.Minute)

	fp := &fakeProvider{configured: true, err: llm.ErrVideoTooShort}
	mgr := manager.New()
	defer mgr.Stop()
	require.NoError(t, mgr.SwitchProvider(context.Background(), fp))

	store := newFakeStore()
	statusAct := status.New()
	defer statusAct.Stop()
	bus := eventbus.New(0)
	assembler := &video.Assembler{}

	o := orchestrator.New(orchestrator.Config{
		DeviceID:  "device-1",
		FramesDir: framesDir,
		VideosDir: videosDir,
	}, store, mgr, assembler, statusAct, bus)

	err := o.ProcessWindow(context.Background(), eventbus.WindowReadyPayload{
		Start: start.UnixMilli(), End: end.UnixMilli(),
	})
	require.NoError(t, err)
	assert.Empty(t, store.sessions)
}

func TestProcessWindowGateFailsWithoutConfiguredProvider(t *testing.T) {
	framesDir := t.TempDir()
	videosDir := t.TempDir()
	start := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(15 * time.Minute)

	mgr := manager.New()
	defer mgr.Stop()
	require.NoError(t, mgr.SwitchProvider(context.Background(), &fakeProvider{configured: false}))

	store := newFakeStore()
	statusAct := status.New()
	defer statusAct.Stop()
	bus := eventbus.New(0)
	assembler := &video.Assembler{}

	o := orchestrator.New(orchestrator.Config{DeviceID: "d", FramesDir: framesDir, VideosDir: videosDir}, store, mgr, assembler, statusAct, bus)

	err := o.ProcessWindow(context.Background(), eventbus.WindowReadyPayload{Start: start.UnixMilli(), End: end.UnixMilli()})
	assert.Error(t, err)
	assert.Empty(t, store.sessions)
}
