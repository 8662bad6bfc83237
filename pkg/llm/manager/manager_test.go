package manager_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/llm"
	"github.com/kestrel-dev/screenlens/pkg/llm/manager"
)

type fakeProvider struct {
	configured bool
	ctxSet     llm.SessionContext
	segments   []llm.RawSegment
	cards      []llm.RawCard
}

func (f *fakeProvider) AnalyzeFrames(context.Context, []string) (string, int64, error) {
	return "summary", 1, nil
}
func (f *fakeProvider) SegmentVideo(context.Context, []string, int) ([]llm.RawSegment, int64, error) {
	return f.segments, 2, nil
}
func (f *fakeProvider) GenerateTimeline(context.Context, []llm.RawSegment, []domain.TimelineCard) ([]llm.RawCard, int64, error) {
	return f.cards, 3, nil
}
func (f *fakeProvider) GenerateDaySummary(context.Context, string, []llm.SessionBrief) (string, int64, error) {
	return "day summary", 4, nil
}
func (f *fakeProvider) Configure([]byte) error        { f.configured = true; return nil }
func (f *fakeProvider) IsConfigured() bool             { return f.configured }
func (f *fakeProvider) Capabilities() llm.Capabilities { return llm.Capabilities{VisionSupport: true} }
func (f *fakeProvider) Name() string                   { return "fake" }
func (f *fakeProvider) LastCallID(domain.CallKind) (int64, bool) { return 42, true }
func (f *fakeProvider) SetSessionContext(c llm.SessionContext) { f.ctxSet = c }

func TestManagerSegmentVideoAndGenerateTimeline(t *testing.T) {
	m := manager.New()
	defer m.Stop()

	fp := &fakeProvider{
		segments: []llm.RawSegment{{StartTimestamp: "00:00", EndTimestamp: "15:00", Description: "coding"}},
		cards:    []llm.RawCard{{StartTime: "00:00", EndTime: "15:00", Category: "work", Title: "开发"}},
	}
	ctx := context.Background()
	require.NoError(t, m.SwitchProvider(ctx, fp))
	require.NoError(t, m.Configure(ctx, []byte(`{}`)))
	require.NoError(t, m.SetSessionWindow(ctx, 7, time.Now(), time.Now().Add(15*time.Minute)))

	result, err := m.SegmentVideoAndGenerateTimeline(ctx, nil, 15, nil)
	require.NoError(t, err)
	assert.Len(t, result.Segments, 1)
	assert.Len(t, result.Cards, 1)
	assert.Equal(t, int64(2), result.SegmentCallID)
	assert.Equal(t, int64(3), result.TimelineCallID)
}

func TestManagerHealthCheckFailsWithoutProvider(t *testing.T) {
	m := manager.New()
	defer m.Stop()

	err := m.HealthCheck(context.Background())
	assert.ErrorIs(t, err, llm.ErrNotConfigured)
}

func TestManagerHealthCheckSucceedsWhenConfigured(t *testing.T) {
	m := manager.New()
	defer m.Stop()
	ctx := context.Background()
	fp := &fakeProvider{}
	require.NoError(t, m.SwitchProvider(ctx, fp))
	require.NoError(t, m.Configure(ctx, []byte(`{}`)))

	assert.NoError(t, m.HealthCheck(ctx))
}

func TestManagerClearsVideoPathAndWindowOnTeardown(t *testing.T) {
	m := manager.New()
	defer m.Stop()
	ctx := context.Background()

	fp := &fakeProvider{}
	require.NoError(t, m.SwitchProvider(ctx, fp))

	start := time.Now()
	end := start.Add(15 * time.Minute)
	require.NoError(t, m.SetSessionWindow(ctx, 7, start, end))
	require.NoError(t, m.SetVideoPath(ctx, "/tmp/clip.mp4"))
	require.NoError(t, m.SetVideoSpeed(ctx, 2.0))

	assert.Equal(t, int64(7), fp.ctxSet.SessionID)
	assert.Equal(t, "/tmp/clip.mp4", fp.ctxSet.VideoPath)
	assert.Equal(t, 2.0, fp.ctxSet.Speed)

	// Teardown: clearing back to zero values must actually take, not be
	// swallowed by a "merge only if nonzero" provider-side implementation.
	require.NoError(t, m.SetVideoPath(ctx, ""))
	require.NoError(t, m.SetSessionWindow(ctx, 0, time.Time{}, time.Time{}))

	assert.Equal(t, "", fp.ctxSet.VideoPath)
	assert.Equal(t, int64(0), fp.ctxSet.SessionID)
	assert.True(t, fp.ctxSet.Start.IsZero())
	assert.True(t, fp.ctxSet.End.IsZero())
	// Speed was never re-cleared, so it should survive untouched —
	// SetSessionWindow only owns session id + window, not video path/speed.
	assert.Equal(t, 2.0, fp.ctxSet.Speed)
}

func TestManagerPushesExistingSessionStateToNewlySwitchedProvider(t *testing.T) {
	m := manager.New()
	defer m.Stop()
	ctx := context.Background()

	first := &fakeProvider{}
	require.NoError(t, m.SwitchProvider(ctx, first))
	require.NoError(t, m.SetSessionWindow(ctx, 9, time.Now(), time.Now().Add(time.Minute)))
	require.NoError(t, m.SetVideoPath(ctx, "/tmp/a.mp4"))

	second := &fakeProvider{}
	require.NoError(t, m.SwitchProvider(ctx, second))

	assert.Equal(t, int64(9), second.ctxSet.SessionID)
	assert.Equal(t, "/tmp/a.mp4", second.ctxSet.VideoPath)
}

func TestManagerGetLastCallID(t *testing.T) {
	m := manager.New()
	defer m.Stop()
	ctx := context.Background()
	require.NoError(t, m.SwitchProvider(ctx, &fakeProvider{}))

	id, ok, err := m.GetLastCallID(ctx, domain.CallKindAnalyzeFrames)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
}
