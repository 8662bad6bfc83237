package cloudvision_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/llm"
	"github.com/kestrel-dev/screenlens/pkg/llm/provider/cloudvision"
)

type fakeRecorder struct {
	calls []*domain.LLMCall
}

func (f *fakeRecorder) InsertLLMCall(_ context.Context, c *domain.LLMCall) (int64, error) {
	f.calls = append(f.calls, c)
	return int64(len(f.calls)), nil
}

func writeTestFrames(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, n)
	for i := 0; i < n; i++ {
		p := filepath.Join(dir, "frame.jpg")
		require.NoError(t, os.WriteFile(p, []byte("jpegbytes"), 0o644))
		paths[i] = p
	}
	return paths
}

func newConfiguredProvider(t *testing.T, baseURL string) *cloudvision.Provider {
	t.Helper()
	p := cloudvision.New()
	require.NoError(t, p.Configure([]byte(`{"api_key":"k","base_url":"`+baseURL+`","model":"qwen-vl"}`)))
	return p
}

func TestAnalyzeFramesReturnsSummaryAndRecordsCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"在写代码"}}]}`))
	}))
	defer srv.Close()

	p := newConfiguredProvider(t, srv.URL)
	rec := &fakeRecorder{}
	p.SetCallRecorder(rec)

	summary, callID, err := p.AnalyzeFrames(context.Background(), writeTestFrames(t, 12))
	require.NoError(t, err)
	assert.Equal(t, "在写代码", summary)
	assert.Equal(t, int64(1), callID)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, domain.CallKindAnalyzeFrames, rec.calls[0].Kind)
	assert.NotContains(t, rec.calls[0].RequestBody, "jpegbytes")
}

func TestAnalyzeFramesRejectsTooFewFrames(t *testing.T) {
	p := newConfiguredProvider(t, "http://unused.invalid")
	_, _, err := p.AnalyzeFrames(context.Background(), writeTestFrames(t, 3))
	assert.ErrorIs(t, err, llm.ErrVideoTooShort)
}

func TestAnalyzeFramesRequiresConfiguration(t *testing.T) {
	p := cloudvision.New()
	_, _, err := p.AnalyzeFrames(context.Background(), writeTestFrames(t, 12))
	assert.ErrorIs(t, err, llm.ErrNotConfigured)
}

func TestSegmentVideoParsesSegmentsFromJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"segments\":[{\"start\":\"00:00\",\"end\":\"05:00\",\"description\":\"coding\"}]}"}}]}`))
	}))
	defer srv.Close()

	p := newConfiguredProvider(t, srv.URL)
	segments, _, err := p.SegmentVideo(context.Background(), writeTestFrames(t, 12), 15)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "00:00", segments[0].StartTimestamp)
	assert.Equal(t, "coding", segments[0].Description)
}

func TestGenerateTimelineParsesCardsFromJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"cards\":[{\"start_time\":\"00:00\",\"end_time\":\"05:00\",\"category\":\"work\",\"title\":\"开发\",\"secondary_apps\":[\"Slack\"]}]}"}}]}`))
	}))
	defer srv.Close()

	p := newConfiguredProvider(t, srv.URL)
	cards, _, err := p.GenerateTimeline(context.Background(), []llm.RawSegment{{StartTimestamp: "00:00", EndTimestamp: "05:00"}}, nil)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "work", cards[0].Category)
	assert.Equal(t, []string{"Slack"}, cards[0].SecondaryApps)
}

func TestCapabilitiesReportVisionSupport(t *testing.T) {
	p := cloudvision.New()
	assert.True(t, p.Capabilities().VisionSupport)
	assert.Equal(t, "cloudvision", p.Name())
}
