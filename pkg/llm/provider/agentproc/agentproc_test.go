package agentproc_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/llm"
	"github.com/kestrel-dev/screenlens/pkg/llm/provider/agentproc"
)

type fakeRecorder struct {
	calls []*domain.LLMCall
}

func (f *fakeRecorder) InsertLLMCall(_ context.Context, c *domain.LLMCall) (int64, error) {
	f.calls = append(f.calls, c)
	return int64(len(f.calls)), nil
}

// fakeAgentScript writes a shell script emitting one "result" event, so
// the tests exercise the real stdout-parsing path without depending on
// an actual CLI binary being installed.
func fakeAgentScript(t *testing.T, resultText string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake agent script requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-agent.sh")
	script := fmt.Sprintf("#!/bin/sh\ncat >/dev/null\necho '{\"type\":\"result\",\"result\":%q,\"is_error\":false}'\n", resultText)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
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

func TestAnalyzeFramesReadsResultFromSubprocess(t *testing.T) {
	script := fakeAgentScript(t, "在写代码")
	p := agentproc.New()
	require.NoError(t, p.Configure([]byte(`{"command":"`+script+`"}`)))
	rec := &fakeRecorder{}
	p.SetCallRecorder(rec)

	summary, callID, err := p.AnalyzeFrames(context.Background(), writeTestFrames(t, 12))
	require.NoError(t, err)
	assert.Equal(t, "在写代码", summary)
	assert.Equal(t, int64(1), callID)
	require.Len(t, rec.calls, 1)
	assert.NotContains(t, rec.calls[0].RequestBody, "jpegbytes")
}

func TestAnalyzeFramesRejectsTooFewFrames(t *testing.T) {
	p := agentproc.New()
	require.NoError(t, p.Configure([]byte(`{"command":"/bin/true"}`)))
	_, _, err := p.AnalyzeFrames(context.Background(), writeTestFrames(t, 2))
	assert.ErrorIs(t, err, llm.ErrVideoTooShort)
}

func TestAnalyzeFramesRequiresConfiguration(t *testing.T) {
	p := agentproc.New()
	_, _, err := p.AnalyzeFrames(context.Background(), writeTestFrames(t, 12))
	assert.ErrorIs(t, err, llm.ErrNotConfigured)
}

func TestSegmentVideoParsesSegmentsJSON(t *testing.T) {
	script := fakeAgentScript(t, `{"segments":[{"start":"00:00","end":"05:00","description":"coding"}]}`)
	p := agentproc.New()
	require.NoError(t, p.Configure([]byte(`{"command":"`+script+`"}`)))

	segments, _, err := p.SegmentVideo(context.Background(), writeTestFrames(t, 12), 15)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "coding", segments[0].Description)
}

func TestCapabilitiesReportStreaming(t *testing.T) {
	p := agentproc.New()
	assert.True(t, p.Capabilities().Streaming)
	assert.Equal(t, "agentproc", p.Name())
}
