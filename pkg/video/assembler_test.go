package video_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrel-dev/screenlens/pkg/config"
	"github.com/kestrel-dev/screenlens/pkg/video"
)

func TestResolutionFromConfigMapsClosedSet(t *testing.T) {
	assert.Equal(t, video.Resolution1080p, video.ResolutionFromConfig(config.Resolution1080p))
	assert.Equal(t, video.Resolution4K, video.ResolutionFromConfig(config.Resolution4K))
	assert.Equal(t, video.ResolutionOriginal, video.ResolutionFromConfig(config.ResolutionOriginal))
	assert.Equal(t, video.ResolutionOriginal, video.ResolutionFromConfig(config.Resolution("bogus")))
}

func TestAssembleClipRejectsEmptyFrameList(t *testing.T) {
	// AssembleClip's error path when given no frames returns before the
	// filter chain is built or ffmpeg is run, so it needs no real ffmpeg
	// binary on the test machine.
	a := &video.Assembler{}
	err := a.AssembleClip(nil, nil, "/tmp/out.mp4", video.Options{})
	assert.Error(t, err)
}
