// Package video wraps an external ffmpeg-compatible encoder binary to
// assemble a session's captured frames into an mp4 clip, and the
// inverse operation (extracting frames back out of a clip for
// providers that only accept still images). The same
// exec.CommandContext-with-validated-binary-path shape the pack uses
// for its own ffmpeg wrappers is used here, generalized from a
// continuous RTSP pipeline to a one-shot concat-then-encode job.
package video

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/kestrel-dev/screenlens/pkg/config"
)

// Resolution is a target output frame size.
type Resolution struct {
	Width  int
	Height int
}

// Named pixel targets. ResolutionOriginal is the zero value: no
// scale/pad filter is applied and frames keep their native size.
var (
	Resolution1080p    = Resolution{Width: 1920, Height: 1080}
	Resolution2K       = Resolution{Width: 2560, Height: 1440}
	Resolution4K       = Resolution{Width: 3840, Height: 2160}
	ResolutionOriginal = Resolution{}
)

// ResolutionFromConfig maps the closed-set config.Resolution string
// value onto a concrete pixel target.
func ResolutionFromConfig(r config.Resolution) Resolution {
	switch r {
	case config.Resolution1080p:
		return Resolution1080p
	case config.Resolution2K:
		return Resolution2K
	case config.Resolution4K:
		return Resolution4K
	default:
		return ResolutionOriginal
	}
}

// Options configures one AssembleClip invocation.
type Options struct {
	// Resolution is the target output frame size. A zero value leaves
	// frames at their native resolution (no scale/pad filter).
	Resolution Resolution
	// SpeedMultiplier divides playback duration (2.0 plays twice as fast).
	// Defaults to 1.0.
	SpeedMultiplier float64
	// AddTimestamp overlays a localtime-derived timestamp watermark.
	AddTimestamp bool
}

// Assembler invokes a resolved encoder binary to build and decompose
// session clips. It holds no state beyond the resolved binary path, so
// a single instance is safe for concurrent use.
type Assembler struct {
	binPath string
}

// New resolves the encoder binary: bundled resources first (next to the
// running executable, under "resources/ffmpeg" or "resources/ffmpeg.exe"),
// falling back to PATH.
func New() (*Assembler, error) {
	path, err := resolveBinary("ffmpeg")
	if err != nil {
		return nil, err
	}
	return &Assembler{binPath: path}, nil
}

func resolveBinary(name string) (string, error) {
	exeName := name
	if runtime.GOOS == "windows" {
		exeName = name + ".exe"
	}
	if exe, err := os.Executable(); err == nil {
		bundled := filepath.Join(filepath.Dir(exe), "resources", exeName)
		if info, statErr := os.Stat(bundled); statErr == nil && !info.IsDir() {
			return bundled, nil
		}
	}
	return exec.LookPath(name)
}

// AssembleClip encodes framePaths (assumed sorted oldest-first, one
// frame per second of real time before speed adjustment) into an mp4
// at outputPath. The concat demuxer list repeats the final frame
// without a duration directive, the documented ffmpeg idiom for making
// the last frame of a concat actually render instead of being dropped.
func (a *Assembler) AssembleClip(ctx context.Context, framePaths []string, outputPath string, opts Options) error {
	if len(framePaths) == 0 {
		return fmt.Errorf("video: no frames to assemble")
	}
	if opts.SpeedMultiplier <= 0 {
		opts.SpeedMultiplier = 1.0
	}

	listPath, err := writeConcatList(framePaths)
	if err != nil {
		return err
	}
	defer os.Remove(listPath)

	filter := buildFilterChain(opts)

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-vf", filter,
		"-c:v", "libx264",
		"-crf", "23",
		"-preset", "fast",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, a.binPath, args...)
	setNoWindow(cmd)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("video: ffmpeg assemble failed: %w: %s", err, truncate(out, 2000))
	}
	return nil
}

// ExtractFrames pulls targetCount frames, evenly spaced, out of a clip
// whose duration is known, for providers that consume still images
// rather than an inline clip.
func (a *Assembler) ExtractFrames(ctx context.Context, clipPath string, duration time.Duration, targetCount int, outDir string) ([]string, error) {
	if targetCount <= 0 {
		return nil, fmt.Errorf("video: targetCount must be positive")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("video: create output dir: %w", err)
	}

	fps := "1"
	if duration > 0 {
		fps = fmt.Sprintf("%f", float64(targetCount)/duration.Seconds())
	}

	pattern := filepath.Join(outDir, "frame_%06d.jpg")
	args := []string{
		"-y",
		"-i", clipPath,
		"-vf", fmt.Sprintf("fps=%s", fps),
		"-q:v", "6",
		pattern,
	}
	cmd := exec.CommandContext(ctx, a.binPath, args...)
	setNoWindow(cmd)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("video: ffmpeg extract failed: %w: %s", err, truncate(out, 2000))
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("video: read extracted frames: %w", err)
	}
	var all []string
	for _, e := range entries {
		if !e.IsDir() {
			all = append(all, filepath.Join(outDir, e.Name()))
		}
	}
	sort.Strings(all)

	return subsample(all, targetCount), nil
}

// subsample uniformly strides paths down to at most n entries.
func subsample(paths []string, n int) []string {
	if len(paths) <= n {
		return paths
	}
	out := make([]string, 0, n)
	stride := float64(len(paths)-1) / float64(n-1)
	for i := 0; i < n; i++ {
		idx := int(float64(i) * stride)
		out = append(out, paths[idx])
	}
	return out
}

func writeConcatList(framePaths []string) (string, error) {
	f, err := os.CreateTemp("", "concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("video: create concat list: %w", err)
	}
	defer f.Close()

	for i, p := range framePaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("video: resolve frame path: %w", err)
		}
		if _, err := fmt.Fprintf(f, "file '%s'\n", abs); err != nil {
			return "", err
		}
		if i < len(framePaths)-1 {
			if _, err := fmt.Fprintf(f, "duration 1\n"); err != nil {
				return "", err
			}
		}
	}
	// Repeat the last frame without a duration directive; ffmpeg's concat
	// demuxer otherwise drops the final entry's video.
	abs, err := filepath.Abs(framePaths[len(framePaths)-1])
	if err != nil {
		return "", err
	}
	if _, err := fmt.Fprintf(f, "file '%s'\n", abs); err != nil {
		return "", err
	}
	return f.Name(), nil
}

func buildFilterChain(opts Options) string {
	var filter string
	if opts.Resolution.Width > 0 && opts.Resolution.Height > 0 {
		filter = fmt.Sprintf(
			"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
			opts.Resolution.Width, opts.Resolution.Height, opts.Resolution.Width, opts.Resolution.Height,
		)
	}
	if opts.AddTimestamp {
		watermark := `drawtext=text='%{localtime}':x=10:y=10:fontsize=24:fontcolor=white:box=1:boxcolor=black@0.5`
		if filter == "" {
			filter = watermark
		} else {
			filter += "," + watermark
		}
	}
	speedFilter := fmt.Sprintf("setpts=PTS/%f", opts.SpeedMultiplier)
	if filter == "" {
		filter = speedFilter
	} else {
		filter += "," + speedFilter
	}
	return filter
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "...(truncated)"
}
