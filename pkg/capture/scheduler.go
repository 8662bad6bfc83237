package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kestrel-dev/screenlens/pkg/eventbus"
)

// SafetyCutoff is how long past a window's end the scheduler waits
// before publishing it, giving in-flight writes time to land on disk.
const SafetyCutoff = 30 * time.Second

// DirScanInterval is how often the frames directory is rescanned for
// newly completed windows.
const DirScanInterval = 60 * time.Second

// ringCapacity bounds the "already published" dedup ring; oldest bucket
// keys are evicted FIFO once full.
const ringCapacity = 1000

// Config controls the scheduler's cadence.
type Config struct {
	FramesDir       string
	CaptureInterval time.Duration // default 1s
	WindowDuration  time.Duration // default 15m
	DeviceID        string
}

// Scheduler owns a Capturer, a tick loop that takes one sample through
// it per interval, and a second loop that scans the frames directory for
// completed windows. The dedup ring is guarded by mu, so AlreadyPublished
// can be called from other goroutines.
type Scheduler struct {
	cfg      Config
	capturer Capturer
	bus      *eventbus.Bus

	mu        sync.Mutex
	published []int64 // bucket keys, oldest first
	publishedSet map[int64]struct{}

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Scheduler. Zero-value interval/duration fields fall
// back to the documented defaults.
func New(cfg Config, capturer Capturer, bus *eventbus.Bus) *Scheduler {
	if cfg.CaptureInterval <= 0 {
		cfg.CaptureInterval = time.Second
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = 15 * time.Minute
	}
	return &Scheduler{
		cfg:          cfg,
		capturer:     capturer,
		bus:          bus,
		publishedSet: make(map[int64]struct{}),
		stopCh:       make(chan struct{}),
	}
}

// Start launches the capture tick loop and the window-scan loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.runCaptureLoop(ctx)
	go s.runScanLoop(ctx)
}

// Stop signals both loops to exit and waits for them.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) runCaptureLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.CaptureInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick takes one sample. A screen-locked or black-frame sentinel is a
// silent skip, not an error — neither is worth logging at normal
// volume since they occur constantly during idle periods.
func (s *Scheduler) tick() {
	_, err := s.capturer.Capture()
	if err == nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.EventTypeScreenshotCaptured})
		return
	}
	if errors.Is(err, ErrScreenLocked) || errors.Is(err, ErrBlackFrame) {
		return
	}
	slog.Warn("capture: sample failed", "error", err)
}

func (s *Scheduler) runScanLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(DirScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.scanAndPublish(time.Now())
		}
	}
}

// scanAndPublish lists the frames directory, buckets filenames by
// window, and publishes WindowReady for any bucket whose safety cutoff
// has passed and that has not already been published.
func (s *Scheduler) scanAndPublish(now time.Time) {
	entries, err := os.ReadDir(s.cfg.FramesDir)
	if err != nil {
		slog.Warn("capture: scan frames dir failed", "dir", s.cfg.FramesDir, "error", err)
		return
	}

	windowMS := s.cfg.WindowDuration.Milliseconds()
	counts := make(map[int64]int)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ts, ok := parseFrameFilename(e.Name())
		if !ok {
			continue
		}
		bucket := (ts / windowMS) * windowMS
		counts[bucket]++
	}

	buckets := make([]int64, 0, len(counts))
	for b := range counts {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })

	for _, bucket := range buckets {
		bucketEnd := time.UnixMilli(bucket + windowMS)
		if now.Before(bucketEnd.Add(SafetyCutoff)) {
			continue
		}
		s.mu.Lock()
		_, seen := s.publishedSet[bucket]
		s.mu.Unlock()
		if seen {
			continue
		}
		s.markPublished(bucket)
		s.bus.Publish(eventbus.Event{
			Type: eventbus.EventTypeWindowReady,
			Payload: eventbus.WindowReadyPayload{
				Start:      bucket,
				End:        bucket + windowMS,
				FrameCount: counts[bucket],
			},
		})
	}
}

// markPublished inserts bucket into the ring, evicting the oldest entry
// once capacity is exceeded.
func (s *Scheduler) markPublished(bucket int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.publishedSet[bucket]; ok {
		return
	}
	s.published = append(s.published, bucket)
	s.publishedSet[bucket] = struct{}{}
	if len(s.published) > ringCapacity {
		oldest := s.published[0]
		s.published = s.published[1:]
		delete(s.publishedSet, oldest)
	}
}

// AlreadyPublished reports whether bucket is currently tracked in the
// dedup ring, exposed mainly for tests of scenario 2 ("same window
// re-triggered").
func (s *Scheduler) AlreadyPublished(bucket int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.publishedSet[bucket]
	return ok
}

// parseFrameFilename parses "<epoch_millis>.jpg" into its millisecond
// timestamp. Any other filename is ignored.
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

// FramePath builds the on-disk path for a frame captured at ts.
func FramePath(dir string, ts time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%d.jpg", ts.UnixMilli()))
}
