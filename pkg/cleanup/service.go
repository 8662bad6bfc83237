// Package cleanup provides the periodic retention sweep described in §4.9:
// unlink the frame/video files referenced by sessions past the retention
// horizon, then hard-delete those sessions (and their cascaded rows),
// then unlink any other file in the managed directories older than the
// horizon. The files are unlinked before the rows are deleted, so a
// failed DELETE leaves rows whose files are already gone.
package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kestrel-dev/screenlens/pkg/storage"
)

// Config controls the sweep's horizon and which directories it scans
// for orphaned media files.
type Config struct {
	RetentionDays int // clamped to [1, 30] by config.Validate
	FramesDir     string
	VideosDir     string
	Interval      time.Duration // defaults to 1h
}

// Service periodically enforces the retention policy: it hard-deletes
// sessions (and, via foreign keys, their frames/segments/cards/llm_calls)
// older than the configured horizon, then sweeps the frames and videos
// directories for files the DB no longer references.
type Service struct {
	cfg   Config
	store storage.Store

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg Config, store storage.Store) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Service{cfg: cfg, store: store}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("cleanup service started",
		"retention_days", s.cfg.RetentionDays, "interval", s.cfg.Interval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.Sweep(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one full retention pass. It is exported so the
// `cleanup_storage` RPC verb (§6) can trigger an out-of-band sweep on
// demand rather than waiting for the next tick.
func (s *Service) Sweep(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)

	referenced := s.unlinkExpiredSessionFiles(ctx, cutoff)

	count, err := s.store.DeleteSessionsStartingBefore(ctx, cutoff)
	if err != nil {
		slog.Error("retention: delete expired sessions failed", "error", err)
	} else if count > 0 {
		slog.Info("retention: deleted expired sessions", "count", count)
	}

	s.sweepOrphans(s.cfg.FramesDir, cutoff, referenced)
	s.sweepOrphans(s.cfg.VideosDir, cutoff, referenced)
}

// unlinkExpiredSessionFiles reads the about-to-expire sessions' file
// paths before the DELETE removes the rows (step 2 of §4.9), then
// best-effort unlinks each one. It returns the set of paths it touched
// so the directory sweep below doesn't re-log them as orphans.
func (s *Service) unlinkExpiredSessionFiles(ctx context.Context, cutoff time.Time) map[string]struct{} {
	touched := make(map[string]struct{})

	sessions, err := s.store.SessionsStartingBefore(ctx, cutoff)
	if err != nil {
		slog.Error("retention: listing expired sessions failed", "error", err)
		return touched
	}

	var failures int
	for _, sess := range sessions {
		if sess.VideoPath != "" {
			touched[sess.VideoPath] = struct{}{}
			if err := os.Remove(sess.VideoPath); err != nil && !os.IsNotExist(err) {
				failures++
			}
		}
		frames, err := s.store.GetFramesBySession(ctx, sess.ID)
		if err != nil {
			continue
		}
		for _, fr := range frames {
			touched[fr.Path] = struct{}{}
			if err := os.Remove(fr.Path); err != nil && !os.IsNotExist(err) {
				failures++
			}
		}
	}
	if failures > 0 {
		slog.Warn("retention: some session files could not be unlinked", "failures", failures)
	}
	return touched
}

// sweepOrphans unlinks any file in dir whose mtime is older than
// cutoff and that wasn't already removed as one of an expired session's
// files (step 5 of §4.9) — this catches files no session row references,
// such as those left behind by an interrupted earlier sweep.
func (s *Service) sweepOrphans(dir string, cutoff time.Time, alreadyTouched map[string]struct{}) {
	if dir == "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("retention: orphan scan failed", "dir", dir, "error", err)
		}
		return
	}

	var removed, failures int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if _, ok := alreadyTouched[path]; ok {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			failures++
			continue
		}
		removed++
	}
	if removed > 0 || failures > 0 {
		slog.Info("retention: orphan sweep", "dir", dir, "removed", removed, "failures", failures)
	}
}
