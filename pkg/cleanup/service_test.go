package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/storage"
)

// fakeStore is a minimal storage.Store that only implements the methods
// the sweep actually calls; everything else panics if reached.
type fakeStore struct {
	storage.Store
	sessions []*domain.Session
	framesBy map[int64][]*domain.Frame
	deleted  int
}

func (f *fakeStore) SessionsStartingBefore(ctx context.Context, cutoff time.Time) ([]*domain.Session, error) {
	var out []*domain.Session
	for _, s := range f.sessions {
		if s.StartTime.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteSessionsStartingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var kept []*domain.Session
	for _, s := range f.sessions {
		if s.StartTime.Before(cutoff) {
			f.deleted++
			continue
		}
		kept = append(kept, s)
	}
	f.sessions = kept
	return f.deleted, nil
}

func (f *fakeStore) GetFramesBySession(ctx context.Context, sessionID int64) ([]*domain.Frame, error) {
	return f.framesBy[sessionID], nil
}

func TestSweepDeletesExpiredSessionsAndUnlinksFiles(t *testing.T) {
	framesDir := t.TempDir()
	videosDir := t.TempDir()

	clip := filepath.Join(videosDir, "old.mp4")
	require.NoError(t, os.WriteFile(clip, []byte("x"), 0o644))
	frame := filepath.Join(framesDir, "1.jpg")
	require.NoError(t, os.WriteFile(frame, []byte("x"), 0o644))

	old := &domain.Session{ID: 1, StartTime: time.Now().Add(-40 * 24 * time.Hour), VideoPath: clip}
	recent := &domain.Session{ID: 2, StartTime: time.Now()}

	store := &fakeStore{
		sessions: []*domain.Session{old, recent},
		framesBy: map[int64][]*domain.Frame{1: {{ID: 1, SessionID: 1, Path: frame}}},
	}

	svc := NewService(Config{RetentionDays: 30, FramesDir: framesDir, VideosDir: videosDir}, store)
	svc.Sweep(context.Background())

	assert.Len(t, store.sessions, 1)
	assert.Equal(t, int64(2), store.sessions[0].ID)

	_, err := os.Stat(clip)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(frame)
	assert.True(t, os.IsNotExist(err))
}

func TestSweepRemovesOrphanFilesOlderThanRetention(t *testing.T) {
	framesDir := t.TempDir()
	videosDir := t.TempDir()

	orphan := filepath.Join(framesDir, "999.jpg")
	require.NoError(t, os.WriteFile(orphan, []byte("x"), 0o644))
	old := time.Now().Add(-40 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(orphan, old, old))

	fresh := filepath.Join(framesDir, "1000.jpg")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))

	store := &fakeStore{}
	svc := NewService(Config{RetentionDays: 30, FramesDir: framesDir, VideosDir: videosDir}, store)
	svc.Sweep(context.Background())

	_, err := os.Stat(orphan)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestSweepPreservesRecentSessions(t *testing.T) {
	store := &fakeStore{sessions: []*domain.Session{{ID: 1, StartTime: time.Now()}}}
	svc := NewService(Config{RetentionDays: 7}, store)
	svc.Sweep(context.Background())
	assert.Len(t, store.sessions, 1)
}
