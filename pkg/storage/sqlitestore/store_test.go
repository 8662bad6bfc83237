package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "analyzer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionCRUDAndCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	end := start.Add(15 * time.Minute)

	id, err := s.InsertSession(ctx, &domain.Session{
		DeviceID: "dev-1", StartTime: start, EndTime: end,
		Title: domain.PlaceholderTitle, Summary: domain.PlaceholderSummary,
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	_, err = s.BulkInsertSegments(ctx, []*domain.VideoSegment{
		{SessionID: id, StartTime: start, EndTime: end, Description: "coding"},
	})
	require.NoError(t, err)

	_, err = s.BulkInsertCards(ctx, []*domain.TimelineCard{
		{SessionID: id, StartTime: start, EndTime: end, Category: domain.CategoryWork, Title: "开发"},
	})
	require.NoError(t, err)

	got, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	require.True(t, got.IsPlaceholder())

	got.Title = "开发"
	got.Summary = "wrote code"
	require.NoError(t, s.UpdateSession(ctx, got))

	final, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	require.False(t, final.IsPlaceholder())

	require.NoError(t, s.DeleteSession(ctx, id))

	segs, err := s.GetSegmentsBySession(ctx, id)
	require.NoError(t, err)
	require.Empty(t, segs, "cascade delete must remove segments")

	cards, err := s.GetCardsBySession(ctx, id)
	require.NoError(t, err)
	require.Empty(t, cards, "cascade delete must remove cards")
}

func TestDuplicateWindowRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	end := start.Add(15 * time.Minute)

	sess := &domain.Session{DeviceID: "dev-1", StartTime: start, EndTime: end, Title: domain.PlaceholderTitle}
	_, err := s.InsertSession(ctx, sess)
	require.NoError(t, err)

	_, err = s.InsertSession(ctx, sess)
	require.ErrorIs(t, err, storage.ErrDuplicateWindow)
}

func TestRetentionDeletesOldSessionsOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	oldID, err := s.InsertSession(ctx, &domain.Session{
		DeviceID: "dev-1", StartTime: now.Add(-25 * time.Hour), EndTime: now.Add(-24*time.Hour - 45*time.Minute),
		Title: domain.PlaceholderTitle,
	})
	require.NoError(t, err)

	recentID, err := s.InsertSession(ctx, &domain.Session{
		DeviceID: "dev-1", StartTime: now.Add(-23 * time.Hour), EndTime: now.Add(-22*time.Hour - 45*time.Minute),
		Title: domain.PlaceholderTitle,
	})
	require.NoError(t, err)

	cutoff := now.Add(-24 * time.Hour)
	n, err := s.DeleteSessionsStartingBefore(ctx, cutoff)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = s.GetSession(ctx, oldID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.GetSession(ctx, recentID)
	require.NoError(t, err)
}
