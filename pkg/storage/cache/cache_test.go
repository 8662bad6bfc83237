package cache_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/storage/cache"
	"github.com/kestrel-dev/screenlens/pkg/storage/sqlitestore"
)

func newCachedStore(t *testing.T) *cache.Store {
	t.Helper()
	dir := t.TempDir()
	inner, err := sqlitestore.Open(context.Background(), filepath.Join(dir, "analyzer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = inner.Close() })

	c, err := cache.New(inner)
	require.NoError(t, err)
	return c
}

func TestGetSessionCachesAfterFirstRead(t *testing.T) {
	c := newCachedStore(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

	id, err := c.InsertSession(ctx, &domain.Session{
		DeviceID: "dev-1", StartTime: start, EndTime: start.Add(time.Hour), Title: domain.PlaceholderTitle,
	})
	require.NoError(t, err)

	first, err := c.GetSession(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.PlaceholderTitle, first.Title)

	cached, err := c.GetSession(ctx, id)
	require.NoError(t, err)
	require.Same(t, first, cached, "second read must be served from cache, not a fresh scan")
}

func TestUpdateSessionInvalidatesCache(t *testing.T) {
	c := newCachedStore(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

	id, err := c.InsertSession(ctx, &domain.Session{
		DeviceID: "dev-1", StartTime: start, EndTime: start.Add(time.Hour), Title: domain.PlaceholderTitle,
	})
	require.NoError(t, err)

	sess, err := c.GetSession(ctx, id)
	require.NoError(t, err)

	sess.Title = "已更新"
	require.NoError(t, c.UpdateSession(ctx, sess))

	reloaded, err := c.GetSession(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "已更新", reloaded.Title)
}

func TestSessionDetailCacheCoversCardsAndSegments(t *testing.T) {
	c := newCachedStore(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	id, err := c.InsertSession(ctx, &domain.Session{
		DeviceID: "dev-1", StartTime: start, EndTime: end, Title: domain.PlaceholderTitle,
	})
	require.NoError(t, err)

	_, err = c.BulkInsertCards(ctx, []*domain.TimelineCard{
		{SessionID: id, StartTime: start, EndTime: end, Category: domain.CategoryWork, Title: "写代码"},
	})
	require.NoError(t, err)

	cards, err := c.GetCardsBySession(ctx, id)
	require.NoError(t, err)
	require.Len(t, cards, 1)

	segments, err := c.GetSegmentsBySession(ctx, id)
	require.NoError(t, err)
	require.Empty(t, segments)

	require.NoError(t, c.DeleteCardsBySession(ctx, id))
	afterDelete, err := c.GetCardsBySession(ctx, id)
	require.NoError(t, err)
	require.Empty(t, afterDelete)
}
