//go:build mysql_integration

package mysqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/storage"
)

// newTestStore spins up a disposable MariaDB container and returns a
// Store pointed at it. Gated behind the mysql_integration build tag
// since it needs a container runtime, mirroring how the teacher isolates
// its testcontainers-backed suites from the default unit test run.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithDatabase("analyzer_test"),
		tcmysql.WithUsername("analyzer"),
		tcmysql.WithPassword("analyzer"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Host = host
	cfg.Port = port.Int()
	cfg.User = "analyzer"
	cfg.Password = "analyzer"
	cfg.Database = "analyzer_test"

	s, err := Open(ctx, cfg)
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

	_, err = s.BulkInsertCards(ctx, []*domain.TimelineCard{
		{SessionID: id, StartTime: start, EndTime: end, Category: domain.CategoryWork, Title: "开发"},
	})
	require.NoError(t, err)

	got, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	require.True(t, got.IsPlaceholder())

	require.NoError(t, s.DeleteSession(ctx, id))

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

func TestForeignKeyViolationOnLLMCall(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	missing := int64(999999)

	_, err := s.InsertLLMCall(ctx, &domain.LLMCall{SessionID: &missing, Provider: "cloudvision", Kind: domain.CallKindAnalyzeFrames})
	require.ErrorIs(t, err, storage.ErrForeignKey)
}
