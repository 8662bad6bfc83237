package orchestrator_test

import (
	"context"
	"sync"
	"time"

	"github.com/kestrel-dev/screenlens/pkg/domain"
)

// fakeStore is a minimal in-memory storage.Store used to exercise the
// orchestrator without a real database backend.
type fakeStore struct {
	mu sync.Mutex

	nextID      int64
	sessions    map[int64]*domain.Session
	frames      []*domain.Frame
	segments    []*domain.VideoSegment
	cards       []*domain.TimelineCard
	llmCalls    []*domain.LLMCall
	recentCards []*domain.TimelineCard
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[int64]*domain.Session)}
}

func (f *fakeStore) InitializeTables(ctx context.Context) error { return nil }
func (f *fakeStore) DBType() string                             { return "fake" }
func (f *fakeStore) Close() error                                { return nil }

func (f *fakeStore) InsertSession(ctx context.Context, s *domain.Session) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	cp := *s
	cp.ID = f.nextID
	f.sessions[f.nextID] = &cp
	return f.nextID, nil
}
func (f *fakeStore) BulkInsertSessions(ctx context.Context, sessions []*domain.Session) ([]int64, error) {
	ids := make([]int64, len(sessions))
	for i, s := range sessions {
		id, _ := f.InsertSession(ctx, s)
		ids[i] = id
	}
	return ids, nil
}
func (f *fakeStore) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id], nil
}
func (f *fakeStore) GetSessionsByDate(ctx context.Context, date string, deviceID string) ([]*domain.Session, error) {
	return nil, nil
}
func (f *fakeStore) GetAllSessions(ctx context.Context, limit, offset int) ([]*domain.Session, error) {
	return nil, nil
}
func (f *fakeStore) UpdateSession(ctx context.Context, s *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}
func (f *fakeStore) DeleteSession(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}
func (f *fakeStore) UpdateSessionTags(ctx context.Context, id int64, tags []domain.Tag) error {
	return nil
}
func (f *fakeStore) UpdateSessionVideoPath(ctx context.Context, id int64, videoPath string) error {
	return nil
}
func (f *fakeStore) UpdateSessionDeviceInfo(ctx context.Context, id int64, deviceID string) error {
	return nil
}

func (f *fakeStore) InsertFrame(ctx context.Context, fr *domain.Frame) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
	return int64(len(f.frames)), nil
}
func (f *fakeStore) BulkInsertFrames(ctx context.Context, frames []*domain.Frame) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, len(frames))
	for i, fr := range frames {
		f.frames = append(f.frames, fr)
		ids[i] = int64(len(f.frames))
	}
	return ids, nil
}
func (f *fakeStore) GetFramesBySession(ctx context.Context, sessionID int64) ([]*domain.Frame, error) {
	return nil, nil
}
func (f *fakeStore) DeleteFramesBySession(ctx context.Context, sessionID int64) error { return nil }

func (f *fakeStore) BulkInsertSegments(ctx context.Context, segments []*domain.VideoSegment) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, len(segments))
	for i, s := range segments {
		f.segments = append(f.segments, s)
		ids[i] = int64(len(f.segments))
	}
	return ids, nil
}
func (f *fakeStore) GetSegmentsBySession(ctx context.Context, sessionID int64) ([]*domain.VideoSegment, error) {
	return nil, nil
}
func (f *fakeStore) DeleteSegmentsBySession(ctx context.Context, sessionID int64) error { return nil }

func (f *fakeStore) BulkInsertCards(ctx context.Context, cards []*domain.TimelineCard) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, len(cards))
	for i, c := range cards {
		f.cards = append(f.cards, c)
		ids[i] = int64(len(f.cards))
	}
	return ids, nil
}
func (f *fakeStore) GetCardsBySession(ctx context.Context, sessionID int64) ([]*domain.TimelineCard, error) {
	return nil, nil
}
func (f *fakeStore) GetRecentCards(ctx context.Context, deviceID string, limit int) ([]*domain.TimelineCard, error) {
	return f.recentCards, nil
}
func (f *fakeStore) DeleteCardsBySession(ctx context.Context, sessionID int64) error { return nil }

func (f *fakeStore) InsertLLMCall(ctx context.Context, c *domain.LLMCall) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.llmCalls = append(f.llmCalls, c)
	return int64(len(f.llmCalls)), nil
}
func (f *fakeStore) GetLLMCallsBySession(ctx context.Context, sessionID int64) ([]*domain.LLMCall, error) {
	return nil, nil
}
func (f *fakeStore) GetRecentLLMErrors(ctx context.Context, limit int) ([]*domain.LLMCall, error) {
	return nil, nil
}
func (f *fakeStore) DeleteLLMCallsBySession(ctx context.Context, sessionID int64) error { return nil }

func (f *fakeStore) UpsertDaySummary(ctx context.Context, d *domain.DaySummaryCache) error {
	return nil
}
func (f *fakeStore) GetDaySummary(ctx context.Context, date string) (*domain.DaySummaryCache, error) {
	return nil, nil
}
func (f *fakeStore) DeleteDaySummary(ctx context.Context, date string) error { return nil }

func (f *fakeStore) GetActivitiesByDateRange(ctx context.Context, start, end time.Time, deviceID string) ([]domain.ActivityBucket, error) {
	return nil, nil
}
func (f *fakeStore) GetStats(ctx context.Context) (*domain.StorageStats, error) { return nil, nil }
func (f *fakeStore) GetDistinctAnalyzedVideoPaths(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) SessionsStartingBefore(ctx context.Context, cutoff time.Time) ([]*domain.Session, error) {
	return nil, nil
}
func (f *fakeStore) DeleteSessionsStartingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}
func (f *fakeStore) MigrateTimezoneToLocal(ctx context.Context) error { return nil }
