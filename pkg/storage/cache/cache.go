// Package cache wraps a storage.Store with a read-through LRU over its
// hottest lookups, as a decorator that embeds the inner store rather
// than reaching into its internals.
package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/storage"
)

// Size is the per-class LRU capacity. Spec calls for at least 50 entries
// per lookup class.
const Size = 128

// Store decorates a storage.Store with three independent LRUs: one over
// GetSession results, one over GetCardsBySession+GetSegmentsBySession
// "session detail" pairs, and one over GetFramesBySession. All other
// methods pass straight through.
type Store struct {
	storage.Store

	sessions *lru.Cache[int64, *domain.Session]
	details  *lru.Cache[int64, sessionDetail]
	frames   *lru.Cache[int64, []*domain.Frame]
}

type sessionDetail struct {
	cards    []*domain.TimelineCard
	segments []*domain.VideoSegment
}

// New wraps inner with read-through caching.
func New(inner storage.Store) (*Store, error) {
	sessions, err := lru.New[int64, *domain.Session](Size)
	if err != nil {
		return nil, fmt.Errorf("cache: new session lru: %w", err)
	}
	details, err := lru.New[int64, sessionDetail](Size)
	if err != nil {
		return nil, fmt.Errorf("cache: new detail lru: %w", err)
	}
	frames, err := lru.New[int64, []*domain.Frame](Size)
	if err != nil {
		return nil, fmt.Errorf("cache: new frames lru: %w", err)
	}
	return &Store{Store: inner, sessions: sessions, details: details, frames: frames}, nil
}

// GetSession is read-through: a cache hit skips the inner store
// entirely.
func (c *Store) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	if sess, ok := c.sessions.Get(id); ok {
		return sess, nil
	}
	sess, err := c.Store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	c.sessions.Add(id, sess)
	return sess, nil
}

// GetCardsBySession and GetSegmentsBySession share one cache entry keyed
// by session id, since both are always read together to render a
// session's detail view.
func (c *Store) GetCardsBySession(ctx context.Context, sessionID int64) ([]*domain.TimelineCard, error) {
	if d, ok := c.details.Get(sessionID); ok {
		return d.cards, nil
	}
	detail, err := c.loadDetail(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return detail.cards, nil
}

func (c *Store) GetSegmentsBySession(ctx context.Context, sessionID int64) ([]*domain.VideoSegment, error) {
	if d, ok := c.details.Get(sessionID); ok {
		return d.segments, nil
	}
	detail, err := c.loadDetail(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return detail.segments, nil
}

func (c *Store) loadDetail(ctx context.Context, sessionID int64) (sessionDetail, error) {
	cards, err := c.Store.GetCardsBySession(ctx, sessionID)
	if err != nil {
		return sessionDetail{}, err
	}
	segments, err := c.Store.GetSegmentsBySession(ctx, sessionID)
	if err != nil {
		return sessionDetail{}, err
	}
	detail := sessionDetail{cards: cards, segments: segments}
	c.details.Add(sessionID, detail)
	return detail, nil
}

// GetFramesBySession is read-through, keyed by session id.
func (c *Store) GetFramesBySession(ctx context.Context, sessionID int64) ([]*domain.Frame, error) {
	if f, ok := c.frames.Get(sessionID); ok {
		return f, nil
	}
	frames, err := c.Store.GetFramesBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	c.frames.Add(sessionID, frames)
	return frames, nil
}

// invalidateSession drops every cache entry keyed by sessionID across
// all three LRUs.
func (c *Store) invalidateSession(sessionID int64) {
	c.sessions.Remove(sessionID)
	c.details.Remove(sessionID)
	c.frames.Remove(sessionID)
}

// UpdateSession writes through and invalidates the stale cached copy.
func (c *Store) UpdateSession(ctx context.Context, s *domain.Session) error {
	if err := c.Store.UpdateSession(ctx, s); err != nil {
		return err
	}
	c.invalidateSession(s.ID)
	return nil
}

// UpdateSessionTags writes through and invalidates.
func (c *Store) UpdateSessionTags(ctx context.Context, id int64, tags []domain.Tag) error {
	if err := c.Store.UpdateSessionTags(ctx, id, tags); err != nil {
		return err
	}
	c.invalidateSession(id)
	return nil
}

// UpdateSessionVideoPath writes through and invalidates.
func (c *Store) UpdateSessionVideoPath(ctx context.Context, id int64, videoPath string) error {
	if err := c.Store.UpdateSessionVideoPath(ctx, id, videoPath); err != nil {
		return err
	}
	c.invalidateSession(id)
	return nil
}

// UpdateSessionDeviceInfo writes through and invalidates.
func (c *Store) UpdateSessionDeviceInfo(ctx context.Context, id int64, deviceID string) error {
	if err := c.Store.UpdateSessionDeviceInfo(ctx, id, deviceID); err != nil {
		return err
	}
	c.invalidateSession(id)
	return nil
}

// DeleteSession writes through and invalidates.
func (c *Store) DeleteSession(ctx context.Context, id int64) error {
	if err := c.Store.DeleteSession(ctx, id); err != nil {
		return err
	}
	c.invalidateSession(id)
	return nil
}

// BulkInsertCards writes through and clears every affected session's
// detail cache entry, since a bulk insert can span sessions.
func (c *Store) BulkInsertCards(ctx context.Context, cards []*domain.TimelineCard) ([]int64, error) {
	ids, err := c.Store.BulkInsertCards(ctx, cards)
	if err != nil {
		return nil, err
	}
	for _, card := range cards {
		c.details.Remove(card.SessionID)
	}
	return ids, nil
}

// BulkInsertSegments writes through and clears affected detail entries.
func (c *Store) BulkInsertSegments(ctx context.Context, segments []*domain.VideoSegment) ([]int64, error) {
	ids, err := c.Store.BulkInsertSegments(ctx, segments)
	if err != nil {
		return nil, err
	}
	for _, seg := range segments {
		c.details.Remove(seg.SessionID)
	}
	return ids, nil
}

// BulkInsertFrames writes through and clears affected frame entries.
func (c *Store) BulkInsertFrames(ctx context.Context, frames []*domain.Frame) ([]int64, error) {
	ids, err := c.Store.BulkInsertFrames(ctx, frames)
	if err != nil {
		return nil, err
	}
	for _, f := range frames {
		c.frames.Remove(f.SessionID)
	}
	return ids, nil
}

// DeleteCardsBySession, DeleteSegmentsBySession and DeleteFramesBySession
// clear-on-bulk-delete the same way the bulk inserts do.

func (c *Store) DeleteCardsBySession(ctx context.Context, sessionID int64) error {
	if err := c.Store.DeleteCardsBySession(ctx, sessionID); err != nil {
		return err
	}
	c.details.Remove(sessionID)
	return nil
}

func (c *Store) DeleteSegmentsBySession(ctx context.Context, sessionID int64) error {
	if err := c.Store.DeleteSegmentsBySession(ctx, sessionID); err != nil {
		return err
	}
	c.details.Remove(sessionID)
	return nil
}

func (c *Store) DeleteFramesBySession(ctx context.Context, sessionID int64) error {
	if err := c.Store.DeleteFramesBySession(ctx, sessionID); err != nil {
		return err
	}
	c.frames.Remove(sessionID)
	return nil
}

// DeleteSessionsStartingBefore invalidates the whole cache on a
// retention sweep rather than tracking which ids it touched.
func (c *Store) DeleteSessionsStartingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := c.Store.DeleteSessionsStartingBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	c.sessions.Purge()
	c.details.Purge()
	c.frames.Purge()
	return n, nil
}

var _ storage.Store = (*Store)(nil)
