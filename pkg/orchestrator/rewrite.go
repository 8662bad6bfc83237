package orchestrator

import (
	"time"

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/llm"
)

// rewriteSegments converts a window's raw MM:SS phase-1 output into
// absolute-time domain.VideoSegment rows, each clamped into [start,end]
// per invariant 8.
func rewriteSegments(sessionID int64, callID int64, start, end time.Time, raw []llm.RawSegment) ([]*domain.VideoSegment, error) {
	out := make([]*domain.VideoSegment, 0, len(raw))
	for _, r := range raw {
		segStart, err := domain.RelativeToAbsolute(start, end, r.StartTimestamp)
		if err != nil {
			return nil, err
		}
		segEnd, err := domain.RelativeToAbsolute(start, end, r.EndTimestamp)
		if err != nil {
			return nil, err
		}
		id := callID
		out = append(out, &domain.VideoSegment{
			SessionID:   sessionID,
			LLMCallID:   &id,
			StartTime:   segStart,
			EndTime:     segEnd,
			Description: r.Description,
		})
	}
	return out, nil
}

// RewriteCards is rewriteCards exported for pkg/rpc's
// regenerate_timeline, which re-runs phase 2 over existing segments
// without going through the full window pipeline.
func RewriteCards(sessionID int64, callID int64, start, end time.Time, previewPath string, raw []llm.RawCard) ([]*domain.TimelineCard, error) {
	return rewriteCards(sessionID, callID, start, end, previewPath, raw)
}

// rewriteCards converts phase-2's raw MM:SS cards into absolute-time
// domain.TimelineCard rows, recursively rewriting nested distractions —
// the same clamp transformation applied one level deeper.
func rewriteCards(sessionID int64, callID int64, start, end time.Time, previewPath string, raw []llm.RawCard) ([]*domain.TimelineCard, error) {
	out := make([]*domain.TimelineCard, 0, len(raw))
	for _, r := range raw {
		cardStart, err := domain.RelativeToAbsolute(start, end, r.StartTime)
		if err != nil {
			return nil, err
		}
		cardEnd, err := domain.RelativeToAbsolute(start, end, r.EndTime)
		if err != nil {
			return nil, err
		}
		distractions, err := rewriteDistractions(start, end, r.Distractions)
		if err != nil {
			return nil, err
		}
		id := callID
		out = append(out, &domain.TimelineCard{
			SessionID:       sessionID,
			LLMCallID:       &id,
			StartTime:       cardStart,
			EndTime:         cardEnd,
			Category:        domain.NormalizeCategory(r.Category),
			Subcategory:     r.Subcategory,
			Title:           r.Title,
			Summary:         r.Summary,
			DetailedSummary: r.DetailedSummary,
			Distractions:    distractions,
			PrimaryApp:      r.PrimaryApp,
			SecondaryApps:   r.SecondaryApps,
			PreviewPath:     previewPath,
		})
	}
	return out, nil
}

func rewriteDistractions(start, end time.Time, raw []llm.RawDistraction) ([]domain.Distraction, error) {
	out := make([]domain.Distraction, 0, len(raw))
	for _, r := range raw {
		d := domain.Distraction{Title: r.Title, Summary: r.Summary}
		if r.StartTimestamp != "" {
			t, err := domain.RelativeToAbsolute(start, end, r.StartTimestamp)
			if err != nil {
				return nil, err
			}
			d.StartTime = &t
		}
		if r.EndTimestamp != "" {
			t, err := domain.RelativeToAbsolute(start, end, r.EndTimestamp)
			if err != nil {
				return nil, err
			}
			d.EndTime = &t
		}
		out = append(out, d)
	}
	return out, nil
}
