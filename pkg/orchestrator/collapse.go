package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kestrel-dev/screenlens/pkg/domain"
)

// timeLabel is the clock-time label used inside collapsed summaries
// ("15:04" rather than RFC3339 — these strings are for a human reading
// the card, not for re-parsing).
func timeLabel(c *domain.TimelineCard) string {
	return fmt.Sprintf("%s-%s", c.StartTime.Format("15:04"), c.EndTime.Format("15:04"))
}

// collapseCards implements §4.5.1: when phase 2 returns more than one
// card for a single window, fold them into the one card a session row
// actually stores. A single input card passes through unchanged.
func collapseCards(cards []*domain.TimelineCard) *domain.TimelineCard {
	if len(cards) == 0 {
		return nil
	}
	if len(cards) == 1 {
		return cards[0]
	}

	first := cards[0]
	out := &domain.TimelineCard{
		SessionID:   first.SessionID,
		LLMCallID:   first.LLMCallID,
		StartTime:   first.StartTime,
		EndTime:     first.EndTime,
		Category:    first.Category,
		Subcategory: first.Subcategory,
		PreviewPath: first.PreviewPath,
	}

	summaryParts := make([]string, 0, len(cards))
	detailParts := make([]string, 0, len(cards))
	secondarySet := make(map[string]struct{})

	for _, c := range cards {
		if c.StartTime.Before(out.StartTime) {
			out.StartTime = c.StartTime
		}
		if c.EndTime.After(out.EndTime) {
			out.EndTime = c.EndTime
		}
		summaryParts = append(summaryParts, fmt.Sprintf("%s %s", timeLabel(c), c.Title))
		detailParts = append(detailParts, fmt.Sprintf("%s: %s", timeLabel(c), c.DetailedSummary))
		for _, app := range c.SecondaryApps {
			if app != "" {
				secondarySet[app] = struct{}{}
			}
		}
		out.Distractions = append(out.Distractions, c.Distractions...)
		if out.PrimaryApp == "" && c.PrimaryApp != "" {
			out.PrimaryApp = c.PrimaryApp
		}
	}

	if len(cards) > 1 {
		out.Title = fmt.Sprintf("%s 等 %d 项活动", first.Title, len(cards))
	} else {
		out.Title = first.Title
	}
	out.Summary = strings.Join(summaryParts, "; ")
	out.DetailedSummary = strings.Join(detailParts, "; ")

	secondary := make([]string, 0, len(secondarySet))
	for app := range secondarySet {
		secondary = append(secondary, app)
	}
	sort.Strings(secondary)
	out.SecondaryApps = secondary

	return out
}
