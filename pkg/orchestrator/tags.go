package orchestrator

import (
	"sort"

	"github.com/kestrel-dev/screenlens/pkg/domain"
)

// maxTags is the cap on how many category tags a session row carries.
const maxTags = 3

// minTagShare is the floor below which a category's share of total
// duration is considered noise and dropped.
const minTagShare = 0.1

// deriveTags implements §4.5.2: weight each category by its share of
// the window's total card duration, keep up to maxTags ranked by share
// descending, and fall back to a single confident tag from the first
// card's category when nothing clears the noise floor.
func deriveTags(cards []*domain.TimelineCard) []domain.Tag {
	if len(cards) == 0 {
		return nil
	}

	type accum struct {
		duration   float64
		keywordSet map[string]struct{}
	}
	byCategory := make(map[domain.Category]*accum)
	var total float64

	for _, c := range cards {
		d := c.EndTime.Sub(c.StartTime).Seconds()
		if d < 0 {
			d = 0
		}
		total += d
		a, ok := byCategory[c.Category]
		if !ok {
			a = &accum{keywordSet: make(map[string]struct{})}
			byCategory[c.Category] = a
		}
		a.duration += d
		if c.Subcategory != "" {
			a.keywordSet[c.Subcategory] = struct{}{}
		}
	}

	if total <= 0 {
		return []domain.Tag{{Category: cards[0].Category, Confidence: 1.0}}
	}

	tags := make([]domain.Tag, 0, len(byCategory))
	for cat, a := range byCategory {
		share := a.duration / total
		if share < minTagShare {
			continue
		}
		keywords := make([]string, 0, len(a.keywordSet))
		for kw := range a.keywordSet {
			keywords = append(keywords, kw)
		}
		sort.Strings(keywords)
		tags = append(tags, domain.Tag{Category: cat, Confidence: share, Keywords: keywords})
	}

	if len(tags) == 0 {
		return []domain.Tag{{Category: cards[0].Category, Confidence: 1.0}}
	}

	sort.Slice(tags, func(i, j int) bool { return tags[i].Confidence > tags[j].Confidence })
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	return tags
}
