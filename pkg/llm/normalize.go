package llm

import (
	"regexp"
	"strings"
)

// distractionRangePattern matches a leading "(MM:SS-MM:SS)" or
// "(MM:SS~MM:SS)" time range prefix on a free-text distraction string.
var distractionRangePattern = regexp.MustCompile(`^\(?\s*(\d{2}:\d{2})\s*[-~]\s*(\d{2}:\d{2})\s*\)?\s*(.*)$`)

var noneValues = map[string]struct{}{
	"无": {}, "none": {}, "None": {}, "NONE": {}, "": {},
}

// NormalizeSecondaryApps upgrades a scalar secondary app/site value to
// list form, per §4.2's output-normalization requirement. A provider
// occasionally emits a bare string instead of an array when there is
// exactly one secondary app.
func NormalizeSecondaryApps(scalar string, list []string) []string {
	if len(list) > 0 {
		return list
	}
	if strings.TrimSpace(scalar) == "" {
		return nil
	}
	return []string{scalar}
}

// ParseDistractions heuristically parses a stringified distractions
// blob into structured entries: a leading time-range in parentheses
// becomes start/end, remaining free text becomes title+summary, and a
// "无"/"none" value ("none", "None" or "NONE") yields an empty list.
func ParseDistractions(raw string) []RawDistraction {
	raw = strings.TrimSpace(raw)
	if _, isNone := noneValues[raw]; isNone {
		return nil
	}

	var out []RawDistraction
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, isNone := noneValues[line]; isNone {
			continue
		}
		d := RawDistraction{}
		if m := distractionRangePattern.FindStringSubmatch(line); m != nil {
			d.StartTimestamp = m[1]
			d.EndTimestamp = m[2]
			line = strings.TrimSpace(m[3])
		}
		title, summary := splitTitleSummary(line)
		d.Title = title
		d.Summary = summary
		out = append(out, d)
	}
	return out
}

// splitTitleSummary splits free text on the first colon (ASCII or
// full-width) into a title and summary; text with no colon becomes both.
func splitTitleSummary(s string) (title, summary string) {
	for _, sep := range []string{"：", ":"} {
		if idx := strings.Index(s, sep); idx >= 0 {
			return strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+len(sep):])
		}
	}
	return s, s
}
