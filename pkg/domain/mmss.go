package domain

import (
	"fmt"
	"regexp"
	"time"
)

var mmssPattern = regexp.MustCompile(`^([0-9]{2}):([0-9]{2})$`)

// ParseMMSS parses a "MM:SS" relative timestamp into a duration from the
// window start. It does not validate an upper bound on minutes — segments
// spanning more than 99 minutes never occur in this system's windows, but
// the format itself tolerates any two-digit minute count.
func ParseMMSS(s string) (time.Duration, error) {
	m := mmssPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("domain: %q is not a valid MM:SS timestamp", s)
	}
	minutes := int(m[1][0]-'0')*10 + int(m[1][1]-'0')
	seconds := int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	if seconds > 59 {
		return 0, fmt.Errorf("domain: %q has an out-of-range seconds component", s)
	}
	return time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second, nil
}

// FormatMMSS renders a duration back to "MM:SS". Durations are clamped to
// non-negative and rounded to the nearest whole second.
func FormatMMSS(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second) / time.Second)
	minutes := total / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// RelativeToAbsolute converts a "MM:SS" timestamp relative to a window's
// start into an absolute instant, clamped to [start, end]. This realizes
// spec invariant 8: RelativeToAbsolute(start, end, "00:00") == start and
// RelativeToAbsolute(start, end, FormatMMSS(end-start)) == end.
func RelativeToAbsolute(start, end time.Time, mmss string) (time.Time, error) {
	offset, err := ParseMMSS(mmss)
	if err != nil {
		return time.Time{}, err
	}
	abs := start.Add(offset)
	if abs.Before(start) {
		return start, nil
	}
	if abs.After(end) {
		return end, nil
	}
	return abs, nil
}
