package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMMSSRoundTrip(t *testing.T) {
	cases := []string{"00:00", "00:59", "15:00", "59:59", "03:07"}
	for _, s := range cases {
		d, err := ParseMMSS(s)
		require.NoError(t, err)
		assert.Equal(t, s, FormatMMSS(d), "round trip for %s", s)
	}
}

func TestParseMMSSRejectsBadInput(t *testing.T) {
	_, err := ParseMMSS("15:00:00")
	assert.Error(t, err)

	_, err = ParseMMSS("ab:cd")
	assert.Error(t, err)

	_, err = ParseMMSS("01:99")
	assert.Error(t, err)
}

func TestRelativeToAbsoluteBounds(t *testing.T) {
	start := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	end := start.Add(15 * time.Minute)

	got, err := RelativeToAbsolute(start, end, "00:00")
	require.NoError(t, err)
	assert.True(t, got.Equal(start))

	got, err = RelativeToAbsolute(start, end, FormatMMSS(end.Sub(start)))
	require.NoError(t, err)
	assert.True(t, got.Equal(end))
}

func TestRelativeToAbsoluteClampsOutOfRange(t *testing.T) {
	start := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	end := start.Add(15 * time.Minute)

	got, err := RelativeToAbsolute(start, end, "45:00")
	require.NoError(t, err)
	assert.True(t, got.Equal(end), "out-of-range MM:SS must clamp to end")
}

func TestNormalizeCategory(t *testing.T) {
	assert.Equal(t, CategoryWork, NormalizeCategory("work"))
	assert.Equal(t, CategoryWork, NormalizeCategory("Work"))
	assert.Equal(t, CategoryOther, NormalizeCategory("gaming"))
	assert.Equal(t, CategoryOther, NormalizeCategory(""))
}

func TestSessionIsPlaceholder(t *testing.T) {
	s := &Session{Title: PlaceholderTitle}
	assert.True(t, s.IsPlaceholder())
	s.Title = "开发"
	assert.False(t, s.IsPlaceholder())
}
