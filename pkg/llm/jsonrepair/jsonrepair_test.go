package jsonrepair_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-dev/screenlens/pkg/llm/jsonrepair"
)

func TestExtractDirectParse(t *testing.T) {
	got, err := jsonrepair.Extract(`[{"title":"x"}]`)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"title":"x"}]`, string(got))
}

func TestExtractCodeFenceStrip(t *testing.T) {
	raw := "here you go:\n```json\n[{\"startTime\":\"00:00\",\"endTime\":\"05:00\",\"category\":\"Work\",\"title\":\"X\"}]\n```"
	got, err := jsonrepair.Extract(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"startTime":"00:00","endTime":"05:00","category":"Work","title":"X"}]`, string(got))
}

func TestExtractBracketBoundedSubstring(t *testing.T) {
	raw := "Sure! The result is [{\"a\":1}] and that's it."
	got, err := jsonrepair.Extract(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"a":1}]`, string(got))
}

func TestExtractControlCharScrubAndTrailingCommaRepair(t *testing.T) {
	raw := "[{\"a\":1,}]\x01"
	got, err := jsonrepair.Extract(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"a":1}]`, string(got))
}

func TestExtractUnrecoverable(t *testing.T) {
	_, err := jsonrepair.Extract("not json at all, just prose")
	assert.ErrorIs(t, err, jsonrepair.ErrUnrecoverable)
}

func TestSynthesizeCardsFromSegments(t *testing.T) {
	cards := jsonrepair.SynthesizeCardsFromSegments(
		[]string{"00:00", "05:00"},
		[]string{"05:00", "15:00"},
		[]string{"coding", "email"},
	)
	require.Len(t, cards, 2)
	assert.Equal(t, "other", cards[0].Category)
	assert.Equal(t, "coding", cards[0].Title)
}
