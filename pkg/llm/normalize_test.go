package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrel-dev/screenlens/pkg/llm"
)

func TestNormalizeSecondaryAppsUpgradesScalar(t *testing.T) {
	assert.Equal(t, []string{"Slack"}, llm.NormalizeSecondaryApps("Slack", nil))
	assert.Nil(t, llm.NormalizeSecondaryApps("", nil))
	assert.Equal(t, []string{"a", "b"}, llm.NormalizeSecondaryApps("ignored", []string{"a", "b"}))
}

func TestParseDistractionsNoneValue(t *testing.T) {
	assert.Nil(t, llm.ParseDistractions("无"))
	assert.Nil(t, llm.ParseDistractions("none"))
	assert.Nil(t, llm.ParseDistractions(""))
}

func TestParseDistractionsTimeRangePrefix(t *testing.T) {
	got := llm.ParseDistractions("(03:10-04:00) 刷微博: 刷了十分钟微博")
	assert := assert.New(t)
	assert.Len(got, 1)
	assert.Equal("03:10", got[0].StartTimestamp)
	assert.Equal("04:00", got[0].EndTimestamp)
	assert.Equal("刷微博", got[0].Title)
}

func TestParseDistractionsFreeTextNoRange(t *testing.T) {
	got := llm.ParseDistractions("看了一眼手机")
	assert.Len(t, got, 1)
	assert.Equal(t, "看了一眼手机", got[0].Title)
	assert.Equal(t, "看了一眼手机", got[0].Summary)
}
