package masking_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrel-dev/screenlens/pkg/masking"
)

func TestMediaMaskerRedactsDataURI(t *testing.T) {
	m := masking.MediaMasker{}
	payload := strings.Repeat("A", 100)
	body := `{"image_url":"data:image/jpeg;base64,` + payload + `"}`

	require := assert.New(t)
	require.True(m.AppliesTo(body))
	masked := m.Mask(body)
	require.NotContains(masked, payload)
	require.Contains(masked, "<<image:100 bytes>>")
}

func TestMediaMaskerRedactsRawLongBase64(t *testing.T) {
	m := masking.MediaMasker{}
	payload := strings.Repeat("B", 10001)
	body := `{"frame":"` + payload + `"}`

	assert.True(t, m.AppliesTo(body))
	masked := m.Mask(body)
	assert.NotContains(t, masked, payload)
	assert.Contains(t, masked, "<<media:10001 bytes>>")
}

func TestMediaMaskerLeavesShortStringsAlone(t *testing.T) {
	m := masking.MediaMasker{}
	body := `{"model":"gpt-4o","prompt":"segment this window"}`
	assert.False(t, m.AppliesTo(body))
	assert.Equal(t, body, m.Mask(body))
}
