package masking

import (
	"fmt"
	"regexp"
)

// dataURIPattern matches a base64 data: URI for an image or video, the
// shape both providers embed in outbound LLM requests.
var dataURIPattern = regexp.MustCompile(`data:(image|video)/[a-zA-Z0-9.+-]+;base64,([A-Za-z0-9+/=]+)`)

// rawBase64Pattern matches a long contiguous base64 run not wrapped in a
// data URI, the fallback catch for providers that send raw base64
// outside a data: prefix (e.g. a JSON "image" field holding bare
// base64). Anything over this length is assumed to be media, per
// invariant 4 ("no substring of length > 10000 decodes as base64
// image/video data").
var rawBase64Pattern = regexp.MustCompile(`[A-Za-z0-9+/]{10000,}={0,2}`)

// MediaMasker redacts base64-encoded image/video payloads from outbound
// LLM request bodies before they are persisted as an LLMCall audit row,
// replacing each blob with a length marker. It implements this
// package's Masker interface.
type MediaMasker struct{}

// Name implements Masker.
func (MediaMasker) Name() string { return "media_base64" }

// AppliesTo implements Masker: it reports whether either of Mask's two
// patterns (a media data URI or a long bare base64 run) matches input.
func (MediaMasker) AppliesTo(data string) bool {
	return dataURIPattern.MatchString(data) || rawBase64Pattern.MatchString(data)
}

// Mask replaces every base64 image/video data URI with a
// "<<image:NNN bytes>>" or "<<video:NNN bytes>>" marker, then every
// remaining bare base64 run of 10000 or more characters with a
// "<<media:NNN bytes>>" marker; NNN is the length of the base64 text.
func (MediaMasker) Mask(data string) string {
	masked := dataURIPattern.ReplaceAllStringFunc(data, func(match string) string {
		sub := dataURIPattern.FindStringSubmatch(match)
		kind, payload := sub[1], sub[2]
		return fmt.Sprintf("<<%s:%d bytes>>", kind, len(payload))
	})
	masked = rawBase64Pattern.ReplaceAllStringFunc(masked, func(match string) string {
		return fmt.Sprintf("<<media:%d bytes>>", len(match))
	})
	return masked
}

var _ Masker = MediaMasker{}
