package llm

import (
	"context"

	"github.com/kestrel-dev/screenlens/pkg/domain"
)

// CallRecorder is the narrow slice of storage.Store a provider needs to
// persist its own audit trail. Providers depend on this interface
// rather than the full storage.Store so pkg/llm never imports
// pkg/storage directly — the dependency runs one way, from storage
// down to domain, and from llm down to domain, never llm -> storage.
type CallRecorder interface {
	InsertLLMCall(ctx context.Context, c *domain.LLMCall) (int64, error)
}
