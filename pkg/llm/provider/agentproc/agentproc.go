// Package agentproc implements llm.Provider by spawning a local CLI
// agent as a subprocess and speaking its newline-delimited JSON
// protocol over stdin/stdout, the same exec.Command-plus-environment
// shape pkg/mcp/transport.go uses for its stdio MCP transport, adapted
// from a long-lived server process to a one-shot request/response
// child per call.
package agentproc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/llm"
)

const defaultStreamTimeout = 180 * time.Second

// Config is the JSON shape accepted by Configure.
type Config struct {
	Command   string   `json:"command"`
	Args      []string `json:"args"`
	APIKey    string   `json:"api_key"`
	AuthToken string   `json:"auth_token"`
	BaseURL   string   `json:"base_url"`
}

// Provider drives a subprocess CLI agent that itself has vision and
// tool-use capability, used as an alternative backend to the direct
// HTTP vision API in pkg/llm/provider/cloudvision.
type Provider struct {
	mu sync.Mutex

	cfg        Config
	configured bool

	sessionCtx llm.SessionContext
	recorder   llm.CallRecorder

	streamTimeout time.Duration
	lastCallID    map[domain.CallKind]int64
}

// New constructs an unconfigured Provider. The per-chunk read timeout
// defaults to 180s and can be overridden with
// CLAUDE_AGENT_STREAM_TIMEOUT_SECS.
func New() *Provider {
	timeout := defaultStreamTimeout
	if v := os.Getenv("CLAUDE_AGENT_STREAM_TIMEOUT_SECS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}
	return &Provider{
		streamTimeout: timeout,
		lastCallID:    make(map[domain.CallKind]int64),
	}
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "agentproc" }

// Configure implements llm.Provider.
func (p *Provider) Configure(raw []byte) error {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("agentproc: invalid config: %w", err)
	}
	if cfg.Command == "" {
		return fmt.Errorf("agentproc: command is required")
	}
	p.mu.Lock()
	p.cfg = cfg
	p.configured = true
	p.mu.Unlock()
	return nil
}

// IsConfigured implements llm.Provider.
func (p *Provider) IsConfigured() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.configured
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		VisionSupport:         true,
		BatchAnalysis:         true,
		Streaming:             true,
		MaxInputTokens:        200000,
		SupportedImageFormats: []string{"jpeg", "png"},
	}
}

// SetSessionContext implements llm.SessionAware. The manager owns the
// authoritative session state and always passes it in full, so this
// is a straight overwrite rather than a merge.
func (p *Provider) SetSessionContext(c llm.SessionContext) {
	p.mu.Lock()
	p.sessionCtx = c
	p.mu.Unlock()
}

// SetCallRecorder implements the manager's recorderAware hook.
func (p *Provider) SetCallRecorder(r llm.CallRecorder) {
	p.mu.Lock()
	p.recorder = r
	p.mu.Unlock()
}

// LastCallID implements llm.Provider.
func (p *Provider) LastCallID(kind domain.CallKind) (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.lastCallID[kind]
	return id, ok
}

// AnalyzeFrames implements llm.Provider.
func (p *Provider) AnalyzeFrames(ctx context.Context, framePaths []string) (string, int64, error) {
	if err := p.checkUsable(framePaths); err != nil {
		return "", 0, err
	}
	text, callID, err := p.run(ctx, domain.CallKindAnalyzeFrames, analyzeFramesPrompt, framePaths)
	return text, callID, err
}

// SegmentVideo implements llm.Provider's phase 1.
func (p *Provider) SegmentVideo(ctx context.Context, framePaths []string, durationMinutes int) ([]llm.RawSegment, int64, error) {
	if err := p.checkUsable(framePaths); err != nil {
		return nil, 0, err
	}
	prompt := fmt.Sprintf(segmentVideoPrompt, durationMinutes)
	text, callID, err := p.run(ctx, domain.CallKindSegmentVideo, prompt, framePaths)
	if err != nil {
		return nil, callID, err
	}

	var parsed struct {
		Segments []struct {
			Start       string `json:"start"`
			End         string `json:"end"`
			Description string `json:"description"`
		} `json:"segments"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, callID, nil // unparseable reply: no segments, no error
	}
	segments := make([]llm.RawSegment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		segments = append(segments, llm.RawSegment{StartTimestamp: s.Start, EndTimestamp: s.End, Description: s.Description})
	}
	return segments, callID, nil
}

// GenerateTimeline implements llm.Provider's phase 2.
func (p *Provider) GenerateTimeline(ctx context.Context, segments []llm.RawSegment, previous []domain.TimelineCard) ([]llm.RawCard, int64, error) {
	body, err := json.Marshal(segments)
	if err != nil {
		return nil, 0, fmt.Errorf("agentproc: marshal segments: %w", err)
	}
	prompt := fmt.Sprintf(generateTimelinePrompt, string(body), len(previous))
	text, callID, err := p.run(ctx, domain.CallKindGenerateTimeline, prompt, nil)
	if err != nil {
		return nil, callID, err
	}

	var parsed struct {
		Cards []struct {
			StartTime       string   `json:"start_time"`
			EndTime         string   `json:"end_time"`
			Category        string   `json:"category"`
			Subcategory     string   `json:"subcategory"`
			Title           string   `json:"title"`
			Summary         string   `json:"summary"`
			DetailedSummary string   `json:"detailed_summary"`
			Distractions    string   `json:"distractions"`
			PrimaryApp      string   `json:"primary_app"`
			SecondaryApps   []string `json:"secondary_apps"`
		} `json:"cards"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, callID, err
	}

	cards := make([]llm.RawCard, 0, len(parsed.Cards))
	for _, c := range parsed.Cards {
		cards = append(cards, llm.RawCard{
			StartTime:       c.StartTime,
			EndTime:         c.EndTime,
			Category:        c.Category,
			Subcategory:     c.Subcategory,
			Title:           c.Title,
			Summary:         c.Summary,
			DetailedSummary: c.DetailedSummary,
			Distractions:    llm.ParseDistractions(c.Distractions),
			PrimaryApp:      c.PrimaryApp,
			SecondaryApps:   llm.NormalizeSecondaryApps("", c.SecondaryApps),
		})
	}
	return cards, callID, nil
}

// GenerateDaySummary implements llm.Provider.
func (p *Provider) GenerateDaySummary(ctx context.Context, date string, sessions []llm.SessionBrief) (string, int64, error) {
	body, err := json.Marshal(sessions)
	if err != nil {
		return "", 0, fmt.Errorf("agentproc: marshal sessions: %w", err)
	}
	prompt := fmt.Sprintf(daySummaryPrompt, date, string(body))
	return p.run(ctx, domain.CallKindGenerateDaySummary, prompt, nil)
}

func (p *Provider) checkUsable(framePaths []string) error {
	if !p.IsConfigured() {
		return llm.ErrNotConfigured
	}
	if len(framePaths) > 0 && len(framePaths) < llm.MinUsableFrames {
		return llm.ErrVideoTooShort
	}
	return nil
}

var _ llm.Provider = (*Provider)(nil)
var _ llm.SessionAware = (*Provider)(nil)
