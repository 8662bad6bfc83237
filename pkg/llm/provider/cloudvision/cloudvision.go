// Package cloudvision implements llm.Provider against an
// OpenAI-compatible chat-completions vision endpoint (the shape exposed
// by DashScope/Qwen-VL and similar hosted multimodal APIs): frames or a
// short clip go in as base64/uploaded-URL content parts, JSON comes
// back in the message body and is pulled out with the jsonrepair
// cascade. Request/response bodies are loosely shaped and vary by
// deployment, so gjson/sjson are used instead of fixed structs for
// everything except the handful of fields this package actually reads.
package cloudvision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/llm"
	"github.com/kestrel-dev/screenlens/pkg/llm/jsonrepair"
	"github.com/kestrel-dev/screenlens/pkg/masking"
)

// maxImageBatch is the most frames a single chat-completions call will
// carry; beyond this the caller's frames are uniformly subsampled.
const maxImageBatch = 30

const (
	maxRetries     = 3
	retryBackoff   = 60 * time.Second
	requestTimeout = 300 * time.Second
)

// Config is the JSON shape accepted by Configure.
type Config struct {
	APIKey       string `json:"api_key"`
	BaseURL      string `json:"base_url"`
	Model        string `json:"model"`
	UseVideoMode bool   `json:"use_video_mode"`
}

// Provider talks to an OpenAI-compatible vision chat-completions API.
// It owns no goroutines of its own; the manager actor serializes every
// call against it.
type Provider struct {
	mu sync.Mutex

	cfg        Config
	configured bool

	sessionCtx llm.SessionContext
	recorder   llm.CallRecorder
	masker     masking.Masker

	httpClient *http.Client

	lastCallID map[domain.CallKind]int64
}

// New constructs an unconfigured Provider.
func New() *Provider {
	return &Provider{
		masker: masking.MediaMasker{},
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
			},
		},
		lastCallID: make(map[domain.CallKind]int64),
	}
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "cloudvision" }

// Configure implements llm.Provider.
func (p *Provider) Configure(raw []byte) error {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("cloudvision: invalid config: %w", err)
	}
	if cfg.APIKey == "" || cfg.BaseURL == "" || cfg.Model == "" {
		return fmt.Errorf("cloudvision: api_key, base_url and model are required")
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
		Streaming:             false,
		MaxInputTokens:        32000,
		SupportedImageFormats: []string{"jpeg", "png"},
	}
}

// SetSessionContext implements llm.SessionAware. The caller (the LLM
// Manager Actor) owns the authoritative session state and always
// passes the complete current value, so this is a plain overwrite —
// never a merge — which is what lets SetVideoPath("") actually clear
// the field on teardown instead of being a no-op.
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

// AnalyzeFrames implements llm.Provider's legacy single-phase path: one
// chat-completions call over a batch of frames, free-text summary back.
func (p *Provider) AnalyzeFrames(ctx context.Context, framePaths []string) (string, int64, error) {
	if err := p.checkUsable(framePaths); err != nil {
		return "", 0, err
	}
	batch := subsample(framePaths, maxImageBatch)
	content, err := p.imageContentParts(batch)
	if err != nil {
		return "", 0, err
	}
	content = append(content, textPart(analyzeFramesPrompt))

	resp, callID, err := p.chatCompletion(ctx, domain.CallKindAnalyzeFrames, content, 0.5)
	if err != nil {
		return "", callID, err
	}
	return firstChoiceText(resp), callID, nil
}

// SegmentVideo runs phase 1: split the session clip into coarse
// activity segments with MM:SS-relative boundaries. When the provider
// is configured for video mode and a clip path is attached, the clip
// is uploaded once and referenced by URL instead of sending every
// frame inline as base64.
func (p *Provider) SegmentVideo(ctx context.Context, framePaths []string, durationMinutes int) ([]llm.RawSegment, int64, error) {
	if err := p.checkUsable(framePaths); err != nil {
		return nil, 0, err
	}

	p.mu.Lock()
	useVideo := p.cfg.UseVideoMode
	videoPath := p.sessionCtx.VideoPath
	cfg := p.cfg
	p.mu.Unlock()

	var content []map[string]any
	switch {
	case useVideo && videoPath != "":
		videoURL, err := p.uploadClip(ctx, cfg, videoPath)
		if err != nil {
			return nil, 0, fmt.Errorf("cloudvision: upload clip: %w", err)
		}
		content = []map[string]any{{
			"type":      "video_url",
			"video_url": map[string]string{"url": videoURL},
		}}
	case useVideo:
		// No uploaded clip available: fall back to the other documented
		// wire format, a single "video" part carrying every sampled
		// frame as a base64 data URI, rather than per-frame image_url
		// parts (which the model does not treat as a coherent clip).
		batch := subsample(framePaths, maxImageBatch)
		part, err := p.videoContentPart(batch)
		if err != nil {
			return nil, 0, err
		}
		content = []map[string]any{part}
	default:
		batch := subsample(framePaths, maxImageBatch)
		var err error
		content, err = p.imageContentParts(batch)
		if err != nil {
			return nil, 0, err
		}
	}
	content = append(content, textPart(fmt.Sprintf(segmentVideoPrompt, durationMinutes)))

	resp, callID, err := p.chatCompletion(ctx, domain.CallKindSegmentVideo, content, 0.3)
	if err != nil {
		return nil, callID, err
	}

	extracted, err := jsonrepair.Extract(firstChoiceText(resp))
	if err != nil {
		return nil, callID, nil // unparseable reply: no segments, no error
	}

	var segments []llm.RawSegment
	gjson.ParseBytes(extracted).Get("segments").ForEach(func(_, v gjson.Result) bool {
		segments = append(segments, llm.RawSegment{
			StartTimestamp: v.Get("start").String(),
			EndTimestamp:   v.Get("end").String(),
			Description:    v.Get("description").String(),
		})
		return true
	})
	return segments, callID, nil
}

// GenerateTimeline runs phase 2: turn raw segments (plus prior cards
// for continuity) into category-tagged timeline cards.
func (p *Provider) GenerateTimeline(ctx context.Context, segments []llm.RawSegment, previous []domain.TimelineCard) ([]llm.RawCard, int64, error) {
	body, err := json.Marshal(segments)
	if err != nil {
		return nil, 0, fmt.Errorf("cloudvision: marshal segments: %w", err)
	}
	prompt := fmt.Sprintf(generateTimelinePrompt, string(body), len(previous))
	content := []map[string]any{textPart(prompt)}

	resp, callID, err := p.chatCompletion(ctx, domain.CallKindGenerateTimeline, content, 0.4)
	if err != nil {
		return nil, callID, err
	}

	extracted, err := jsonrepair.Extract(firstChoiceText(resp))
	if err != nil {
		return nil, callID, err
	}

	var cards []llm.RawCard
	gjson.ParseBytes(extracted).Get("cards").ForEach(func(_, v gjson.Result) bool {
		var secondary []string
		v.Get("secondary_apps").ForEach(func(_, s gjson.Result) bool {
			secondary = append(secondary, s.String())
			return true
		})
		cards = append(cards, llm.RawCard{
			StartTime:       v.Get("start_time").String(),
			EndTime:         v.Get("end_time").String(),
			Category:        v.Get("category").String(),
			Subcategory:     v.Get("subcategory").String(),
			Title:           v.Get("title").String(),
			Summary:         v.Get("summary").String(),
			DetailedSummary: v.Get("detailed_summary").String(),
			Distractions:    llm.ParseDistractions(v.Get("distractions").String()),
			PrimaryApp:      v.Get("primary_app").String(),
			SecondaryApps:   llm.NormalizeSecondaryApps(v.Get("secondary_apps").String(), secondary),
		})
		return true
	})
	return cards, callID, nil
}

// GenerateDaySummary produces a coarse narrative across a day's sessions.
func (p *Provider) GenerateDaySummary(ctx context.Context, date string, sessions []llm.SessionBrief) (string, int64, error) {
	body, err := json.Marshal(sessions)
	if err != nil {
		return "", 0, fmt.Errorf("cloudvision: marshal sessions: %w", err)
	}
	prompt := fmt.Sprintf(daySummaryPrompt, date, string(body))
	content := []map[string]any{textPart(prompt)}

	resp, callID, err := p.chatCompletion(ctx, domain.CallKindGenerateDaySummary, content, 0.6)
	if err != nil {
		return "", callID, err
	}
	return firstChoiceText(resp), callID, nil
}

// uploadClip fetches an upload policy and stages the clip via OSS
// multipart upload, returning a URL the chat-completions endpoint can
// dereference.
func (p *Provider) uploadClip(ctx context.Context, cfg Config, clipPath string) (string, error) {
	policy, err := fetchUploadPolicy(ctx, p.httpClient, cfg.BaseURL, cfg.APIKey, cfg.Model)
	if err != nil {
		return "", err
	}
	return multipartUpload(ctx, p.httpClient, policy, clipPath)
}

func (p *Provider) checkUsable(framePaths []string) error {
	if !p.IsConfigured() {
		return llm.ErrNotConfigured
	}
	if len(framePaths) < llm.MinUsableFrames {
		return llm.ErrVideoTooShort
	}
	return nil
}

// subsample uniformly strides paths down to at most n entries, always
// keeping the first and last frame for temporal coverage.
func subsample(paths []string, n int) []string {
	if len(paths) <= n {
		return paths
	}
	out := make([]string, 0, n)
	stride := float64(len(paths)-1) / float64(n-1)
	for i := 0; i < n; i++ {
		idx := int(float64(i) * stride)
		out = append(out, paths[idx])
	}
	return out
}

func (p *Provider) imageContentParts(framePaths []string) ([]map[string]any, error) {
	parts := make([]map[string]any, 0, len(framePaths))
	for _, path := range framePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cloudvision: read frame %s: %w", path, err)
		}
		uri := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)
		parts = append(parts, map[string]any{
			"type":      "image_url",
			"image_url": map[string]string{"url": uri},
		})
	}
	return parts, nil
}

// videoContentPart builds the other documented video-mode wire shape: a
// single content part of type "video" carrying every sampled frame as a
// base64 data URI, for when no uploaded clip is available to reference
// by video_url.
func (p *Provider) videoContentPart(framePaths []string) (map[string]any, error) {
	uris := make([]string, 0, len(framePaths))
	for _, path := range framePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cloudvision: read frame %s: %w", path, err)
		}
		uris = append(uris, "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString(data))
	}
	return map[string]any{"type": "video", "video": uris}, nil
}

func textPart(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}

// chatCompletion POSTs one chat-completions request, making up to
// maxRetries attempts in total, with a fixed backoff between them, for
// transient (timeout) failures; any other error fails fast. The sanitized request/response is persisted
// as an LLMCall audit row regardless of outcome.
func (p *Provider) chatCompletion(ctx context.Context, kind domain.CallKind, content []map[string]any, temperature float64) (gjson.Result, int64, error) {
	p.mu.Lock()
	cfg := p.cfg
	sessionCtx := p.sessionCtx
	p.mu.Unlock()

	body, err := buildRequestBody(cfg.Model, content, temperature)
	if err != nil {
		return gjson.Result{}, 0, err
	}

	url := cfg.BaseURL + "/chat/completions"

	var (
		respBody   []byte
		statusCode int
		latency    time.Duration
		callErr    error
	)
	start := time.Now()
	for attempt := 1; attempt <= maxRetries; attempt++ {
		respBody, statusCode, callErr = p.doRequest(ctx, url, cfg.APIKey, body)
		latency = time.Since(start)
		if callErr == nil {
			break
		}
		if !isTimeout(callErr) || attempt == maxRetries {
			break
		}
		select {
		case <-time.After(retryBackoff):
		case <-ctx.Done():
			callErr = ctx.Err()
			attempt = maxRetries
		}
	}

	callID := p.recordCall(ctx, kind, sessionCtx, body, respBody, statusCode, latency, callErr)
	p.mu.Lock()
	if callID != 0 {
		p.lastCallID[kind] = callID
	}
	p.mu.Unlock()

	if callErr != nil {
		return gjson.Result{}, callID, callErr
	}
	if statusCode != http.StatusOK {
		return gjson.Result{}, callID, fmt.Errorf("cloudvision: HTTP %d: %s", statusCode, string(respBody))
	}
	return gjson.ParseBytes(respBody), callID, nil
}

func buildRequestBody(model string, content []map[string]any, temperature float64) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	body, err = sjson.SetBytes(body, "model", model)
	if err != nil {
		return nil, err
	}
	body, err = sjson.SetBytes(body, "temperature", temperature)
	if err != nil {
		return nil, err
	}
	body, err = sjson.SetBytes(body, "max_tokens", 8000)
	if err != nil {
		return nil, err
	}
	body, err = sjson.SetBytes(body, "response_format.type", "json_object")
	if err != nil {
		return nil, err
	}
	body, err = sjson.SetBytes(body, "messages.0.role", "user")
	if err != nil {
		return nil, err
	}
	body, err = sjson.SetRawBytes(body, "messages.0.content", mustMarshal(content))
	if err != nil {
		return nil, err
	}
	return body, nil
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("[]")
	}
	return b
}

func (p *Provider) doRequest(ctx context.Context, url, apiKey string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("cloudvision: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("X-DashScope-OssResourceResolve", "enable")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("cloudvision: read response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func firstChoiceText(resp gjson.Result) string {
	return resp.Get("choices.0.message.content").String()
}

// recordCall persists a sanitized LLMCall row and returns its id, or 0
// if no recorder is attached or the insert fails (analysis must not be
// blocked by an audit-trail write failure).
func (p *Provider) recordCall(ctx context.Context, kind domain.CallKind, sessionCtx llm.SessionContext, reqBody, respBody []byte, statusCode int, latency time.Duration, callErr error) int64 {
	p.mu.Lock()
	recorder := p.recorder
	masker := p.masker
	cfg := p.cfg
	p.mu.Unlock()
	if recorder == nil {
		return 0
	}

	sanitizedReq := string(reqBody)
	if masker.AppliesTo(sanitizedReq) {
		sanitizedReq = masker.Mask(sanitizedReq)
	}
	respStr := string(respBody)
	if len(respStr) > 16000 {
		respStr = respStr[:16000] + "...(truncated)"
	}

	call := &domain.LLMCall{
		Provider:     "cloudvision",
		Model:        cfg.Model,
		Kind:         kind,
		RequestBody:  sanitizedReq,
		ResponseBody: respStr,
		StatusCode:   statusCode,
		LatencyMS:    latency.Milliseconds(),
	}
	if sessionCtx.SessionID != 0 {
		id := sessionCtx.SessionID
		call.SessionID = &id
	}
	if callErr != nil {
		call.ErrorMessage = callErr.Error()
	}

	id, err := recorder.InsertLLMCall(ctx, call)
	if err != nil {
		return 0
	}
	return id
}

var _ llm.Provider = (*Provider)(nil)
var _ llm.SessionAware = (*Provider)(nil)

// multipartUpload performs the OSS upload-policy-then-POST dance some
// deployments require for video clips instead of inline base64.
func multipartUpload(ctx context.Context, client *http.Client, policy uploadPolicy, filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("cloudvision: read upload file: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := map[string]string{
		"key":                    policy.UploadDir + "/" + filepath.Base(filePath),
		"policy":                 policy.Policy,
		"OSSAccessKeyId":         policy.AccessKeyID,
		"signature":              policy.Signature,
		"x-oss-object-acl":       policy.ObjectACL,
		"x-oss-forbid-overwrite": policy.ForbidOverwrite,
		"success_action_status":  "200",
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return "", err
		}
	}
	part, err := w.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, policy.UploadHost, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cloudvision: upload HTTP %d", resp.StatusCode)
	}
	return "oss://" + fields["key"], nil
}

type uploadPolicy struct {
	UploadHost      string
	UploadDir       string
	Signature       string
	Policy          string
	AccessKeyID     string
	ObjectACL       string
	ForbidOverwrite string
}

// fetchUploadPolicy retrieves the OSS upload policy used to stage a
// video clip before referencing it in a chat-completions request.
func fetchUploadPolicy(ctx context.Context, client *http.Client, baseURL, apiKey, model string) (uploadPolicy, error) {
	url := fmt.Sprintf("%s/uploads?action=getPolicy&model=%s", baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return uploadPolicy{}, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return uploadPolicy{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return uploadPolicy{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return uploadPolicy{}, fmt.Errorf("cloudvision: getPolicy HTTP %d: %s", resp.StatusCode, string(body))
	}

	data := gjson.GetBytes(body, "data")
	return uploadPolicy{
		UploadHost:      data.Get("upload_host").String(),
		UploadDir:       data.Get("upload_dir").String(),
		Signature:       data.Get("signature").String(),
		Policy:          data.Get("policy").String(),
		AccessKeyID:     data.Get("oss_access_key_id").String(),
		ObjectACL:       data.Get("x_oss_object_acl").String(),
		ForbidOverwrite: data.Get("x_oss_forbid_overwrite").String(),
	}, nil
}
