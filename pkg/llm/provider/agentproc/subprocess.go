package agentproc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kestrel-dev/screenlens/pkg/domain"
	"github.com/kestrel-dev/screenlens/pkg/llm"
	"github.com/kestrel-dev/screenlens/pkg/masking"
)

// stdinMessage is the single newline-delimited JSON message written to
// the child's stdin before it is closed.
type stdinMessage struct {
	Type    string        `json:"type"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Source *struct {
		Type      string `json:"type"`
		MediaType string `json:"media_type"`
		Data      string `json:"data"`
	} `json:"source,omitempty"`
}

// stdoutEvent is one newline-delimited JSON line the child emits.
type stdoutEvent struct {
	Type    string `json:"type"`
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
	Error   string `json:"error"`
}

// run spawns the configured command, writes one message carrying
// prompt plus any image frames, and reads newline-delimited JSON
// events until a "result" event or EOF. Each line read is bounded by
// streamTimeout independently, so a hung child that stops producing
// output entirely is caught even if the overall ctx has no deadline.
func (p *Provider) run(ctx context.Context, kind domain.CallKind, prompt string, framePaths []string) (string, int64, error) {
	p.mu.Lock()
	cfg := p.cfg
	sessionCtx := p.sessionCtx
	timeout := p.streamTimeout
	p.mu.Unlock()

	msg, err := buildStdinMessage(prompt, framePaths)
	if err != nil {
		return "", 0, err
	}
	stdinBytes, err := json.Marshal(msg)
	if err != nil {
		return "", 0, fmt.Errorf("agentproc: marshal stdin message: %w", err)
	}
	stdinBytes = append(stdinBytes, '\n')

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Env = buildEnv(cfg)
	cmd.Stdin = bytes.NewReader(stdinBytes)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", 0, fmt.Errorf("agentproc: stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return "", 0, fmt.Errorf("agentproc: start: %w", err)
	}

	text, runErr := readEvents(stdout, timeout)
	if runErr != nil {
		// A stalled or failed child would otherwise keep Wait blocked.
		_ = cmd.Process.Kill()
	}
	waitErr := cmd.Wait()
	latency := time.Since(start)

	if runErr == nil && waitErr != nil {
		runErr = fmt.Errorf("agentproc: process exited: %w (stderr: %s)", waitErr, strings.TrimSpace(stderr.String()))
	}

	callID := p.recordCall(ctx, kind, sessionCtx, cfg, string(stdinBytes), text, runErr, latency)
	p.mu.Lock()
	if callID != 0 {
		p.lastCallID[kind] = callID
	}
	p.mu.Unlock()

	return text, callID, runErr
}

func buildStdinMessage(prompt string, framePaths []string) (stdinMessage, error) {
	parts := make([]contentPart, 0, len(framePaths)+1)
	for _, path := range framePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return stdinMessage{}, fmt.Errorf("agentproc: read frame %s: %w", path, err)
		}
		parts = append(parts, contentPart{
			Type: "image",
			Source: &struct {
				Type      string `json:"type"`
				MediaType string `json:"media_type"`
				Data      string `json:"data"`
			}{
				Type:      "base64",
				MediaType: "image/jpeg",
				Data:      base64.StdEncoding.EncodeToString(data),
			},
		})
	}
	parts = append(parts, contentPart{Type: "text", Text: prompt})
	return stdinMessage{Type: "user", Content: parts}, nil
}

// buildEnv inherits the parent environment, propagates the standard
// proxy variables, and layers on the agent's own credentials.
func buildEnv(cfg Config) []string {
	env := os.Environ()
	for _, k := range []string{"HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY", "http_proxy", "https_proxy", "no_proxy"} {
		if v := os.Getenv(k); v != "" {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
	}
	if cfg.APIKey != "" {
		env = append(env, "ANTHROPIC_API_KEY="+cfg.APIKey)
	}
	if cfg.AuthToken != "" {
		env = append(env, "ANTHROPIC_AUTH_TOKEN="+cfg.AuthToken)
	}
	if cfg.BaseURL != "" {
		env = append(env, "ANTHROPIC_BASE_URL="+cfg.BaseURL)
	}
	return env
}

// readEvents reads newline-delimited JSON events from r, accumulating
// assistant text and content_block_delta text until the stream ends; a
// "result" event's text, when one arrives, is what is returned.
// Each individual Scan is raced against timeout so a child that stalls
// mid-stream is detected without waiting on the whole process.
func readEvents(r interface{ Read([]byte) (int, error) }, timeout time.Duration) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lines := make(chan string)
	scanErrCh := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErrCh <- scanner.Err()
	}()

	var textBuf strings.Builder
	var resultText string
	gotResult := false

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErrCh; err != nil {
					return textBuf.String(), fmt.Errorf("agentproc: read stdout: %w", err)
				}
				if gotResult {
					return resultText, nil
				}
				return textBuf.String(), nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			var evt stdoutEvent
			if err := json.Unmarshal([]byte(line), &evt); err != nil {
				continue // ignore malformed lines rather than aborting the whole call
			}
			switch evt.Type {
			case "assistant":
				for _, c := range evt.Message.Content {
					if c.Type == "text" {
						textBuf.WriteString(c.Text)
					}
				}
			case "stream_event":
				var se struct {
					Event struct {
						Type  string `json:"type"`
						Delta struct {
							Text string `json:"text"`
						} `json:"delta"`
					} `json:"event"`
				}
				if json.Unmarshal([]byte(line), &se) == nil && se.Event.Type == "content_block_delta" {
					textBuf.WriteString(se.Event.Delta.Text)
				}
			case "result":
				if evt.IsError {
					return textBuf.String(), fmt.Errorf("agentproc: agent reported error: %s", evt.Error)
				}
				resultText = evt.Result
				gotResult = true
			}
		case <-time.After(timeout):
			return textBuf.String(), fmt.Errorf("agentproc: no output for %s", timeout)
		}
	}
}

// recordCall persists a sanitized LLMCall row and returns its id, or 0
// if no recorder is attached or the insert fails.
func (p *Provider) recordCall(ctx context.Context, kind domain.CallKind, _ llm.SessionContext, cfg Config, reqBody, respBody string, runErr error, latency time.Duration) int64 {
	p.mu.Lock()
	recorder := p.recorder
	sessionID := p.sessionCtx.SessionID
	p.mu.Unlock()
	if recorder == nil {
		return 0
	}

	masker := masking.MediaMasker{}
	sanitizedReq := reqBody
	if masker.AppliesTo(sanitizedReq) {
		sanitizedReq = masker.Mask(sanitizedReq)
	}

	call := &domain.LLMCall{
		Provider:     "agentproc",
		Model:        cfg.Command,
		Kind:         kind,
		RequestBody:  sanitizedReq,
		ResponseBody: respBody,
		LatencyMS:    latency.Milliseconds(),
	}
	if sessionID != 0 {
		call.SessionID = &sessionID
	}
	if runErr != nil {
		call.ErrorMessage = runErr.Error()
	}

	id, err := recorder.InsertLLMCall(ctx, call)
	if err != nil {
		return 0
	}
	return id
}
