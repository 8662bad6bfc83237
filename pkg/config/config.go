// Package config manages the analyzer's application configuration: a
// single JSON file at a platform-appropriate data directory, with an
// optional YAML provider-profile overlay. The load/validate/persist
// shape and the env-var expansion helper (envexpand.go) are carried
// over from the teacher's pkg/config; the registries it built around
// agents, chains and MCP servers have no analogue here and are not
// carried — a Config is just one struct, not a set of registries.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration, persisted as
// config.json in the application data directory.
type Config struct {
	RetentionDays   int             `json:"retention_days"`
	LLMProvider     string          `json:"llm_provider"`
	LLMConfig       LLMConfig       `json:"llm_config"`
	CaptureInterval int             `json:"capture_interval"` // seconds
	SummaryInterval int             `json:"summary_interval"` // minutes
	VideoConfig     VideoConfig     `json:"video_config"`
	CaptureSettings CaptureSettings `json:"capture_settings"`
	DatabaseConfig  DatabaseConfig  `json:"database_config"`
	LoggerSettings  LoggerSettings  `json:"logger_settings"`
	NotionConfig    json.RawMessage `json:"notion_config,omitempty"` // opaque, read-through only
}

// LLMConfig configures the active vision-LLM provider.
type LLMConfig struct {
	APIKey       string `json:"api_key,omitempty"`
	AuthToken    string `json:"auth_token,omitempty"`
	Model        string `json:"model"`
	BaseURL      string `json:"base_url,omitempty"`
	UseVideoMode bool   `json:"use_video_mode"`
}

// VideoConfig controls clip assembly.
type VideoConfig struct {
	AutoGenerate    bool    `json:"auto_generate"`
	SpeedMultiplier float64 `json:"speed_multiplier"`
	Quality         string  `json:"quality"`
	AddTimestamp    bool    `json:"add_timestamp"`
}

// Resolution is the closed set of supported capture resolutions.
type Resolution string

const (
	Resolution1080p    Resolution = "1080p"
	Resolution2K       Resolution = "2k"
	Resolution4K       Resolution = "4k"
	ResolutionOriginal Resolution = "original"
)

// CaptureSettings controls the capture scheduler.
type CaptureSettings struct {
	Resolution           Resolution `json:"resolution"`
	ImageQuality         int        `json:"image_quality"` // 1..100
	DetectBlackScreen    bool       `json:"detect_black_screen"`
	BlackScreenThreshold int        `json:"black_screen_threshold"` // 0..255
}

// DatabaseConfig selects and configures the storage backend.
type DatabaseConfig struct {
	Backend  string `json:"backend"` // "sqlite" | "mysql"
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Database string `json:"database,omitempty"`
	Path     string `json:"path,omitempty"` // sqlite file path
}

// LoggerSettings controls UI-facing logging knobs.
type LoggerSettings struct {
	EnableFrontendLogging bool `json:"enable_frontend_logging"`
}

// Default returns the built-in default configuration, the same values
// a fresh install starts from.
func Default() *Config {
	return &Config{
		RetentionDays:   7,
		LLMProvider:     "openai",
		LLMConfig:       LLMConfig{Model: "gpt-4o", UseVideoMode: false},
		CaptureInterval: 5,
		SummaryInterval: 15,
		VideoConfig: VideoConfig{
			AutoGenerate:    true,
			SpeedMultiplier: 4,
			Quality:         "medium",
			AddTimestamp:    true,
		},
		CaptureSettings: CaptureSettings{
			Resolution:           Resolution1080p,
			ImageQuality:         80,
			DetectBlackScreen:    true,
			BlackScreenThreshold: 10,
		},
		DatabaseConfig: DatabaseConfig{Backend: "sqlite"},
		LoggerSettings: LoggerSettings{EnableFrontendLogging: false},
	}
}

// Validate clamps out-of-range numeric fields to their nearest documented
// bound and rejects values with no sane default, so a hand-edited
// config.json degrades gracefully instead of blocking startup.
func (c *Config) Validate() error {
	if c.RetentionDays < 1 {
		c.RetentionDays = 1
	} else if c.RetentionDays > 30 {
		c.RetentionDays = 30
	}
	if c.CaptureInterval <= 0 {
		return fmt.Errorf("%w: capture_interval must be positive, got %d", ErrInvalidValue, c.CaptureInterval)
	}
	if c.SummaryInterval <= 0 {
		return fmt.Errorf("%w: summary_interval must be positive, got %d", ErrInvalidValue, c.SummaryInterval)
	}
	if c.CaptureSettings.ImageQuality < 1 {
		c.CaptureSettings.ImageQuality = 1
	} else if c.CaptureSettings.ImageQuality > 100 {
		c.CaptureSettings.ImageQuality = 100
	}
	if c.CaptureSettings.BlackScreenThreshold < 0 {
		c.CaptureSettings.BlackScreenThreshold = 0
	} else if c.CaptureSettings.BlackScreenThreshold > 255 {
		c.CaptureSettings.BlackScreenThreshold = 255
	}
	if c.VideoConfig.SpeedMultiplier <= 0 {
		return fmt.Errorf("%w: video_config.speed_multiplier must be positive, got %v", ErrInvalidValue, c.VideoConfig.SpeedMultiplier)
	}
	switch c.DatabaseConfig.Backend {
	case "", "sqlite", "mysql":
	default:
		return fmt.Errorf("%w: database_config.backend %q", ErrInvalidValue, c.DatabaseConfig.Backend)
	}
	return nil
}

// Store guards a Config behind a mutex so the RPC layer and background
// services can read and update it concurrently, the same single-owner
// accessor shape the teacher used for its component registries.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  *Config
}

// Load reads config.json from path, writing Default() to disk on first
// run (file does not yet exist).
func Load(path string) (*Store, error) {
	cfg := Default()
	data, readErr := os.ReadFile(path)
	switch {
	case readErr == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidJSON, path, err)
		}
	case os.IsNotExist(readErr):
		// fresh install: persist defaults below
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, readErr)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store{path: path, cfg: cfg}
	if os.IsNotExist(readErr) {
		if err := s.persist(cfg); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Get returns a snapshot copy of the current configuration.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := *s.cfg
	return &cp
}

// Update validates and persists a new configuration, replacing the
// current one atomically on success.
func (s *Store) Update(next *Config) error {
	if err := next.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(next); err != nil {
		return err
	}
	s.cfg = next
	return nil
}

func (s *Store) persist(cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("config: create config dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("config: rename into place: %w", err)
	}
	return nil
}

// ProviderProfile is a named LLM provider preset loaded from an optional
// YAML overlay file (providers.yaml next to config.json). This keeps
// the teacher's pattern of a YAML-based provider catalog layered on top
// of the primary JSON config, scaled down to this system's single
// active-provider model.
type ProviderProfile struct {
	Type      string `yaml:"type"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
}

// LoadProviderProfiles reads an optional providers.yaml overlay. A
// missing file is not an error: it just means no named presets exist
// beyond whatever LLMConfig already holds inline.
func LoadProviderProfiles(path string) (map[string]ProviderProfile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]ProviderProfile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	data = ExpandEnv(data)
	var profiles map[string]ProviderProfile
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
	}
	return profiles, nil
}

// LoadDotEnv loads a .env file if present, matching cmd/tarsy/main.go's
// non-fatal godotenv.Load call: a missing file is a normal deployment
// (env vars set some other way), not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}
