package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LibraryDir string `toml:"library_dir"`
	LogDir     string `toml:"log_dir"`
}

// Speech contains configuration for the narration synthesis provider.
// The provider must return audio bytes plus a character-level alignment.
type Speech struct {
	BaseURL         string  `toml:"base_url"`
	APIKey          string  `toml:"api_key"`
	VoiceID         string  `toml:"voice_id"`
	ModelID         string  `toml:"model_id"`
	OutputFormat    string  `toml:"output_format"`
	Stability       float64 `toml:"stability"`
	SimilarityBoost float64 `toml:"similarity_boost"`
	Style           float64 `toml:"style"`
	Speed           float64 `toml:"speed"`
	UseSpeakerBoost bool    `toml:"use_speaker_boost"`
	LanguageCode    string  `toml:"language_code"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
}

// Images contains configuration for the image generation provider.
type Images struct {
	BaseURL             string  `toml:"base_url"`
	APIKey              string  `toml:"api_key"`
	Model               string  `toml:"model"`
	Width               int     `toml:"width"`
	Height              int     `toml:"height"`
	PollIntervalSeconds int     `toml:"poll_interval_seconds"`
	PollMaxAttempts     int     `toml:"poll_max_attempts"`
	PollJitter          float64 `toml:"poll_jitter"`
	TimeoutSeconds      int     `toml:"timeout_seconds"`
	ReferenceContinuity bool    `toml:"reference_continuity"`
}

// LLM contains connection settings for the text-understanding service used
// for script segmentation, visual descriptions, and caption grouping hints.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Captions contains subtitle layout configuration baked into the ASS header.
type Captions struct {
	Style     string `toml:"style"`
	FontName  string `toml:"font_name"`
	FontSize  int    `toml:"font_size"`
	MarginV   int    `toml:"margin_v"`
	Alignment int    `toml:"alignment"`
}

// Render contains video output configuration.
type Render struct {
	Width             int     `toml:"width"`
	Height            int     `toml:"height"`
	FPS               int     `toml:"fps"`
	MinSegmentSeconds float64 `toml:"min_segment_seconds"`
	Parallelism       int     `toml:"parallelism"`
}

// Notifications holds the ntfy webhook settings.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"request_timeout"`
	Narration          bool   `toml:"narration"`
	Render             bool   `toml:"render"`
	Publish            bool   `toml:"publish"`
	Queue              bool   `toml:"queue"`
	Review             bool   `toml:"review"`
	Errors             bool   `toml:"errors"`
	DedupWindowSeconds int    `toml:"dedup_window_seconds"`
}

// Workflow tunes daemon timing: polls, heartbeats, retries, API bind.
type Workflow struct {
	QueuePollInterval  int    `toml:"queue_poll_interval"`
	ErrorRetryInterval int    `toml:"error_retry_interval"`
	HeartbeatInterval  int    `toml:"heartbeat_interval"`
	HeartbeatTimeout   int    `toml:"heartbeat_timeout"`
	SkipStartupChecks  bool   `toml:"skip_startup_checks"`
	APIBind            string `toml:"api_bind"`
}

// Logging selects log format, level, and retention.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	RetentionDays  int               `toml:"retention_days"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// Config encapsulates all configuration values for Loom.
//
// Sections, one per subsystem:
//   - Paths: staging, library, and log directories
//   - Speech: narration synthesis provider and voice settings
//   - Images: image generation provider and polling policy
//   - LLM: text-understanding service connection settings
//   - Captions: subtitle style, margin, and alignment pass-throughs
//   - Render: canvas size, frame rate, and segment floor
//   - Notifications: ntfy webhook settings
//   - Workflow: daemon poll intervals, timeouts, lane tuning
//   - Logging: format, level, retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Speech        Speech        `toml:"speech"`
	Images        Images        `toml:"images"`
	LLM           LLM           `toml:"llm"`
	Captions      Captions      `toml:"captions"`
	Render        Render        `toml:"render"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath reports where Load looks for configuration when no
// explicit path is given.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/loom/config.toml")
}

// Load reads, normalizes, and validates configuration. It reports the path
// it settled on and whether a file actually existed there; callers use the
// flag to suggest `loom init` on fresh installs. Absent files are not an
// error: defaults alone must produce a working config.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		raw, err := os.ReadFile(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// resolveConfigPath picks the config file to read. An explicit path always
// wins even when missing; otherwise the user config dir is preferred over a
// loom.toml in the working directory.
func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/loom/config.toml")
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("loom.toml")
	if err != nil {
		return "", false, err
	}

	for _, candidate := range []string{defaultPath, projectPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes to. The
// library dir is attempted but not required, so a detached external drive
// does not keep the daemon from starting.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for rendering.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// expandPath resolves a leading ~ against the home directory and makes the
// result absolute. Empty stays empty so optional path fields pass through.
func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	switch {
	case pathValue == "~":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		pathValue = home
	case strings.HasPrefix(pathValue, "~/") || strings.HasPrefix(pathValue, `~\`):
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		pathValue = filepath.Join(home, pathValue[2:])
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the embedded sample configuration to path, creating
// parent directories as needed.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig is the resolved text-service settings handed to clients.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the shared LLM connection settings with whitespace trimmed.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}
