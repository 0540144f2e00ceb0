package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"loom/internal/config"
)

func TestLoadDefaultConfigUsesEnvKeysAndExpandsPaths(t *testing.T) {
	t.Setenv("ELEVENLABS_API_KEY", "test-speech-key")
	t.Setenv("IMAGE_API_KEY", "test-image-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	// Defaults alone fail validation (no voice, no image endpoint); write
	// the minimum the daemon needs.
	configPath := filepath.Join(tempHome, "loom.toml")
	minimal := "[speech]\nvoice_id = \"narrator\"\n\n[images]\nbase_url = \"https://images.example.com/api\"\n"
	if err := os.WriteFile(configPath, []byte(minimal), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "loom", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Paths.LibraryDir != filepath.Join(tempHome, "videos") {
		t.Fatalf("unexpected library dir: %q", cfg.Paths.LibraryDir)
	}
	if cfg.Speech.APIKey != "test-speech-key" {
		t.Fatalf("expected speech key from env, got %q", cfg.Speech.APIKey)
	}
	if cfg.Images.APIKey != "test-image-key" {
		t.Fatalf("expected image key from env, got %q", cfg.Images.APIKey)
	}
	if cfg.Speech.BaseURL != config.Default().Speech.BaseURL {
		t.Fatalf("unexpected speech base url: %q", cfg.Speech.BaseURL)
	}
	if cfg.Speech.ModelID != "eleven_multilingual_v2" {
		t.Fatalf("unexpected speech model: %q", cfg.Speech.ModelID)
	}
	if cfg.Captions.Style != "word_highlight" {
		t.Fatalf("unexpected caption style: %q", cfg.Captions.Style)
	}
	if cfg.Captions.MarginV != 60 || cfg.Captions.Alignment != 2 {
		t.Fatalf("unexpected caption margins: %d %d", cfg.Captions.MarginV, cfg.Captions.Alignment)
	}
	if cfg.Render.Width != 1920 || cfg.Render.Height != 1080 || cfg.Render.FPS != 30 {
		t.Fatalf("unexpected render defaults: %dx%d@%d", cfg.Render.Width, cfg.Render.Height, cfg.Render.FPS)
	}
	if cfg.Images.PollIntervalSeconds != 5 || cfg.Images.PollMaxAttempts != 60 {
		t.Fatalf("unexpected polling defaults: %d %d", cfg.Images.PollIntervalSeconds, cfg.Images.PollMaxAttempts)
	}
	if cfg.Workflow.HeartbeatInterval != config.Default().Workflow.HeartbeatInterval {
		t.Fatalf("unexpected heartbeat interval: %d", cfg.Workflow.HeartbeatInterval)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.StagingDir, cfg.Paths.LibraryDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "loom.toml")

	type payload struct {
		Speech struct {
			APIKey  string `toml:"api_key"`
			VoiceID string `toml:"voice_id"`
			BaseURL string `toml:"base_url"`
		} `toml:"speech"`
		Images struct {
			APIKey  string `toml:"api_key"`
			BaseURL string `toml:"base_url"`
		} `toml:"images"`
		Captions struct {
			Style   string `toml:"style"`
			MarginV int    `toml:"margin_v"`
		} `toml:"captions"`
		Workflow struct {
			HeartbeatInterval int `toml:"heartbeat_interval"`
			HeartbeatTimeout  int `toml:"heartbeat_timeout"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.Speech.APIKey = "abc123"
	custom.Speech.VoiceID = "narrator"
	custom.Speech.BaseURL = "https://speech.example.com/v1/"
	custom.Images.APIKey = "img456"
	custom.Images.BaseURL = "https://images.example.com/api"
	custom.Captions.Style = "subtitle_chunks"
	custom.Captions.MarginV = 80
	custom.Workflow.HeartbeatInterval = 20
	custom.Workflow.HeartbeatTimeout = 200
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Speech.APIKey != "abc123" {
		t.Fatalf("expected speech key from file, got %q", cfg.Speech.APIKey)
	}
	if cfg.Speech.BaseURL != "https://speech.example.com/v1" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Speech.BaseURL)
	}
	if cfg.Captions.Style != "subtitle_chunks" {
		t.Fatalf("expected caption style override, got %q", cfg.Captions.Style)
	}
	if cfg.Captions.MarginV != 80 {
		t.Fatalf("expected margin override, got %d", cfg.Captions.MarginV)
	}
	if cfg.Workflow.HeartbeatInterval != 20 {
		t.Fatalf("expected heartbeat interval 20, got %d", cfg.Workflow.HeartbeatInterval)
	}
	if cfg.Workflow.HeartbeatTimeout != 200 {
		t.Fatalf("expected heartbeat timeout 200, got %d", cfg.Workflow.HeartbeatTimeout)
	}
}

func TestEnvVarFallbackForAPIKeys(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "loom.toml")

	minimal := "[speech]\nvoice_id = \"narrator\"\n\n[images]\nbase_url = \"https://images.example.com/api\"\n"
	if err := os.WriteFile(configPath, []byte(minimal), 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	t.Setenv("ELEVENLABS_API_KEY", "env-speech")
	t.Setenv("IMAGE_API_KEY", "env-image")
	t.Setenv("OPENROUTER_API_KEY", "env-llm")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Speech.APIKey != "env-speech" {
		t.Errorf("expected speech key from env, got %q", cfg.Speech.APIKey)
	}
	if cfg.Images.APIKey != "env-image" {
		t.Errorf("expected image key from env, got %q", cfg.Images.APIKey)
	}
	if cfg.LLM.APIKey != "env-llm" {
		t.Errorf("expected LLM key from env, got %q", cfg.LLM.APIKey)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[speech]") {
		t.Fatalf("sample config missing speech section: %s", contents)
	}

	// The sample must round-trip through the TOML decoder
	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}

}

func TestValidateDetectsInvalidValues(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Default()
		cfg.Speech.APIKey = "key"
		cfg.Speech.VoiceID = "narrator"
		cfg.Images.APIKey = "key"
		cfg.Images.BaseURL = "https://images.example.com/api"
		return cfg
	}

	cfg := valid()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cfg = valid()
	cfg.Speech.VoiceID = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing voice id")
	}

	cfg = valid()
	cfg.Speech.Stability = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range stability")
	}

	cfg = valid()
	cfg.Captions.Style = "karaoke"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown caption style")
	}

	cfg = valid()
	cfg.Captions.Alignment = 11
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for alignment out of numpad range")
	}

	cfg = valid()
	cfg.Render.Width = 1921
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for odd canvas width")
	}

	cfg = valid()
	cfg.Workflow.HeartbeatInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for heartbeat interval")
	}

	cfg = valid()
	cfg.Workflow.HeartbeatTimeout = cfg.Workflow.HeartbeatInterval
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when timeout <= interval")
	}
}
