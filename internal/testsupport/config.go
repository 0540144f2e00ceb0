package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"loom/internal/config"
)

// ConfigOption mutates the generated test config before validation.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig builds a validated config rooted in t.TempDir, with every
// path isolated per test; opts adjust it before validation runs.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LibraryDir = filepath.Join(base, "library")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Speech.APIKey = "test-speech-key"
	cfgVal.Speech.VoiceID = "test-voice"
	cfgVal.Images.APIKey = "test-image-key"
	cfgVal.Images.BaseURL = "https://images.invalid/api"
	cfgVal.LLM.APIKey = "test-llm-key"
	cfgVal.Workflow.QueuePollInterval = 0
	cfgVal.Workflow.SkipStartupChecks = true

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	// Tests expect the directories to exist, the same guarantee the CLI
	// bootstrap gives the daemon.
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure config directories: %v", err)
	}

	return builder.cfg
}

// WithCaptionStyle sets the caption layout on the test config.
func WithCaptionStyle(style string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Captions.Style = style
	}
}

// WithoutLLM clears the LLM credentials so deterministic fallbacks run.
func WithoutLLM() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.APIKey = ""
	}
}

// WithStubbedBinaries drops no-op shell scripts for the named binaries into
// a directory prepended to PATH; with no names, ffmpeg and ffprobe are
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir recovers the temp root a NewConfig-built config points into.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
