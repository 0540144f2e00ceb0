package config

import (
	"errors"
	"fmt"
	"strings"
)

// CaptionStyles lists the supported caption layouts.
var CaptionStyles = []string{"word_highlight", "subtitle_chunks"}

// Validate rejects configs that would fail at runtime, naming the field.
func (c *Config) Validate() error {
	if err := c.validateSpeech(); err != nil {
		return err
	}
	if err := c.validateImages(); err != nil {
		return err
	}
	if err := c.validateCaptions(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSpeech() error {
	if c.Speech.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/loom/config.toml"
		}
		return fmt.Errorf("speech.api_key is required. Set ELEVENLABS_API_KEY env var or edit %s (create with 'loom config init')", defaultPath)
	}
	if c.Speech.VoiceID == "" {
		return errors.New("speech.voice_id must be set")
	}
	if c.Speech.Stability < 0 || c.Speech.Stability > 1 {
		return errors.New("speech.stability must be between 0 and 1")
	}
	if c.Speech.SimilarityBoost < 0 || c.Speech.SimilarityBoost > 1 {
		return errors.New("speech.similarity_boost must be between 0 and 1")
	}
	if c.Speech.Style < 0 || c.Speech.Style > 1 {
		return errors.New("speech.style must be between 0 and 1")
	}
	if c.Speech.Speed < 0.5 || c.Speech.Speed > 2 {
		return errors.New("speech.speed must be between 0.5 and 2")
	}
	return nil
}

func (c *Config) validateImages() error {
	if strings.TrimSpace(c.Images.BaseURL) == "" {
		return errors.New("images.base_url must be set")
	}
	if c.Images.APIKey == "" {
		return errors.New("images.api_key is required. Set IMAGE_API_KEY env var or edit the config file")
	}
	if c.Images.PollJitter > 1 {
		return errors.New("images.poll_jitter must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateCaptions() error {
	for _, style := range CaptionStyles {
		if c.Captions.Style == style {
			if c.Captions.Alignment < 1 || c.Captions.Alignment > 9 {
				return errors.New("captions.alignment must be between 1 and 9 (numpad layout)")
			}
			return nil
		}
	}
	return fmt.Errorf("captions.style must be one of %s", strings.Join(CaptionStyles, ", "))
}

func (c *Config) validateRender() error {
	if c.Render.Width%2 != 0 || c.Render.Height%2 != 0 {
		return errors.New("render.width and render.height must be even (yuv420p requirement)")
	}
	if c.Render.FPS > 120 {
		return errors.New("render.fps must be 120 or less")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"speech.timeout_seconds":        c.Speech.TimeoutSeconds,
		"images.timeout_seconds":        c.Images.TimeoutSeconds,
		"llm.timeout_seconds":           c.LLM.TimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.DedupWindowSeconds < 0 {
		return errors.New("notifications.dedup_window_seconds must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
