package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSpeech()
	c.normalizeImages()
	c.normalizeLLM()
	c.normalizeCaptions()
	c.normalizeRender()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSpeech() {
	c.Speech.BaseURL = strings.TrimSpace(c.Speech.BaseURL)
	if c.Speech.BaseURL == "" {
		c.Speech.BaseURL = defaultSpeechBaseURL
	}
	c.Speech.BaseURL = strings.TrimRight(c.Speech.BaseURL, "/")
	c.Speech.APIKey = strings.TrimSpace(c.Speech.APIKey)
	if c.Speech.APIKey == "" {
		if value, ok := os.LookupEnv("ELEVENLABS_API_KEY"); ok {
			c.Speech.APIKey = strings.TrimSpace(value)
		}
	}
	c.Speech.VoiceID = strings.TrimSpace(c.Speech.VoiceID)
	c.Speech.ModelID = strings.TrimSpace(c.Speech.ModelID)
	if c.Speech.ModelID == "" {
		c.Speech.ModelID = defaultSpeechModelID
	}
	c.Speech.OutputFormat = strings.TrimSpace(c.Speech.OutputFormat)
	if c.Speech.OutputFormat == "" {
		c.Speech.OutputFormat = defaultSpeechOutputFormat
	}
	if c.Speech.Speed <= 0 {
		c.Speech.Speed = 1.0
	}
	if c.Speech.TimeoutSeconds <= 0 {
		c.Speech.TimeoutSeconds = defaultSpeechTimeout
	}
	c.Speech.LanguageCode = strings.TrimSpace(c.Speech.LanguageCode)
}

func (c *Config) normalizeImages() {
	c.Images.BaseURL = strings.TrimRight(strings.TrimSpace(c.Images.BaseURL), "/")
	c.Images.APIKey = strings.TrimSpace(c.Images.APIKey)
	if c.Images.APIKey == "" {
		if value, ok := os.LookupEnv("IMAGE_API_KEY"); ok {
			c.Images.APIKey = strings.TrimSpace(value)
		}
	}
	c.Images.Model = strings.TrimSpace(c.Images.Model)
	if c.Images.Width <= 0 {
		c.Images.Width = defaultImagesWidth
	}
	if c.Images.Height <= 0 {
		c.Images.Height = defaultImagesHeight
	}
	if c.Images.PollIntervalSeconds <= 0 {
		c.Images.PollIntervalSeconds = defaultImagesPollInterval
	}
	if c.Images.PollMaxAttempts <= 0 {
		c.Images.PollMaxAttempts = defaultImagesPollAttempts
	}
	if c.Images.PollJitter < 0 {
		c.Images.PollJitter = 0
	}
	if c.Images.TimeoutSeconds <= 0 {
		c.Images.TimeoutSeconds = defaultImagesTimeout
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
}

func (c *Config) normalizeCaptions() {
	c.Captions.Style = strings.ToLower(strings.TrimSpace(c.Captions.Style))
	if c.Captions.Style == "" {
		c.Captions.Style = defaultCaptionStyle
	}
	c.Captions.FontName = strings.TrimSpace(c.Captions.FontName)
	if c.Captions.FontName == "" {
		c.Captions.FontName = defaultCaptionFontName
	}
	if c.Captions.FontSize <= 0 {
		c.Captions.FontSize = defaultCaptionFontSize
	}
	if c.Captions.MarginV < 0 {
		c.Captions.MarginV = defaultCaptionMarginV
	}
	if c.Captions.Alignment <= 0 {
		c.Captions.Alignment = defaultCaptionAlignment
	}
}

func (c *Config) normalizeRender() {
	if c.Render.Width <= 0 {
		c.Render.Width = defaultRenderWidth
	}
	if c.Render.Height <= 0 {
		c.Render.Height = defaultRenderHeight
	}
	if c.Render.FPS <= 0 {
		c.Render.FPS = defaultRenderFPS
	}
	if c.Render.MinSegmentSeconds <= 0 {
		c.Render.MinSegmentSeconds = defaultMinSegmentLength
	}
	if c.Render.Parallelism < 0 {
		c.Render.Parallelism = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
