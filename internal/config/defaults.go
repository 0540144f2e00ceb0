package config

const (
	defaultStagingDir                = "~/.local/share/loom/staging"
	defaultLibraryDir                = "~/videos"
	defaultLogDir                    = "~/.local/share/loom/logs"
	defaultLogRetentionDays          = 60
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultWorkflowHeartbeatInterval = 15
	defaultWorkflowHeartbeatTimeout  = 120
	defaultNotifyDedupWindowSeconds  = 600

	defaultSpeechBaseURL      = "https://api.elevenlabs.io/v1"
	defaultSpeechModelID      = "eleven_multilingual_v2"
	defaultSpeechOutputFormat = "mp3_44100_128"
	defaultSpeechTimeout      = 120

	defaultImagesPollInterval = 5
	defaultImagesPollAttempts = 60
	defaultImagesPollJitter   = 0.2
	defaultImagesTimeout      = 60
	defaultImagesWidth        = 1920
	defaultImagesHeight       = 1080

	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "google/gemini-3-flash-preview"
	defaultLLMTitle          = "Loom Narration Planner"
	defaultLLMTimeoutSeconds = 60

	defaultCaptionStyle     = "word_highlight"
	defaultCaptionFontName  = "Arial"
	defaultCaptionFontSize  = 64
	defaultCaptionMarginV   = 60
	defaultCaptionAlignment = 2

	defaultRenderWidth      = 1920
	defaultRenderHeight     = 1080
	defaultRenderFPS        = 30
	defaultMinSegmentLength = 0.1
)

// Default builds the config the sample file documents.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LibraryDir: defaultLibraryDir,
			LogDir:     defaultLogDir,
		},
		Speech: Speech{
			BaseURL:         defaultSpeechBaseURL,
			ModelID:         defaultSpeechModelID,
			OutputFormat:    defaultSpeechOutputFormat,
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Style:           0,
			Speed:           1.0,
			UseSpeakerBoost: true,
			TimeoutSeconds:  defaultSpeechTimeout,
		},
		Images: Images{
			Width:               defaultImagesWidth,
			Height:              defaultImagesHeight,
			PollIntervalSeconds: defaultImagesPollInterval,
			PollMaxAttempts:     defaultImagesPollAttempts,
			PollJitter:          defaultImagesPollJitter,
			TimeoutSeconds:      defaultImagesTimeout,
			ReferenceContinuity: true,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Captions: Captions{
			Style:     defaultCaptionStyle,
			FontName:  defaultCaptionFontName,
			FontSize:  defaultCaptionFontSize,
			MarginV:   defaultCaptionMarginV,
			Alignment: defaultCaptionAlignment,
		},
		Render: Render{
			Width:             defaultRenderWidth,
			Height:            defaultRenderHeight,
			FPS:               defaultRenderFPS,
			MinSegmentSeconds: defaultMinSegmentLength,
		},
		Notifications: Notifications{
			RequestTimeout:     10,
			Narration:          true,
			Render:             true,
			Publish:            true,
			Queue:              true,
			Review:             true,
			Errors:             true,
			DedupWindowSeconds: defaultNotifyDedupWindowSeconds,
		},
		Workflow: Workflow{
			QueuePollInterval:  5,
			ErrorRetryInterval: 10,
			HeartbeatInterval:  defaultWorkflowHeartbeatInterval,
			HeartbeatTimeout:   defaultWorkflowHeartbeatTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
