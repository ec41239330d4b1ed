package config

const (
	defaultStagingDir              = "~/.local/share/videopipe/staging"
	defaultWorkDir                 = "~/.local/share/videopipe/work"
	defaultLogDir                  = "~/.local/share/videopipe/logs"
	defaultAPIBind                 = "127.0.0.1:7491"
	defaultLogRetentionDays        = 30
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultFFmpegBinary            = "ffmpeg"
	defaultFFprobeBinary           = "ffprobe"
	defaultStorageRegion           = "auto"
	defaultStorageObjectAttempts   = 3
	defaultCategoryLabel           = "general"
	defaultWorkflowWorkers         = 2
	defaultQueuePollInterval       = 5
	defaultErrorRetryInterval      = 10
	defaultHeartbeatInterval       = 15
	defaultHeartbeatTimeout        = 120
	defaultCancelPollInterval      = 2
	defaultMaxAttempts             = 3
	defaultRetryBaseDelayMillis    = 2000
	defaultRetryMaxDelayMillis     = 30000
	defaultTranscodeTimeout        = 3600
	defaultUploadTimeout           = 1800
	defaultFinalizeTimeout         = 120
	defaultWorkDirMaxAgeHours      = 24
	defaultMetadataBaseURL         = "https://openrouter.ai/api/v1/chat/completions"
	defaultMetadataModel           = "google/gemini-2.5-flash"
	defaultMetadataTimeoutSeconds  = 30
	defaultNotifyRequestTimeout    = 10
	defaultEventsChannel           = "videopipe:events"
	defaultSampleConfigDisplayPath = "~/.config/videopipe/config.toml"
)

var defaultAllowedExtensions = []string{".mp4", ".mov", ".mkv", ".webm", ".avi", ".m4v"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			WorkDir:    defaultWorkDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Storage: Storage{
			Region:         defaultStorageRegion,
			UseSSL:         true,
			ObjectAttempts: defaultStorageObjectAttempts,
		},
		Transcode: Transcode{
			FFmpegBinary:      defaultFFmpegBinary,
			FFprobeBinary:     defaultFFprobeBinary,
			AllowedExtensions: append([]string(nil), defaultAllowedExtensions...),
		},
		Workflow: Workflow{
			Workers:            defaultWorkflowWorkers,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			CancelPollInterval: defaultCancelPollInterval,
			MaxAttempts:        defaultMaxAttempts,
			RetryBaseDelayMS:   defaultRetryBaseDelayMillis,
			RetryMaxDelayMS:    defaultRetryMaxDelayMillis,
			TranscodeTimeout:   defaultTranscodeTimeout,
			UploadTimeout:      defaultUploadTimeout,
			FinalizeTimeout:    defaultFinalizeTimeout,
			WorkDirMaxAgeHours: defaultWorkDirMaxAgeHours,
		},
		Categories: Categories{
			DefaultLabel: defaultCategoryLabel,
		},
		Metadata: Metadata{
			BaseURL:        defaultMetadataBaseURL,
			Model:          defaultMetadataModel,
			TimeoutSeconds: defaultMetadataTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Published:      true,
			Errors:         true,
		},
		Events: Events{
			Channel: defaultEventsChannel,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
