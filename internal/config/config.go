package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	WorkDir    string `toml:"work_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
}

// Storage contains the S3-compatible object storage settings (R2, S3, MinIO).
type Storage struct {
	Endpoint       string `toml:"endpoint"`
	Bucket         string `toml:"bucket"`
	Region         string `toml:"region"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	PublicDomain   string `toml:"public_domain"`
	ObjectAttempts int    `toml:"object_attempts"`
}

// Transcode contains external encoder binaries and accepted source types.
type Transcode struct {
	FFmpegBinary      string   `toml:"ffmpeg_binary"`
	FFprobeBinary     string   `toml:"ffprobe_binary"`
	AllowedExtensions []string `toml:"allowed_extensions"`
}

// Workflow contains worker pool sizing, polling intervals, retry policy, and phase timeouts.
// Intervals and timeouts are in seconds unless the field name says otherwise.
type Workflow struct {
	Workers            int `toml:"workers"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
	CancelPollInterval int `toml:"cancel_poll_interval"`
	MaxAttempts        int `toml:"max_attempts"`
	RetryBaseDelayMS   int `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS    int `toml:"retry_max_delay_ms"`
	TranscodeTimeout   int `toml:"transcode_timeout"`
	UploadTimeout      int `toml:"upload_timeout"`
	FinalizeTimeout    int `toml:"finalize_timeout"`
	WorkDirMaxAgeHours int `toml:"work_dir_max_age_hours"`
}

// Categories configures folder label resolution.
type Categories struct {
	DefaultLabel string            `toml:"default_label"`
	Extra        map[string]string `toml:"extra"`
}

// Metadata configures the best-effort title/description/tags suggester.
type Metadata struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Published      bool   `toml:"published"`
	Errors         bool   `toml:"errors"`
}

// Events configures the optional Redis mirror of progress events.
type Events struct {
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Channel       string `toml:"channel"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for videopipe.
//
// Configuration sections by subsystem:
//   - Paths: staging, work, and log directories plus the API bind address
//   - Storage: object storage endpoint, bucket, credentials, public domain
//   - Transcode: ffmpeg/ffprobe binaries and accepted source extensions
//   - Workflow: worker pool, polling, retry policy, and phase timeouts
//   - Categories: default folder label and additive category ids
//   - Metadata: LLM-backed metadata suggestions
//   - Notifications: ntfy push notification settings
//   - Events: Redis mirror for progress events
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Storage       Storage       `toml:"storage"`
	Transcode     Transcode     `toml:"transcode"`
	Workflow      Workflow      `toml:"workflow"`
	Categories    Categories    `toml:"categories"`
	Metadata      Metadata      `toml:"metadata"`
	Notifications Notifications `toml:"notifications"`
	Events        Events        `toml:"events"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultSampleConfigDisplayPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	loadEnvFiles(resolvedPath)

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadEnvFiles reads .env files next to the working directory and the config
// file. Variables already present in the environment win.
func loadEnvFiles(configPath string) {
	candidates := []string{".env"}
	if dir := filepath.Dir(configPath); configPath != "" && dir != "" {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err != nil || info.IsDir() {
			continue
		}
		_ = godotenv.Load(candidate)
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("videopipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the location of the job database.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.LogDir, "jobs.db")
}

// PollInterval returns the idle wait between claim attempts.
func (w Workflow) PollInterval() time.Duration {
	return time.Duration(w.QueuePollInterval) * time.Second
}

// ErrorBackoff returns the wait after a store failure.
func (w Workflow) ErrorBackoff() time.Duration {
	return time.Duration(w.ErrorRetryInterval) * time.Second
}

// Heartbeat returns the lease extension cadence.
func (w Workflow) Heartbeat() time.Duration {
	return time.Duration(w.HeartbeatInterval) * time.Second
}

// Lease returns how long a claim stays valid without a heartbeat.
func (w Workflow) Lease() time.Duration {
	return time.Duration(w.HeartbeatTimeout) * time.Second
}

// CancelPoll returns how often in-flight jobs check for external deletion.
func (w Workflow) CancelPoll() time.Duration {
	return time.Duration(w.CancelPollInterval) * time.Second
}

// RetryBaseDelay returns the first backoff delay of the phase retry policy.
func (w Workflow) RetryBaseDelay() time.Duration {
	return time.Duration(w.RetryBaseDelayMS) * time.Millisecond
}

// RetryMaxDelay returns the backoff ceiling of the phase retry policy.
func (w Workflow) RetryMaxDelay() time.Duration {
	return time.Duration(w.RetryMaxDelayMS) * time.Millisecond
}

// PhaseTimeouts returns the transcode, upload, and finalize limits.
func (w Workflow) PhaseTimeouts() (transcode, upload, finalize time.Duration) {
	return time.Duration(w.TranscodeTimeout) * time.Second,
		time.Duration(w.UploadTimeout) * time.Second,
		time.Duration(w.FinalizeTimeout) * time.Second
}

// StorageConfigured reports whether uploads can reach an object store.
func (c *Config) StorageConfigured() bool {
	return strings.TrimSpace(c.Storage.Endpoint) != "" && strings.TrimSpace(c.Storage.Bucket) != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
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
