package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"videopipe/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("OPENROUTER_API_KEY", "router-key")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "videopipe", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7491" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Metadata.APIKey != "router-key" {
		t.Fatalf("expected metadata key from env, got %q", cfg.Metadata.APIKey)
	}
	if cfg.Metadata.Enabled {
		t.Fatal("expected metadata disabled by default")
	}
	if cfg.Categories.DefaultLabel != "general" {
		t.Fatalf("unexpected default label %q", cfg.Categories.DefaultLabel)
	}
	if cfg.Workflow.MaxAttempts != 3 {
		t.Fatalf("unexpected max attempts %d", cfg.Workflow.MaxAttempts)
	}
	if cfg.StorageConfigured() {
		t.Fatal("expected storage to be unconfigured by default")
	}
	if got := cfg.QueueDBPath(); got != filepath.Join(cfg.Paths.LogDir, "jobs.db") {
		t.Fatalf("unexpected queue db path %q", got)
	}
}

func TestLoadCustomPathNormalizesStorage(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	custom := config.Default()
	custom.Paths.StagingDir = "~/vp/staging"
	custom.Storage.Endpoint = "https://acct.r2.cloudflarestorage.com/"
	custom.Storage.Bucket = "videos-bucket"
	custom.Storage.AccessKey = "ak"
	custom.Storage.SecretKey = "sk"
	custom.Storage.UseSSL = false
	custom.Storage.PublicDomain = "https://pub.example.dev/"
	custom.Transcode.AllowedExtensions = []string{"MP4", " .MOV "}

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(tempHome, "custom.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected custom path to resolve, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.StagingDir != filepath.Join(tempHome, "vp", "staging") {
		t.Fatalf("unexpected staging dir %q", cfg.Paths.StagingDir)
	}
	if cfg.Storage.Endpoint != "acct.r2.cloudflarestorage.com" {
		t.Fatalf("unexpected endpoint %q", cfg.Storage.Endpoint)
	}
	if !cfg.Storage.UseSSL {
		t.Fatal("expected https endpoint to force use_ssl")
	}
	if cfg.Storage.PublicDomain != "https://pub.example.dev" {
		t.Fatalf("unexpected public domain %q", cfg.Storage.PublicDomain)
	}
	if strings.Join(cfg.Transcode.AllowedExtensions, ",") != ".mp4,.mov" {
		t.Fatalf("unexpected extensions %v", cfg.Transcode.AllowedExtensions)
	}
}

func TestEnvFallbackFillsStorageCredentials(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("VIDEOPIPE_STORAGE_ENDPOINT", "minio.local:9000")
	t.Setenv("VIDEOPIPE_STORAGE_BUCKET", "media")
	t.Setenv("VIDEOPIPE_STORAGE_ACCESS_KEY", "env-ak")
	t.Setenv("VIDEOPIPE_STORAGE_SECRET_KEY", "env-sk")
	t.Setenv("VIDEOPIPE_PUBLIC_DOMAIN", "https://cdn.example.com")

	custom := config.Default()
	custom.Storage.AccessKey = "file-ak"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(tempHome, "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.AccessKey != "file-ak" {
		t.Fatalf("expected file value to win over env, got %q", cfg.Storage.AccessKey)
	}
	if cfg.Storage.SecretKey != "env-sk" {
		t.Fatalf("expected secret from env, got %q", cfg.Storage.SecretKey)
	}
	if !cfg.StorageConfigured() {
		t.Fatal("expected storage to be configured from env")
	}
}

func TestDotEnvNextToConfigIsLoaded(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("VIDEOPIPE_REDIS_ADDR", "")
	os.Unsetenv("VIDEOPIPE_REDIS_ADDR")

	dir := filepath.Join(tempHome, "cfg")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("VIDEOPIPE_REDIS_ADDR=127.0.0.1:6380\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("VIDEOPIPE_REDIS_ADDR") })

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Events.RedisAddr != "127.0.0.1:6380" {
		t.Fatalf("expected redis addr from .env, got %q", cfg.Events.RedisAddr)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected level %q", cfg.Logging.Level)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}
	if cfg.Workflow.MaxAttempts != 3 {
		t.Fatalf("unexpected sample max attempts %d", cfg.Workflow.MaxAttempts)
	}
	if cfg.Storage.SecretKey != "" {
		t.Fatal("sample config must not ship credentials")
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"workers", func(c *config.Config) { c.Workflow.Workers = 0 }, "workflow.workers"},
		{"heartbeat", func(c *config.Config) { c.Workflow.HeartbeatTimeout = c.Workflow.HeartbeatInterval }, "heartbeat_timeout"},
		{"retry delays", func(c *config.Config) { c.Workflow.RetryMaxDelayMS = 1; c.Workflow.RetryBaseDelayMS = 5 }, "retry_max_delay_ms"},
		{"label separator", func(c *config.Config) { c.Categories.DefaultLabel = "a/b" }, "path separators"},
		{"extra label", func(c *config.Config) { c.Categories.Extra = map[string]string{"x": " "} }, "categories.extra.x"},
		{"metadata key", func(c *config.Config) { c.Metadata.Enabled = true; c.Metadata.APIKey = "" }, "metadata.api_key"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"segment extension", func(c *config.Config) { c.Transcode.AllowedExtensions = []string{".mp4", ".ts"} }, ".ts"},
		{"manifest extension", func(c *config.Config) { c.Transcode.AllowedExtensions = []string{".m3u8"} }, ".m3u8"},
		{"storage creds", func(c *config.Config) {
			c.Storage.Endpoint = "s3.local"
			c.Storage.Bucket = "b"
			c.Storage.PublicDomain = "https://x"
		}, "storage.access_key"},
		{"storage endpoint", func(c *config.Config) {
			c.Storage.Endpoint = "s3.local/path"
			c.Storage.Bucket = "b"
		}, "storage.endpoint"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("unexpected error %v, want substring %q", err, tc.want)
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadRejectsHLSSourceExtensions(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	custom := config.Default()
	custom.Transcode.AllowedExtensions = []string{".mp4", "TS", ".m3u8"}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(tempHome, "hls.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err = config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "transcode.allowed_extensions") {
		t.Fatalf("expected allowed_extensions error, got %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StagingDir, cfg.Paths.WorkDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}
