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
	c.normalizeStorage()
	c.normalizeTranscode()
	c.normalizeCategories()
	c.normalizeMetadata()
	c.normalizeEvents()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeStorage() {
	envFallback(&c.Storage.Endpoint, "VIDEOPIPE_STORAGE_ENDPOINT")
	envFallback(&c.Storage.Bucket, "VIDEOPIPE_STORAGE_BUCKET")
	envFallback(&c.Storage.AccessKey, "VIDEOPIPE_STORAGE_ACCESS_KEY")
	envFallback(&c.Storage.SecretKey, "VIDEOPIPE_STORAGE_SECRET_KEY")
	envFallback(&c.Storage.PublicDomain, "VIDEOPIPE_PUBLIC_DOMAIN")

	endpoint := strings.TrimSpace(c.Storage.Endpoint)
	// minio-go expects host[:port]; the scheme is expressed through use_ssl.
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = strings.TrimPrefix(endpoint, "https://")
		c.Storage.UseSSL = true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = strings.TrimPrefix(endpoint, "http://")
		c.Storage.UseSSL = false
	}
	c.Storage.Endpoint = strings.TrimRight(endpoint, "/")
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = defaultStorageRegion
	}
	c.Storage.PublicDomain = strings.TrimRight(strings.TrimSpace(c.Storage.PublicDomain), "/")
	if c.Storage.ObjectAttempts == 0 {
		c.Storage.ObjectAttempts = defaultStorageObjectAttempts
	}
}

func (c *Config) normalizeTranscode() {
	c.Transcode.FFmpegBinary = strings.TrimSpace(c.Transcode.FFmpegBinary)
	if c.Transcode.FFmpegBinary == "" {
		c.Transcode.FFmpegBinary = defaultFFmpegBinary
	}
	c.Transcode.FFprobeBinary = strings.TrimSpace(c.Transcode.FFprobeBinary)
	if c.Transcode.FFprobeBinary == "" {
		c.Transcode.FFprobeBinary = defaultFFprobeBinary
	}
	if len(c.Transcode.AllowedExtensions) == 0 {
		c.Transcode.AllowedExtensions = append([]string(nil), defaultAllowedExtensions...)
	}
	normalized := make([]string, 0, len(c.Transcode.AllowedExtensions))
	for _, ext := range c.Transcode.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	c.Transcode.AllowedExtensions = normalized
}

func (c *Config) normalizeCategories() {
	c.Categories.DefaultLabel = strings.TrimSpace(c.Categories.DefaultLabel)
	if c.Categories.DefaultLabel == "" {
		c.Categories.DefaultLabel = defaultCategoryLabel
	}
}

func (c *Config) normalizeMetadata() {
	c.Metadata.APIKey = strings.TrimSpace(c.Metadata.APIKey)
	if c.Metadata.APIKey == "" {
		if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.Metadata.APIKey = strings.TrimSpace(value)
		}
	}
	c.Metadata.BaseURL = strings.TrimSpace(c.Metadata.BaseURL)
	if c.Metadata.BaseURL == "" {
		c.Metadata.BaseURL = defaultMetadataBaseURL
	}
	c.Metadata.Model = strings.TrimSpace(c.Metadata.Model)
	if c.Metadata.Model == "" {
		c.Metadata.Model = defaultMetadataModel
	}
	if c.Metadata.TimeoutSeconds <= 0 {
		c.Metadata.TimeoutSeconds = defaultMetadataTimeoutSeconds
	}
}

func (c *Config) normalizeEvents() {
	envFallback(&c.Events.RedisAddr, "VIDEOPIPE_REDIS_ADDR")
	c.Events.RedisAddr = strings.TrimSpace(c.Events.RedisAddr)
	c.Events.Channel = strings.TrimSpace(c.Events.Channel)
	if c.Events.Channel == "" {
		c.Events.Channel = defaultEventsChannel
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func envFallback(target *string, key string) {
	if strings.TrimSpace(*target) != "" {
		return
	}
	if value, ok := os.LookupEnv(key); ok {
		*target = strings.TrimSpace(value)
	}
}
