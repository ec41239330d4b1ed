package config

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := c.validateCategories(); err != nil {
		return err
	}
	if err := c.validateMetadata(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.workers":                c.Workflow.Workers,
		"workflow.queue_poll_interval":    c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval":   c.Workflow.ErrorRetryInterval,
		"workflow.cancel_poll_interval":   c.Workflow.CancelPollInterval,
		"workflow.max_attempts":           c.Workflow.MaxAttempts,
		"workflow.transcode_timeout":      c.Workflow.TranscodeTimeout,
		"workflow.upload_timeout":         c.Workflow.UploadTimeout,
		"workflow.finalize_timeout":       c.Workflow.FinalizeTimeout,
		"workflow.work_dir_max_age_hours": c.Workflow.WorkDirMaxAgeHours,
		"notifications.request_timeout":   c.Notifications.RequestTimeout,
		"storage.object_attempts":         c.Storage.ObjectAttempts,
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
	if c.Workflow.RetryBaseDelayMS < 0 {
		return errors.New("workflow.retry_base_delay_ms must be >= 0")
	}
	if c.Workflow.RetryMaxDelayMS < c.Workflow.RetryBaseDelayMS {
		return errors.New("workflow.retry_max_delay_ms must be >= workflow.retry_base_delay_ms")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.StorageConfigured() {
		// Storage may be unset for CLI-only usage; the daemon checks StorageConfigured before starting uploads.
		return nil
	}
	if strings.Contains(c.Storage.Endpoint, "/") {
		return fmt.Errorf("storage.endpoint must be host[:port], got %q", c.Storage.Endpoint)
	}
	if strings.TrimSpace(c.Storage.AccessKey) == "" || strings.TrimSpace(c.Storage.SecretKey) == "" {
		return errors.New("storage.access_key and storage.secret_key must be set (or VIDEOPIPE_STORAGE_ACCESS_KEY / VIDEOPIPE_STORAGE_SECRET_KEY)")
	}
	if c.Storage.PublicDomain == "" {
		return errors.New("storage.public_domain must be set when storage is configured")
	}
	return nil
}

// OutputExtensions are the extensions of the objects a published job
// consists of. Sources may not share them.
var OutputExtensions = []string{".m3u8", ".ts"}

func (c *Config) validateTranscode() error {
	if len(c.Transcode.AllowedExtensions) == 0 {
		return errors.New("transcode.allowed_extensions must list at least one extension")
	}
	for _, ext := range c.Transcode.AllowedExtensions {
		for _, reserved := range OutputExtensions {
			if strings.EqualFold(ext, reserved) {
				return fmt.Errorf("transcode.allowed_extensions must not include %s; it is used for published HLS objects", ext)
			}
		}
	}
	return nil
}

func (c *Config) validateCategories() error {
	if err := validateLabel("categories.default_label", c.Categories.DefaultLabel); err != nil {
		return err
	}
	for id, label := range c.Categories.Extra {
		if strings.TrimSpace(id) == "" {
			return errors.New("categories.extra contains an empty id")
		}
		if err := validateLabel(fmt.Sprintf("categories.extra.%s", id), label); err != nil {
			return err
		}
	}
	return nil
}

func validateLabel(key, label string) error {
	if strings.TrimSpace(label) == "" {
		return fmt.Errorf("%s must not be empty", key)
	}
	if strings.ContainsAny(label, "/\\") {
		return fmt.Errorf("%s must not contain path separators", key)
	}
	for _, r := range label {
		if unicode.IsControl(r) {
			return fmt.Errorf("%s must not contain control characters", key)
		}
	}
	return nil
}

func (c *Config) validateMetadata() error {
	if c.Metadata.Enabled && c.Metadata.APIKey == "" {
		return errors.New("metadata.api_key must be set when metadata.enabled is true (or set OPENROUTER_API_KEY)")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
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
