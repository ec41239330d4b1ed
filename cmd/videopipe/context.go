package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"videopipe/internal/api"
	"videopipe/internal/config"
	"videopipe/internal/jobs"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) apiAddress() string {
	if c.apiFlag != nil {
		if flag := strings.TrimSpace(*c.apiFlag); flag != "" {
			return flag
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil || cfg == nil {
		return ""
	}
	return cfg.Paths.APIBind
}

func (c *commandContext) newClient(httpClient *http.Client) (*api.Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: api.DefaultTimeout}
	}
	return api.NewClient(c.apiAddress(), httpClient)
}

// withClient runs fn against the daemon and rewrites connection failures
// into a hint to start it.
func (c *commandContext) withClient(fn func(*api.Client) error) error {
	client, err := c.newClient(nil)
	if err != nil {
		return err
	}
	return c.wrapDialError(fn(client))
}

func (c *commandContext) wrapDialError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("daemon not reachable at %s; start it with `videopipe daemon` or videopiped", c.apiAddress())
	}
	return err
}

// withJobs prefers the daemon and falls back to the job database for
// read-only commands.
func (c *commandContext) withJobs(cmd *cobra.Command, fn func(jobsAPI) error) error {
	client, err := c.newClient(nil)
	if err == nil && daemonReachable(cmd.Context(), client) {
		return fn(&jobsClientAdapter{client: client})
	}

	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := jobs.Open(cfg)
	if err != nil {
		return fmt.Errorf("open job database: %w", err)
	}
	defer store.Close()
	return fn(&jobsStoreAdapter{store: store})
}

func daemonReachable(ctx context.Context, client *api.Client) bool {
	if client == nil {
		return false
	}
	_, err := client.Status(ctx)
	return err == nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
