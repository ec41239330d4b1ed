package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"videopipe/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check the videopipe configuration",
	}
	configCmd.AddCommand(newConfigInitCommand(ctx), newConfigValidateCommand(ctx))
	return configCmd
}

// sampleTarget picks where `config init` writes: --path, then the global
// --config flag, then the default location.
func sampleTarget(ctx *commandContext, pathFlag string) (string, error) {
	target := strings.TrimSpace(pathFlag)
	if target == "" {
		target = ctx.configPath()
	}
	if target == "" {
		return config.DefaultConfigPath()
	}
	return config.ExpandPath(target)
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	var pathFlag string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := sampleTarget(ctx, pathFlag)
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}
			if !overwrite {
				_, statErr := os.Stat(target)
				switch {
				case statErr == nil:
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				case !errors.Is(statErr, fs.ErrNotExist):
					return fmt.Errorf("check config path: %w", statErr)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintln(out, "  1. Fill in [storage] or put VIDEOPIPE_STORAGE_* values in a .env file beside it")
			fmt.Fprintln(out, "  2. Optionally set notifications.ntfy_topic and metadata.api_key")
			fmt.Fprintf(out, "  3. Run `videopipe config validate -c %s`, then start videopiped\n", target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&pathFlag, "path", "p", "", "Where to write the file (defaults to --config or the standard location)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and report the effective settings",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintf(out, "Storage configured: %s\n", yesNo(cfg.StorageConfigured()))
			fmt.Fprintf(out, "Metadata suggestions: %s\n", yesNo(cfg.Metadata.Enabled))
			fmt.Fprint(out, renderTable(
				[]string{"Setting", "Value"},
				effectiveSettings(cfg),
				[]columnAlignment{alignLeft, alignLeft},
			))
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func effectiveSettings(cfg *config.Config) [][]string {
	bucket := "-"
	if cfg.StorageConfigured() {
		bucket = cfg.Storage.Bucket + " @ " + cfg.Storage.Endpoint
	}
	return [][]string{
		{"API bind", cfg.Paths.APIBind},
		{"Staging dir", cfg.Paths.StagingDir},
		{"Work dir", cfg.Paths.WorkDir},
		{"Log dir", cfg.Paths.LogDir},
		{"Bucket", bucket},
		{"Public domain", valueOrDash(cfg.Storage.PublicDomain)},
		{"Source types", strings.Join(cfg.Transcode.AllowedExtensions, " ")},
		{"Workers", strconv.Itoa(cfg.Workflow.Workers)},
		{"Max attempts", strconv.Itoa(cfg.Workflow.MaxAttempts)},
		{"Default folder", cfg.Categories.DefaultLabel},
		{"ntfy topic", valueOrDash(cfg.Notifications.NtfyTopic)},
	}
}
