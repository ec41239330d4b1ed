// Command videopiped runs the videopipe daemon in the foreground.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"videopipe/internal/config"
	"videopipe/internal/daemonrun"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		logLevel   string
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:           "videopiped",
		Short:         "Run the videopipe daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, exists, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !exists {
				fmt.Fprintf(cmd.ErrOrStderr(), "No config at %s, using defaults\n", path)
			}
			level := logLevel
			if verbose {
				level = "debug"
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: level})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Shorthand for --log-level=debug")
	return cmd
}
