package main

import (
	"github.com/spf13/cobra"

	"videopipe/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the videopipe daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			level := logLevel
			if verbose {
				level = "debug"
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: level})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Shorthand for --log-level=debug")
	return cmd
}
