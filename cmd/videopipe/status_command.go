package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"videopipe/internal/api"
	"videopipe/internal/deps"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, worker, and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			client, err := ctx.newClient(nil)
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				if jsonOutput {
					return writeJSON(cmd, api.DaemonStatus{Dependencies: deps.CheckBinaries(deps.Requirements(cfg))})
				}
				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running at "+ctx.apiAddress(), colorize))
				fmt.Fprintln(out, renderStatusLine("Storage", storageKind(cfg.StorageConfigured()), yesNo(cfg.StorageConfigured()), colorize))
				renderDependencies(out, deps.CheckBinaries(deps.Requirements(cfg)), colorize)
				return nil
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize))
			fmt.Fprintln(out, renderStatusLine("Workers", statusInfo, fmt.Sprintf("%d configured, %d active", status.Pipeline.Workers, len(status.Pipeline.ActiveJobs)), colorize))
			fmt.Fprintln(out, renderStatusLine("Finished jobs", statusInfo, fmt.Sprintf("%d", status.Pipeline.FinishedJobs), colorize))
			if status.Pipeline.LastError != "" {
				fmt.Fprintln(out, renderStatusLine("Last error", statusError, status.Pipeline.LastError, colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DBPath, colorize))
			fmt.Fprintln(out, renderStatusLine("Log", statusInfo, status.LogPath, colorize))
			renderDependencies(out, status.Dependencies, colorize)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print status as JSON")
	return cmd
}

func renderDependencies(out io.Writer, statuses []deps.Status, colorize bool) {
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, status := range statuses {
		kind := statusOK
		detail := strings.TrimSpace(status.Version)
		if !status.Available {
			kind = statusError
			detail = strings.TrimSpace(status.Detail)
		}
		if detail == "" {
			detail = status.Command
		}
		fmt.Fprintln(out, renderStatusLine(status.Name, kind, detail, colorize))
	}
}

func storageKind(configured bool) statusKind {
	if configured {
		return statusOK
	}
	return statusWarn
}
