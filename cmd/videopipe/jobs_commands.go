package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"videopipe/internal/api"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd, func(source jobsAPI) error {
				list, err := source.List(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.JobListResponse{Jobs: list})
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "File", "Category", "Status", "Progress", "Size", "Updated"},
					buildJobRows(list, shouldColorize(out)),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable or comma separated)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print jobs as JSON")
	return cmd
}

func buildJobRows(list []api.Job, colorize bool) [][]string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		size := job.OriginalSizeBytes
		if job.CompressedSizeBytes > 0 {
			size = job.CompressedSizeBytes
		}
		rows = append(rows, []string{
			job.ID,
			job.Filename,
			job.Category,
			colorizeStatus(job.Status, colorize),
			formatPercent(job.ProgressPercent),
			formatBytes(size),
			formatTimestamp(job.UpdatedAt),
		})
	}
	return rows
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd, func(source jobsAPI) error {
				job, err := source.Get(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, job)
				}
				out := cmd.OutOrStdout()
				for _, line := range describeJob(job, shouldColorize(out)) {
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the job as JSON")
	return cmd
}

func describeJob(job api.Job, colorize bool) []string {
	lines := []string{
		fmt.Sprintf("ID:          %s", job.ID),
		fmt.Sprintf("File:        %s", job.Filename),
		fmt.Sprintf("Category:    %s (%s)", job.Category, job.FolderLabel),
		fmt.Sprintf("Aspect:      %s", job.AspectVariant),
		fmt.Sprintf("Crop bottom: %dpx", job.CropBottomPx),
		fmt.Sprintf("Status:      %s", colorizeStatus(job.Status, colorize)),
		fmt.Sprintf("Progress:    %s", formatPercent(job.ProgressPercent)),
		fmt.Sprintf("Original:    %s", formatBytes(job.OriginalSizeBytes)),
		fmt.Sprintf("Compressed:  %s (saved %s)", formatBytes(job.CompressedSizeBytes), formatRatio(job.OriginalSizeBytes, job.CompressedSizeBytes)),
		fmt.Sprintf("Attempts:    %d", job.Attempts),
		fmt.Sprintf("Created:     %s", formatTimestamp(job.CreatedAt)),
		fmt.Sprintf("Updated:     %s", formatTimestamp(job.UpdatedAt)),
	}
	if job.PublishedURL != "" {
		lines = append(lines, fmt.Sprintf("URL:         %s", job.PublishedURL))
	}
	if job.ErrorReason != "" {
		lines = append(lines, fmt.Sprintf("Error:       %s", job.ErrorReason))
	}
	if job.Metadata != nil {
		lines = append(lines,
			fmt.Sprintf("Title:       %s", valueOrDash(job.Metadata.Title)),
			fmt.Sprintf("Description: %s", valueOrDash(job.Metadata.Description)),
			fmt.Sprintf("Tags:        %s", valueOrDash(strings.Join(job.Metadata.Tags, ", "))),
		)
	}
	return lines
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>...",
		Short: "Cancel a job and remove everything it published",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				var failed []string
				for _, id := range args {
					id = strings.TrimSpace(id)
					err := client.DeleteJob(cmd.Context(), id)
					switch {
					case err == nil:
						fmt.Fprintf(out, "Deleted job %s\n", id)
					case api.IsNotFound(err):
						fmt.Fprintf(out, "Job %s not found\n", id)
						failed = append(failed, id)
					default:
						return fmt.Errorf("delete %s: %w", id, err)
					}
				}
				if len(failed) > 0 {
					return fmt.Errorf("%w: %s", errJobNotFound, strings.Join(failed, ", "))
				}
				return nil
			})
		},
	}
}

func newResubmitCommand(ctx *commandContext) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "resubmit <job-id>",
		Short: "Create a new job from a failed one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				id := strings.TrimSpace(args[0])
				job, err := client.Resubmit(cmd.Context(), id)
				if api.IsNotFound(err) {
					return fmt.Errorf("%w: %s", errJobNotFound, id)
				}
				if err != nil {
					return fmt.Errorf("resubmit %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resubmitted %s as job %s\n", id, job.ID)
				if !watch {
					return nil
				}
				return followJob(cmd, client, job.ID)
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow progress until the new job finishes")
	return cmd
}
