package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"videopipe/internal/api"
	"videopipe/internal/jobs"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var storage bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show job counts and, with --storage, what the bucket holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			err := ctx.withJobs(cmd, func(source jobsAPI) error {
				stats, err := source.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := buildStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				fmt.Fprint(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
			if err != nil || !storage {
				return err
			}

			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.StorageStats(cmd.Context())
				if err != nil {
					return fmt.Errorf("storage stats: %w", err)
				}
				fmt.Fprint(out, renderTable(
					[]string{"Bucket", "Videos", "Objects", "Size"},
					[][]string{{
						valueOrDash(resp.Bucket),
						strconv.Itoa(resp.Stats.Videos),
						strconv.Itoa(resp.Stats.Objects),
						formatBytes(resp.Stats.TotalBytes),
					}},
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&storage, "storage", false, "Include object storage totals (requires the daemon)")
	return cmd
}

// buildStatusRows lists non-zero counts in lifecycle order.
func buildStatusRows(stats map[string]int) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, status := range jobs.AllStatuses() {
		count := stats[string(status)]
		if count == 0 {
			continue
		}
		rows = append(rows, []string{string(status), strconv.Itoa(count)})
	}
	return rows
}
