package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"videopipe/internal/api"
	"videopipe/internal/config"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		category   string
		filename   string
		aspect     string
		cropBottom int
		move       bool
		watch      bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "submit <video>",
		Short: "Submit a local video for compression and publishing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(category) == "" {
				return errors.New("--category is required")
			}
			source, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve source path: %w", err)
			}

			return ctx.withClient(func(client *api.Client) error {
				job, err := client.Submit(cmd.Context(), api.SubmitRequest{
					SourcePath:    source,
					Filename:      filename,
					Category:      category,
					CropBottomPx:  cropBottom,
					AspectVariant: aspect,
					Move:          move,
				})
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, job)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Submitted job %s\n", job.ID)
				fmt.Fprintf(out, "  File:     %s (%s)\n", job.Filename, formatBytes(job.OriginalSizeBytes))
				fmt.Fprintf(out, "  Category: %s -> %s\n", job.Category, job.FolderLabel)
				if !watch {
					return nil
				}
				return followJob(cmd, client, job.ID)
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Category id (see `videopipe categories`)")
	cmd.Flags().StringVar(&filename, "filename", "", "Display filename (defaults to the source name)")
	cmd.Flags().StringVar(&aspect, "aspect", "wide", "Output framing: wide or tall")
	cmd.Flags().IntVar(&cropBottom, "crop-bottom", 0, "Pixels to crop from the bottom edge")
	cmd.Flags().BoolVar(&move, "move", false, "Move the source into staging instead of copying it")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow progress until the job finishes")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the created job as JSON")
	return cmd
}
