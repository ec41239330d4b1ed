package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"videopipe/internal/api"
	"videopipe/internal/category"
)

func newCategoriesCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List category ids and their folder labels",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := listCategories(cmd, ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, api.CategoriesResponse{Categories: entries})
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{entry.ID, entry.Label})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Category", "Folder"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print categories as JSON")
	return cmd
}

// listCategories asks the daemon and falls back to the local configuration.
func listCategories(cmd *cobra.Command, ctx *commandContext) ([]category.Entry, error) {
	if client, err := ctx.newClient(nil); err == nil {
		if resp, err := client.Categories(cmd.Context()); err == nil {
			return resp.Categories, nil
		}
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return category.NewResolver(cfg.Categories.DefaultLabel, cfg.Categories.Extra).Entries(), nil
}
