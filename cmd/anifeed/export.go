package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/varoOP/anifeed/internal/app"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the cached feed to a JSON or YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := animeFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		limit, _ := cmd.Flags().GetInt("limit")

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			n, err := a.Export(ctx, out, f, limit)
			if err != nil {
				return err
			}
			fmt.Printf("Exported %d anime to %s\n", n, out)
			return nil
		})
	},
}

func init() {
	addFilterFlags(exportCmd)
	exportCmd.Flags().StringP("out", "o", "feed.json", "output file, .json, .yaml or .yml")
	exportCmd.Flags().Int("limit", 0, "candidates per anime, 0 for all")
	rootCmd.AddCommand(exportCmd)
}
