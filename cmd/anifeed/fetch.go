package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/varoOP/anifeed/internal/app"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the anime list into the cache without searching torrents",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			n, err := a.Fetch(ctx)
			if err != nil {
				return errors.Wrap(err, "fetch failed")
			}
			fmt.Printf("Stored %d anime\n", n)
			return nil
		})
	},
}

func init() {
	fetchCmd.Flags().StringSlice("status", nil, "statuses to fetch (default from config)")
	rootCmd.AddCommand(fetchCmd)
}
