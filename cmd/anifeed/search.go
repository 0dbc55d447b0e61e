package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/varoOP/anifeed/internal/app"
	"github.com/varoOP/anifeed/internal/domain"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Refresh torrent candidates for anime already in the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			var statuses []domain.AnimeStatus
			for _, s := range viper.GetStringSlice("statuses") {
				status, err := domain.ParseStatus(s)
				if err != nil {
					return err
				}
				statuses = append(statuses, status)
			}

			res, err := a.SearchTorrents(ctx, statuses)
			if err != nil {
				return errors.Wrap(err, "search failed")
			}

			fmt.Printf("Searched %d anime, stored %d candidates (%d without match, %d failed searches)\n",
				res.Searched, res.Stored, res.WithoutMatch, res.Failures)
			return nil
		})
	},
}

func init() {
	searchCmd.Flags().StringSlice("status", nil, "statuses to search (default from config)")
	rootCmd.AddCommand(searchCmd)
}
