package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/varoOP/anifeed/internal/app"
	"github.com/varoOP/anifeed/internal/domain"
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove an anime and its torrent candidates from the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetInt("id")
		src, _ := cmd.Flags().GetString("anime-source")

		source, err := domain.ParseSource(src)
		if err != nil {
			return err
		}
		key := domain.AnimeKey{ID: id, Source: source}
		if err := key.Validate(); err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Delete(ctx, key); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", key)
			return nil
		})
	},
}

func init() {
	deleteCmd.Flags().Int("id", 0, "anime id")
	deleteCmd.Flags().String("anime-source", "anilist", "source of the anime id: anilist or mal")
	deleteCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(deleteCmd)
}
