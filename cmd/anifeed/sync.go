package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/varoOP/anifeed/internal/app"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the anime list and refresh torrent candidates",
	Long: `Sync performs a complete refresh of the cache:
1. Fetches the user's list for every configured status
2. Stores the entries (one batch per status)
3. Searches Nyaa for every stored entry of the source and statuses
4. Ranks the results and stores the best candidates
5. Sends a Discord notification when a webhook is configured`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			stats, err := a.Sync(ctx)
			if err != nil {
				return errors.Wrap(err, "sync failed")
			}

			fmt.Printf("Synced %d anime, stored %d candidates (%d without match, %d failed searches)\n",
				stats.AnimeFetched, stats.CandidatesStored, stats.AnimeWithoutMatch, stats.SearchFailures)
			return nil
		})
	},
}

func init() {
	syncCmd.Flags().StringSlice("status", nil, "statuses to sync (default from config, WATCHING)")
	rootCmd.AddCommand(syncCmd)
}

// withApp builds the application, applies the command's --status flag and
// runs fn with a context cancelled on SIGINT/SIGTERM
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	if f := cmd.Flags().Lookup("status"); f != nil && f.Changed {
		statuses, _ := cmd.Flags().GetStringSlice("status")
		viper.Set("statuses", statuses)
	}

	application, err := app.NewApp()
	if err != nil {
		return errors.Wrap(err, "failed to initialize application")
	}
	defer func() {
		if err := application.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: closing database: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, application)
}
