package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/varoOP/anifeed/internal/app"
	"github.com/varoOP/anifeed/internal/domain"
	"github.com/varoOP/anifeed/internal/repository"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached anime with their best torrent candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := animeFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			items, err := a.List(ctx, f, limit)
			if err != nil {
				return err
			}

			switch format {
			case "table":
				return printTable(items)
			default:
				return repository.Encode(os.Stdout, repository.Format(format), items)
			}
		})
	},
}

func init() {
	addFilterFlags(listCmd)
	listCmd.Flags().Int("limit", 1, "candidates shown per anime, 0 for all")
	listCmd.Flags().String("format", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(listCmd)
}

func printTable(items []domain.FeedItem) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tID\tSTATUS\tTITLE\tSEEDERS\tTORRENT")
	for _, item := range items {
		if len(item.Torrents) == 0 {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t-\t-\n", item.Anime.Source, item.Anime.AnimeID, item.Anime.Status, item.Anime.SearchTitle())
			continue
		}
		for _, t := range item.Torrents {
			seeders := "?"
			if t.Seeders != nil {
				seeders = fmt.Sprint(*t.Seeders)
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", item.Anime.Source, item.Anime.AnimeID, item.Anime.Status, item.Anime.SearchTitle(), seeders, t.Title)
		}
	}
	return w.Flush()
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("filter-status", "", "only anime in this status")
	cmd.Flags().String("filter-source", "", "only anime from this source")
	cmd.Flags().String("sort", "title", "sort by title or id")
}

func animeFilterFromFlags(cmd *cobra.Command) (domain.AnimeFilter, error) {
	var f domain.AnimeFilter

	if s, _ := cmd.Flags().GetString("filter-status"); s != "" {
		status, err := domain.ParseStatus(s)
		if err != nil {
			return f, err
		}
		f.Status = status
	}
	if s, _ := cmd.Flags().GetString("filter-source"); s != "" {
		source, err := domain.ParseSource(s)
		if err != nil {
			return f, err
		}
		f.Source = source
	}
	sort, _ := cmd.Flags().GetString("sort")
	f.Sort = domain.AnimeSort(sort)

	return f, f.Validate()
}
