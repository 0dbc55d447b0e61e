package app

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/anifeed/internal/anilist"
	"github.com/varoOP/anifeed/internal/config"
	"github.com/varoOP/anifeed/internal/database"
	"github.com/varoOP/anifeed/internal/domain"
	"github.com/varoOP/anifeed/internal/filter"
	"github.com/varoOP/anifeed/internal/logger"
	"github.com/varoOP/anifeed/internal/mal"
	"github.com/varoOP/anifeed/internal/notification"
	"github.com/varoOP/anifeed/internal/nyaa"
	"github.com/varoOP/anifeed/internal/repository"
)

// App wires the store to the fetchers, searcher and notifier
type App struct {
	log                 zerolog.Logger
	config              *domain.Config
	store               domain.AnimeTorrentStore
	fetchers            map[domain.Source]domain.ProfileFetcher
	searcher            domain.TorrentSearcher
	matcher             domain.Matcher
	feedRepo            *repository.FileRepository
	notificationService domain.NotificationService
	closer              io.Closer
}

// Services are the collaborators of an App
type Services struct {
	Store        domain.AnimeTorrentStore
	Fetchers     []domain.ProfileFetcher
	Searcher     domain.TorrentSearcher
	Matcher      domain.Matcher
	Notification domain.NotificationService
	// Closer is closed by App.Close, usually the database
	Closer io.Closer
}

// NewApp creates a new application instance from the loaded configuration
func NewApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := database.NewDB(cfg.DatabasePath, log)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize database")
	}

	return New(log, cfg, Services{
		Store: database.NewAnimeTorrentStore(log, db),
		Fetchers: []domain.ProfileFetcher{
			anilist.NewService(log),
			mal.NewService(log, cfg.MalClientID),
		},
		Searcher:     nyaa.NewService(log, cfg.Nyaa),
		Matcher:      filter.NewMatcher(log, cfg.Nyaa),
		Notification: notification.NewService(log, cfg.DiscordWebhookURL),
		Closer:       db,
	}), nil
}

// New assembles an App from already constructed services
func New(log zerolog.Logger, cfg *domain.Config, svc Services) *App {
	fetchers := make(map[domain.Source]domain.ProfileFetcher, len(svc.Fetchers))
	for _, f := range svc.Fetchers {
		fetchers[f.Source()] = f
	}

	notifier := svc.Notification
	if notifier == nil {
		notifier = notification.NewService(log, "")
	}

	return &App{
		log:                 log.With().Str("module", "app").Logger(),
		config:              cfg,
		store:               svc.Store,
		fetchers:            fetchers,
		searcher:            svc.Searcher,
		matcher:             svc.Matcher,
		feedRepo:            repository.NewFileRepository(log),
		notificationService: notifier,
		closer:              svc.Closer,
	}
}

// Close releases the database
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// Sync fetches the configured list, refreshes torrent candidates for it and
// reports the outcome.
func (a *App) Sync(ctx context.Context) (stats domain.Statistics, err error) {
	stats = domain.Statistics{
		RunID:  uuid.NewString(),
		User:   a.config.User,
		Source: a.config.Source,
	}
	log := a.log.With().Str("run", stats.RunID).Logger()
	start := time.Now()

	defer func() {
		if err != nil {
			if notifyErr := a.notificationService.SendError(ctx, err); notifyErr != nil {
				log.Warn().Err(notifyErr).Msg("Failed to send error notification")
			}
		}
	}()

	log.Info().Str("user", stats.User).Str("source", string(stats.Source)).Msg("Starting sync")

	stats.AnimeFetched, err = a.Fetch(ctx)
	if err != nil {
		return stats, err
	}

	result, err := a.SearchTorrents(ctx, a.config.Statuses)
	if err != nil {
		return stats, err
	}
	stats.AnimeSearched = result.Searched
	stats.SearchFailures = result.Failures
	stats.CandidatesStored = result.Stored
	stats.AnimeWithoutMatch = result.WithoutMatch

	totals, err := a.store.Stats(ctx)
	if err != nil {
		return stats, errors.Wrap(err, "failed to count cache rows")
	}
	stats.TotalAnime = totals.TotalAnime()
	stats.TotalTorrents = totals.Torrents

	log.Info().
		Int("anime_fetched", stats.AnimeFetched).
		Int("anime_searched", stats.AnimeSearched).
		Int("search_failures", stats.SearchFailures).
		Int("candidates_stored", stats.CandidatesStored).
		Int("anime_without_match", stats.AnimeWithoutMatch).
		Int("total_anime", stats.TotalAnime).
		Int("total_torrents", stats.TotalTorrents).
		Dur("took", time.Since(start)).
		Msg("=== SYNC STATISTICS ===")

	if notifyErr := a.notificationService.SendSuccess(ctx, stats); notifyErr != nil {
		log.Warn().Err(notifyErr).Msg("Failed to send success notification")
	}

	return stats, nil
}

// Fetch stores the user's list for every configured status. Each status is
// written as one batch.
func (a *App) Fetch(ctx context.Context) (int, error) {
	if err := a.config.ValidateProfile(); err != nil {
		return 0, err
	}

	fetcher, ok := a.fetchers[a.config.Source]
	if !ok {
		return 0, errors.Errorf("no profile fetcher for source %s", a.config.Source)
	}

	total := 0
	for _, status := range a.config.Statuses {
		entries, err := fetcher.FetchUserList(ctx, a.config.User, status)
		if err != nil {
			return total, errors.Wrapf(err, "failed to fetch %s list", status)
		}

		if err := a.store.UpsertAnimeBatch(ctx, entries); err != nil {
			return total, errors.Wrapf(err, "failed to store %s list", status)
		}

		a.log.Info().Str("status", string(status)).Int("count", len(entries)).Msg("Stored anime list")
		total += len(entries)
	}

	return total, nil
}

// SearchResult counts the work done by SearchTorrents
type SearchResult struct {
	Searched     int
	Failures     int
	Stored       int
	WithoutMatch int
}

// SearchTorrents searches the index for every stored entry of the configured
// source in the given statuses and stores the matched candidates. A failed
// search is logged and counted; storage errors abort.
func (a *App) SearchTorrents(ctx context.Context, statuses []domain.AnimeStatus) (SearchResult, error) {
	var result SearchResult

	if a.searcher == nil || a.matcher == nil {
		return result, errors.New("torrent search is not configured")
	}

	for _, status := range statuses {
		entries, err := a.store.ListAnime(ctx, domain.AnimeFilter{
			Status: status,
			Source: a.config.Source,
			Sort:   domain.AnimeSortTitle,
		})
		if err != nil {
			return result, errors.Wrapf(err, "failed to list %s anime", status)
		}

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			result.Searched++

			candidates, err := a.searchEntry(ctx, entry)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return result, ctxErr
				}
				result.Failures++
				a.log.Warn().Err(err).Str("anime", entry.Key().String()).Str("title", entry.SearchTitle()).Msg("Torrent search failed")
				continue
			}

			if len(candidates) == 0 {
				result.WithoutMatch++
				a.log.Debug().Str("title", entry.SearchTitle()).Msg("No torrent candidates")
				continue
			}

			stored, err := a.store.AddTorrentCandidates(ctx, entry.Key(), candidates)
			if err != nil {
				return result, errors.Wrapf(err, "failed to store candidates for %s", entry.Key())
			}
			result.Stored += len(stored)
		}
	}

	return result, nil
}

// searchEntry searches by romaji title and retries with the english title
// when the first search has no usable results
func (a *App) searchEntry(ctx context.Context, entry domain.AnimeEntry) ([]domain.TorrentCandidate, error) {
	titles := []string{entry.SearchTitle()}
	if entry.TitleEnglish != "" && entry.TitleEnglish != titles[0] {
		titles = append(titles, entry.TitleEnglish)
	}

	var (
		lastErr  error
		searched bool
	)
	for _, title := range titles {
		results, err := a.searcher.Search(ctx, title)
		if err != nil {
			lastErr = err
			continue
		}
		searched = true

		if candidates := a.matcher.Match(entry, results); len(candidates) > 0 {
			return candidates, nil
		}
	}

	if searched {
		return nil, nil
	}
	return nil, lastErr
}

// List joins stored anime with their best candidates. limit caps the
// candidates per entry; zero means all.
func (a *App) List(ctx context.Context, f domain.AnimeFilter, limit int) ([]domain.FeedItem, error) {
	entries, err := a.store.ListAnime(ctx, f)
	if err != nil {
		return nil, err
	}

	items := make([]domain.FeedItem, 0, len(entries))
	for _, entry := range entries {
		torrents, err := a.store.ListTorrentsForAnime(ctx, entry.Key(), domain.TorrentSortSeeders)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list torrents for %s", entry.Key())
		}
		if limit > 0 && len(torrents) > limit {
			torrents = torrents[:limit]
		}
		items = append(items, domain.FeedItem{Anime: entry, Torrents: torrents})
	}

	return items, nil
}

// Export writes the feed to path, JSON or YAML by extension
func (a *App) Export(ctx context.Context, path string, f domain.AnimeFilter, limit int) (int, error) {
	items, err := a.List(ctx, f, limit)
	if err != nil {
		return 0, err
	}

	if err := a.feedRepo.Store(ctx, path, items); err != nil {
		return 0, errors.Wrap(err, "failed to export feed")
	}

	written, err := a.feedRepo.Get(ctx, path)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read back exported feed")
	}
	if len(written) != len(items) {
		return 0, errors.Errorf("exported feed %s holds %d entries, expected %d", path, len(written), len(items))
	}

	a.log.Info().Str("path", path).Int("anime", len(items)).Msg("Exported feed")
	return len(items), nil
}

// Delete removes an entry and its candidates from the cache
func (a *App) Delete(ctx context.Context, key domain.AnimeKey) error {
	if err := a.store.DeleteAnime(ctx, key); err != nil {
		return errors.Wrapf(err, "failed to delete %s", key)
	}
	a.log.Info().Str("anime", key.String()).Msg("Deleted anime")
	return nil
}
