package domain

import "context"

// AnimeTorrentStore is the durable, deduplicated cache of anime entries and
// their torrent candidates.
type AnimeTorrentStore interface {
	// Anime operations
	UpsertAnime(ctx context.Context, entry AnimeEntry) error
	UpsertAnimeBatch(ctx context.Context, entries []AnimeEntry) error
	GetAnime(ctx context.Context, key AnimeKey) (*AnimeEntry, error)
	ListAnime(ctx context.Context, filter AnimeFilter) ([]AnimeEntry, error)
	DeleteAnime(ctx context.Context, key AnimeKey) error

	// Torrent operations
	AddTorrentCandidate(ctx context.Context, key AnimeKey, candidate TorrentCandidate) (*TorrentCandidate, error)
	AddTorrentCandidates(ctx context.Context, key AnimeKey, candidates []TorrentCandidate) ([]TorrentCandidate, error)
	FindTorrentByRemoteID(ctx context.Context, key AnimeKey, torrentID int) (*TorrentCandidate, error)
	ListTorrentsForAnime(ctx context.Context, key AnimeKey, sort TorrentSort) ([]TorrentCandidate, error)

	Stats(ctx context.Context) (StoreStats, error)
}

// StoreStats holds row counts of the store
type StoreStats struct {
	AnimeBySource map[Source]int
	Torrents      int
}

func (s StoreStats) TotalAnime() int {
	total := 0
	for _, n := range s.AnimeBySource {
		total += n
	}
	return total
}
