package domain

import "context"

// ProfileFetcher produces a user's anime list from one profile source
type ProfileFetcher interface {
	Source() Source
	FetchUserList(ctx context.Context, username string, status AnimeStatus) ([]AnimeEntry, error)
}

// TorrentSearcher queries a torrent index by title
type TorrentSearcher interface {
	Search(ctx context.Context, query string) ([]TorrentResult, error)
}

// Matcher turns raw search hits into ranked candidates for an entry
type Matcher interface {
	Match(entry AnimeEntry, results []TorrentResult) []TorrentCandidate
}
