package database

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/varoOP/anifeed/internal/domain"
)

var torrentColumns = []string{"torrent_sk", "torrent_id", "title", "download_url", "size", "seeders", "leechers", "anime_id", "anime_source"}

// AddTorrentCandidate stores a candidate for an existing anime entry and
// returns it with the surrogate key assigned. Adding the same remote torrent
// id for the same anime again updates the stored row in place.
func (s *AnimeTorrentStore) AddTorrentCandidate(ctx context.Context, key domain.AnimeKey, candidate domain.TorrentCandidate) (*domain.TorrentCandidate, error) {
	stored, err := s.AddTorrentCandidates(ctx, key, []domain.TorrentCandidate{candidate})
	if err != nil {
		return nil, err
	}
	return &stored[0], nil
}

// AddTorrentCandidates stores candidates for one anime in a single transaction
func (s *AnimeTorrentStore) AddTorrentCandidates(ctx context.Context, key domain.AnimeKey, candidates []domain.TorrentCandidate) ([]domain.TorrentCandidate, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	for i, c := range candidates {
		if err := c.Validate(); err != nil {
			return nil, errors.Wrapf(err, "candidate %d (torrent %d)", i, c.TorrentID)
		}
	}
	if len(candidates) == 0 {
		return []domain.TorrentCandidate{}, nil
	}

	stored := make([]domain.TorrentCandidate, 0, len(candidates))

	err := s.db.WithTx(ctx, func(tx *Tx) error {
		exists, err := s.animeExists(ctx, tx, key)
		if err != nil {
			return err
		}
		if !exists {
			return &domain.ReferentialError{Key: key}
		}

		for _, c := range candidates {
			sk, err := s.upsertTorrent(ctx, tx, key, c)
			if err != nil {
				return err
			}
			c.SK = sk
			c.Anime = key
			stored = append(stored, c)
		}
		return nil
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, &domain.ReferentialError{Key: key}
		}
		return nil, storageError("add torrent candidates", err)
	}

	s.log.Debug().Str("anime", key.String()).Int("count", len(stored)).Msg("Stored torrent candidates")
	return stored, nil
}

func (s *AnimeTorrentStore) animeExists(ctx context.Context, tx *Tx, key domain.AnimeKey) (bool, error) {
	query, args, err := s.db.squirrel.
		Select("1").
		From("anime").
		Where(sq.Eq{"anime_id": key.ID, "source": string(key.Source)}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, errors.Wrap(err, "error building query")
	}

	var one int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, errors.Wrap(err, "error checking anime")
	}
	return true, nil
}

func (s *AnimeTorrentStore) upsertTorrent(ctx context.Context, tx *Tx, key domain.AnimeKey, c domain.TorrentCandidate) (int64, error) {
	queryBuilder := s.db.squirrel.
		Insert("torrent").
		Columns("torrent_id", "title", "download_url", "size", "seeders", "leechers", "anime_id", "anime_source").
		Values(c.TorrentID, c.Title, c.DownloadURL, nullString(c.Size), nullInt(c.Seeders), nullInt(c.Leechers), key.ID, string(key.Source)).
		Suffix(`ON CONFLICT (anime_id, anime_source, torrent_id) DO UPDATE SET
			title = excluded.title,
			download_url = excluded.download_url,
			size = excluded.size,
			seeders = excluded.seeders,
			leechers = excluded.leechers
		RETURNING torrent_sk`)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "error building query")
	}

	s.log.Trace().Str("query", query).Interface("args", args).Msg("AddTorrentCandidate")

	var sk int64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&sk); err != nil {
		return 0, errors.Wrapf(err, "error storing torrent %d", c.TorrentID)
	}

	return sk, nil
}

// FindTorrentByRemoteID looks up a candidate by the index's torrent id
func (s *AnimeTorrentStore) FindTorrentByRemoteID(ctx context.Context, key domain.AnimeKey, torrentID int) (*domain.TorrentCandidate, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	query, args, err := s.db.squirrel.
		Select(torrentColumns...).
		From("torrent").
		Where(sq.Eq{"anime_id": key.ID, "anime_source": string(key.Source), "torrent_id": torrentID}).
		OrderBy("torrent_sk").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	s.log.Trace().Str("query", query).Interface("args", args).Msg("FindTorrentByRemoteID")

	c, err := scanTorrent(s.db.handler.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{What: fmt.Sprintf("torrent %d for anime %s", torrentID, key)}
		}
		return nil, storageError("find torrent", err)
	}

	return c, nil
}

// ListTorrentsForAnime returns a snapshot of the candidates of one entry.
// An unknown entry has no candidates.
func (s *AnimeTorrentStore) ListTorrentsForAnime(ctx context.Context, key domain.AnimeKey, sort domain.TorrentSort) ([]domain.TorrentCandidate, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := sort.Validate(); err != nil {
		return nil, err
	}

	queryBuilder := s.db.squirrel.
		Select(torrentColumns...).
		From("torrent").
		Where(sq.Eq{"anime_id": key.ID, "anime_source": string(key.Source)})

	switch sort {
	case domain.TorrentSortSeeders:
		queryBuilder = queryBuilder.OrderBy("seeders IS NULL", "seeders DESC", "torrent_sk")
	default:
		queryBuilder = queryBuilder.OrderBy("torrent_sk")
	}

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	s.log.Trace().Str("query", query).Interface("args", args).Msg("ListTorrentsForAnime")

	rows, err := s.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError("list torrents", errors.Wrap(err, "error executing query"))
	}
	defer rows.Close()

	candidates := make([]domain.TorrentCandidate, 0)
	for rows.Next() {
		c, err := scanTorrent(rows)
		if err != nil {
			return nil, storageError("list torrents", errors.Wrap(err, "error scanning row"))
		}
		candidates = append(candidates, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, storageError("list torrents", errors.Wrap(err, "error iterating rows"))
	}

	return candidates, nil
}

func scanTorrent(row rowScanner) (*domain.TorrentCandidate, error) {
	var (
		c        domain.TorrentCandidate
		size     sql.NullString
		seeders  sql.NullInt64
		leechers sql.NullInt64
		source   string
	)

	if err := row.Scan(&c.SK, &c.TorrentID, &c.Title, &c.DownloadURL, &size, &seeders, &leechers, &c.Anime.ID, &source); err != nil {
		return nil, err
	}

	c.Anime.Source = domain.Source(source)
	if size.Valid {
		c.Size = domain.StringPtr(size.String)
	}
	if seeders.Valid {
		c.Seeders = domain.IntPtr(int(seeders.Int64))
	}
	if leechers.Valid {
		c.Leechers = domain.IntPtr(int(leechers.Int64))
	}

	return &c, nil
}
