package database

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/anifeed/internal/domain"
)

// AnimeTorrentStore implements domain.AnimeTorrentStore on top of DB
type AnimeTorrentStore struct {
	log zerolog.Logger
	db  *DB
}

var _ domain.AnimeTorrentStore = (*AnimeTorrentStore)(nil)

// NewAnimeTorrentStore creates a store using an already opened database
func NewAnimeTorrentStore(log zerolog.Logger, db *DB) *AnimeTorrentStore {
	return &AnimeTorrentStore{
		log: log.With().Str("repo", "anime_torrent").Logger(),
		db:  db,
	}
}

var animeColumns = []string{"anime_id", "source", "title_romaji", "title_english", "status", "episodes"}

// UpsertAnime inserts an entry or overwrites the mutable fields of an existing one
func (s *AnimeTorrentStore) UpsertAnime(ctx context.Context, entry domain.AnimeEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	err := s.db.WithTx(ctx, func(tx *Tx) error {
		return s.upsertAnime(ctx, tx, entry)
	})
	return storageError("upsert anime", err)
}

// UpsertAnimeBatch writes all entries in a single transaction. Every entry is
// validated up front; nothing is written unless all rows succeed.
func (s *AnimeTorrentStore) UpsertAnimeBatch(ctx context.Context, entries []domain.AnimeEntry) error {
	if len(entries) == 0 {
		return nil
	}

	for i, entry := range entries {
		if err := entry.Validate(); err != nil {
			return errors.Wrapf(err, "entry %d (%s)", i, entry.Key())
		}
	}

	err := s.db.WithTx(ctx, func(tx *Tx) error {
		for _, entry := range entries {
			if err := s.upsertAnime(ctx, tx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storageError("upsert anime batch", err)
	}

	s.log.Debug().Int("count", len(entries)).Msg("Upserted anime batch")
	return nil
}

func (s *AnimeTorrentStore) upsertAnime(ctx context.Context, tx *Tx, entry domain.AnimeEntry) error {
	queryBuilder := s.db.squirrel.
		Insert("anime").
		Columns(animeColumns...).
		Values(entry.AnimeID, string(entry.Source), entry.TitleRomaji, entry.TitleEnglish, string(entry.Status), nullInt(entry.Episodes)).
		Suffix(`ON CONFLICT (anime_id, source) DO UPDATE SET
			title_romaji = excluded.title_romaji,
			title_english = excluded.title_english,
			status = excluded.status,
			episodes = excluded.episodes`)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	s.log.Trace().Str("query", query).Interface("args", args).Msg("UpsertAnime")

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "error upserting anime %s", entry.Key())
	}

	return nil
}

// GetAnime looks up an entry by its composite key
func (s *AnimeTorrentStore) GetAnime(ctx context.Context, key domain.AnimeKey) (*domain.AnimeEntry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	queryBuilder := s.db.squirrel.
		Select(animeColumns...).
		From("anime").
		Where(sq.Eq{"anime_id": key.ID, "source": string(key.Source)})

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	s.log.Trace().Str("query", query).Interface("args", args).Msg("GetAnime")

	entry, err := scanAnime(s.db.handler.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{What: "anime " + key.String()}
		}
		return nil, storageError("get anime", err)
	}

	return entry, nil
}

// ListAnime returns a snapshot of the entries matching filter
func (s *AnimeTorrentStore) ListAnime(ctx context.Context, filter domain.AnimeFilter) ([]domain.AnimeEntry, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	queryBuilder := s.db.squirrel.
		Select(animeColumns...).
		From("anime")

	if filter.Status != "" {
		queryBuilder = queryBuilder.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.Source != "" {
		queryBuilder = queryBuilder.Where(sq.Eq{"source": string(filter.Source)})
	}

	switch filter.Sort {
	case domain.AnimeSortTitle:
		queryBuilder = queryBuilder.OrderBy("title_romaji COLLATE NOCASE", "source", "anime_id")
	case domain.AnimeSortID:
		queryBuilder = queryBuilder.OrderBy("source", "anime_id")
	}

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	s.log.Trace().Str("query", query).Interface("args", args).Msg("ListAnime")

	rows, err := s.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError("list anime", errors.Wrap(err, "error executing query"))
	}
	defer rows.Close()

	entries := make([]domain.AnimeEntry, 0)
	for rows.Next() {
		entry, err := scanAnime(rows)
		if err != nil {
			return nil, storageError("list anime", errors.Wrap(err, "error scanning row"))
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, storageError("list anime", errors.Wrap(err, "error iterating rows"))
	}

	return entries, nil
}

// DeleteAnime removes an entry together with its torrent candidates.
// Deleting a missing entry is a no-op.
func (s *AnimeTorrentStore) DeleteAnime(ctx context.Context, key domain.AnimeKey) error {
	if err := key.Validate(); err != nil {
		return err
	}

	err := s.db.WithTx(ctx, func(tx *Tx) error {
		deleteTorrents := s.db.squirrel.
			Delete("torrent").
			Where(sq.Eq{"anime_id": key.ID, "anime_source": string(key.Source)})

		deleteAnime := s.db.squirrel.
			Delete("anime").
			Where(sq.Eq{"anime_id": key.ID, "source": string(key.Source)})

		for _, b := range []sq.DeleteBuilder{deleteTorrents, deleteAnime} {
			query, args, err := b.ToSql()
			if err != nil {
				return errors.Wrap(err, "error building delete query")
			}

			s.log.Trace().Str("query", query).Interface("args", args).Msg("DeleteAnime")

			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return errors.Wrap(err, "error executing delete query")
			}
		}
		return nil
	})

	return storageError("delete anime", err)
}

// Stats counts stored rows
func (s *AnimeTorrentStore) Stats(ctx context.Context) (domain.StoreStats, error) {
	stats := domain.StoreStats{AnimeBySource: make(map[domain.Source]int)}

	query, args, err := s.db.squirrel.
		Select("source", "COUNT(*)").
		From("anime").
		GroupBy("source").
		ToSql()
	if err != nil {
		return stats, errors.Wrap(err, "error building query")
	}

	rows, err := s.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return stats, storageError("stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			source string
			count  int
		)
		if err := rows.Scan(&source, &count); err != nil {
			return stats, storageError("stats", errors.Wrap(err, "error scanning row"))
		}
		stats.AnimeBySource[domain.Source(source)] = count
	}
	if err := rows.Err(); err != nil {
		return stats, storageError("stats", errors.Wrap(err, "error iterating rows"))
	}

	query, args, err = s.db.squirrel.Select("COUNT(*)").From("torrent").ToSql()
	if err != nil {
		return stats, errors.Wrap(err, "error building query")
	}
	if err := s.db.handler.QueryRowContext(ctx, query, args...).Scan(&stats.Torrents); err != nil {
		return stats, storageError("stats", err)
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnime(row rowScanner) (*domain.AnimeEntry, error) {
	var (
		entry    domain.AnimeEntry
		source   string
		status   string
		episodes sql.NullInt64
	)

	if err := row.Scan(&entry.AnimeID, &source, &entry.TitleRomaji, &entry.TitleEnglish, &status, &episodes); err != nil {
		return nil, err
	}

	entry.Source = domain.Source(source)
	entry.Status = domain.AnimeStatus(status)
	if episodes.Valid {
		entry.Episodes = domain.IntPtr(int(episodes.Int64))
	}

	return &entry, nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
