package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varoOP/anifeed/internal/domain"
)

func setupStore(t *testing.T) (*AnimeTorrentStore, *DB) {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "anifeed.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewAnimeTorrentStore(zerolog.Nop(), db), db
}

func aot() domain.AnimeEntry {
	return domain.AnimeEntry{
		AnimeID:      1,
		Source:       domain.SourceAniList,
		TitleRomaji:  "Shingeki no Kyojin",
		TitleEnglish: "Attack on Titan",
		Status:       domain.StatusWatching,
		Episodes:     domain.IntPtr(25),
	}
}

func candidate(id, seeders int) domain.TorrentCandidate {
	return domain.TorrentCandidate{
		TorrentID:   id,
		Title:       fmt.Sprintf("[SubsPlease] AoT - %02d", id%100),
		DownloadURL: fmt.Sprintf("https://nyaa.si/download/%d.torrent", id),
		Size:        domain.StringPtr("1.4 GiB"),
		Seeders:     domain.IntPtr(seeders),
		Leechers:    domain.IntPtr(3),
	}
}

func countTorrents(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.handler.QueryRow("SELECT COUNT(*) FROM torrent").Scan(&n))
	return n
}

func TestStore_AddCandidateScenario(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)

	require.NoError(t, store.UpsertAnime(ctx, aot()))

	stored, err := store.AddTorrentCandidate(ctx, aot().Key(), domain.TorrentCandidate{
		TorrentID:   500,
		Title:       "[SubsPlease] AoT - 01",
		DownloadURL: "magnet:?xt=urn:btih:0123456789abcdef",
		Seeders:     domain.IntPtr(120),
		Leechers:    domain.IntPtr(3),
	})
	require.NoError(t, err)
	assert.NotZero(t, stored.SK)
	assert.Equal(t, aot().Key(), stored.Anime)

	list, err := store.ListTorrentsForAnime(ctx, domain.AnimeKey{ID: 1, Source: domain.SourceAniList}, domain.TorrentSortInsertion)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 120, *list[0].Seeders)
	assert.Equal(t, 500, list[0].TorrentID)
	assert.Nil(t, list[0].Size)
}

func TestStore_UpsertUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)

	entry := aot()
	require.NoError(t, store.UpsertAnime(ctx, entry))

	entry.Status = domain.StatusCompleted
	entry.Episodes = nil
	require.NoError(t, store.UpsertAnime(ctx, entry))
	require.NoError(t, store.UpsertAnime(ctx, entry))

	got, err := store.GetAnime(ctx, entry.Key())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Nil(t, got.Episodes)

	all, err := store.ListAnime(ctx, domain.AnimeFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)

	entry := aot()
	entry.TitleEnglish = ""
	require.NoError(t, store.UpsertAnime(ctx, entry))

	got, err := store.GetAnime(ctx, entry.Key())
	require.NoError(t, err)
	assert.Equal(t, entry, *got)
}

func TestStore_SameIDDifferentSources(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)

	mal := aot()
	mal.Source = domain.SourceMyAnimeList
	mal.Status = domain.StatusPlanning
	require.NoError(t, store.UpsertAnimeBatch(ctx, []domain.AnimeEntry{aot(), mal}))

	all, err := store.ListAnime(ctx, domain.AnimeFilter{Sort: domain.AnimeSortID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.SourceAniList, all[0].Source)
	assert.Equal(t, domain.SourceMyAnimeList, all[1].Source)

	planning, err := store.ListAnime(ctx, domain.AnimeFilter{Status: domain.StatusPlanning})
	require.NoError(t, err)
	require.Len(t, planning, 1)
	assert.Equal(t, domain.SourceMyAnimeList, planning[0].Source)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AnimeBySource[domain.SourceAniList])
	assert.Equal(t, 1, stats.AnimeBySource[domain.SourceMyAnimeList])
	assert.Equal(t, 2, stats.TotalAnime())
	assert.Equal(t, 0, stats.Torrents)
}

func TestStore_ListAnimeSortByTitle(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)

	entries := []domain.AnimeEntry{
		{AnimeID: 3, Source: domain.SourceAniList, TitleRomaji: "yofukashi no Uta", Status: domain.StatusWatching},
		{AnimeID: 2, Source: domain.SourceAniList, TitleRomaji: "Bocchi the Rock!", Status: domain.StatusWatching},
		{AnimeID: 1, Source: domain.SourceAniList, TitleRomaji: "Frieren", Status: domain.StatusCompleted},
	}
	require.NoError(t, store.UpsertAnimeBatch(ctx, entries))

	all, err := store.ListAnime(ctx, domain.AnimeFilter{Sort: domain.AnimeSortTitle})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int{2, 1, 3}, []int{all[0].AnimeID, all[1].AnimeID, all[2].AnimeID})

	_, err = store.ListAnime(ctx, domain.AnimeFilter{Sort: "score"})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestStore_GetAnimeNotFound(t *testing.T) {
	store, _ := setupStore(t)

	_, err := store.GetAnime(context.Background(), domain.AnimeKey{ID: 42, Source: domain.SourceAniList})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_ValidationRejectedBeforeWrite(t *testing.T) {
	ctx := context.Background()
	store, db := setupStore(t)

	bad := aot()
	bad.Episodes = domain.IntPtr(-3)
	err := store.UpsertAnime(ctx, bad)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	require.NoError(t, store.UpsertAnime(ctx, aot()))
	_, err = store.AddTorrentCandidate(ctx, aot().Key(), domain.TorrentCandidate{TorrentID: 1, Title: "x", DownloadURL: "not a url"})
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, 0, countTorrents(t, db))
}

func TestStore_AddCandidateForMissingAnime(t *testing.T) {
	ctx := context.Background()
	store, db := setupStore(t)

	require.NoError(t, store.UpsertAnime(ctx, aot()))
	_, err := store.AddTorrentCandidate(ctx, aot().Key(), candidate(10, 5))
	require.NoError(t, err)

	missing := domain.AnimeKey{ID: 1, Source: domain.SourceMyAnimeList}
	_, err = store.AddTorrentCandidate(ctx, missing, candidate(11, 5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrReferential))

	var refErr *domain.ReferentialError
	require.True(t, errors.As(err, &refErr))
	assert.Equal(t, missing, refErr.Key)

	assert.Equal(t, 1, countTorrents(t, db))
}

func TestStore_ForeignKeyViolationIsReferential(t *testing.T) {
	ctx := context.Background()
	_, db := setupStore(t)

	err := db.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO torrent (torrent_id, title, download_url, anime_id, anime_source) VALUES (1, 't', 'magnet:?xt=1', 99, 'ANILIST')`)
		return err
	})
	require.Error(t, err)
	assert.True(t, isForeignKeyViolation(err))
}

func TestStore_DuplicateRemoteIDUpdatesRow(t *testing.T) {
	ctx := context.Background()
	store, db := setupStore(t)
	require.NoError(t, store.UpsertAnime(ctx, aot()))

	first, err := store.AddTorrentCandidate(ctx, aot().Key(), candidate(500, 10))
	require.NoError(t, err)

	second, err := store.AddTorrentCandidate(ctx, aot().Key(), candidate(500, 99))
	require.NoError(t, err)
	assert.Equal(t, first.SK, second.SK)
	assert.Equal(t, 1, countTorrents(t, db))

	found, err := store.FindTorrentByRemoteID(ctx, aot().Key(), 500)
	require.NoError(t, err)
	assert.Equal(t, 99, *found.Seeders)
	assert.Equal(t, first.SK, found.SK)

	_, err = store.FindTorrentByRemoteID(ctx, aot().Key(), 501)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_SameRemoteIDDifferentAnime(t *testing.T) {
	ctx := context.Background()
	store, db := setupStore(t)

	other := aot()
	other.AnimeID = 2
	require.NoError(t, store.UpsertAnimeBatch(ctx, []domain.AnimeEntry{aot(), other}))

	a, err := store.AddTorrentCandidate(ctx, aot().Key(), candidate(500, 1))
	require.NoError(t, err)
	b, err := store.AddTorrentCandidate(ctx, other.Key(), candidate(500, 1))
	require.NoError(t, err)

	assert.NotEqual(t, a.SK, b.SK)
	assert.Equal(t, 2, countTorrents(t, db))
}

func TestStore_ListTorrentsOrdering(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)
	require.NoError(t, store.UpsertAnime(ctx, aot()))

	noSeeders := candidate(4, 0)
	noSeeders.Seeders = nil

	stored, err := store.AddTorrentCandidates(ctx, aot().Key(), []domain.TorrentCandidate{
		candidate(1, 5), noSeeders, candidate(2, 50), candidate(3, 5),
	})
	require.NoError(t, err)
	require.Len(t, stored, 4)
	for i := 1; i < len(stored); i++ {
		assert.Greater(t, stored[i].SK, stored[i-1].SK)
	}

	ids := func(cs []domain.TorrentCandidate) []int {
		out := make([]int, 0, len(cs))
		for _, c := range cs {
			out = append(out, c.TorrentID)
		}
		return out
	}

	inserted, err := store.ListTorrentsForAnime(ctx, aot().Key(), domain.TorrentSortInsertion)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 2, 3}, ids(inserted))

	bySeeders, err := store.ListTorrentsForAnime(ctx, aot().Key(), domain.TorrentSortSeeders)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 3, 4}, ids(bySeeders))

	_, err = store.ListTorrentsForAnime(ctx, aot().Key(), "size")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestStore_ListTorrentsMissingAnime(t *testing.T) {
	store, _ := setupStore(t)

	list, err := store.ListTorrentsForAnime(context.Background(), domain.AnimeKey{ID: 7, Source: domain.SourceAniList}, domain.TorrentSortInsertion)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestStore_UpsertKeepsTorrents(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)
	require.NoError(t, store.UpsertAnime(ctx, aot()))

	_, err := store.AddTorrentCandidate(ctx, aot().Key(), candidate(500, 1))
	require.NoError(t, err)

	entry := aot()
	entry.Status = domain.StatusCompleted
	require.NoError(t, store.UpsertAnime(ctx, entry))

	list, err := store.ListTorrentsForAnime(ctx, entry.Key(), domain.TorrentSortInsertion)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	store, db := setupStore(t)

	other := aot()
	other.AnimeID = 2
	require.NoError(t, store.UpsertAnimeBatch(ctx, []domain.AnimeEntry{aot(), other}))

	_, err := store.AddTorrentCandidates(ctx, aot().Key(), []domain.TorrentCandidate{candidate(1, 1), candidate(2, 2)})
	require.NoError(t, err)
	_, err = store.AddTorrentCandidate(ctx, other.Key(), candidate(3, 3))
	require.NoError(t, err)

	require.NoError(t, store.DeleteAnime(ctx, aot().Key()))

	_, err = store.GetAnime(ctx, aot().Key())
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	list, err := store.ListTorrentsForAnime(ctx, aot().Key(), domain.TorrentSortInsertion)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 1, countTorrents(t, db))

	// missing key is a no-op
	require.NoError(t, store.DeleteAnime(ctx, aot().Key()))
}

func TestStore_BatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)

	bad := aot()
	bad.AnimeID = 2
	bad.Status = "AIRING"

	err := store.UpsertAnimeBatch(ctx, []domain.AnimeEntry{aot(), bad})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	all, err := store.ListAnime(ctx, domain.AnimeFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, store.UpsertAnime(ctx, aot()))
	_, err = store.AddTorrentCandidates(ctx, aot().Key(), []domain.TorrentCandidate{candidate(1, 1), {TorrentID: -1}})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	list, err := store.ListTorrentsForAnime(ctx, aot().Key(), domain.TorrentSortInsertion)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_BatchRollsBackOnStorageError(t *testing.T) {
	ctx := context.Background()
	store, db := setupStore(t)

	require.NoError(t, store.UpsertAnime(ctx, aot()))

	_, err := db.handler.Exec(`CREATE TRIGGER fail_anime BEFORE INSERT ON anime
		WHEN NEW.anime_id = 2 BEGIN SELECT RAISE(ABORT, 'disk on fire'); END`)
	require.NoError(t, err)

	completed := aot()
	completed.Status = domain.StatusCompleted
	second := aot()
	second.AnimeID = 2

	err = store.UpsertAnimeBatch(ctx, []domain.AnimeEntry{completed, second})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStorage))

	// the update of entry 1 was written before the failure and must be undone
	got, err := store.GetAnime(ctx, aot().Key())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWatching, got.Status)

	all, err := store.ListAnime(ctx, domain.AnimeFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// a fresh entry 3 is not kept either
	third := aot()
	third.AnimeID = 3
	err = store.UpsertAnimeBatch(ctx, []domain.AnimeEntry{third, second})
	assert.True(t, errors.Is(err, domain.ErrStorage))
	_, err = store.GetAnime(ctx, third.Key())
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_AddCandidatesRollsBackOnStorageError(t *testing.T) {
	ctx := context.Background()
	store, db := setupStore(t)

	require.NoError(t, store.UpsertAnime(ctx, aot()))
	_, err := store.AddTorrentCandidate(ctx, aot().Key(), candidate(1, 10))
	require.NoError(t, err)

	_, err = db.handler.Exec(`CREATE TRIGGER fail_torrent BEFORE INSERT ON torrent
		WHEN NEW.torrent_id = 2 BEGIN SELECT RAISE(ABORT, 'disk on fire'); END`)
	require.NoError(t, err)

	_, err = store.AddTorrentCandidates(ctx, aot().Key(), []domain.TorrentCandidate{candidate(1, 999), candidate(3, 5), candidate(2, 1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStorage))
	assert.False(t, errors.Is(err, domain.ErrReferential))

	list, err := store.ListTorrentsForAnime(ctx, aot().Key(), domain.TorrentSortInsertion)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].TorrentID)
	assert.Equal(t, 10, *list[0].Seeders)
}

func TestDB_WithTxRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	store, db := setupStore(t)

	assert.Panics(t, func() {
		_ = db.WithTx(ctx, func(tx *Tx) error {
			require.NoError(t, store.upsertAnime(ctx, tx, aot()))
			panic("boom")
		})
	})

	_, err := store.GetAnime(ctx, aot().Key())
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	// the writer lock must have been released
	require.NoError(t, store.UpsertAnime(ctx, aot()))
}

func TestStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers*2)

	for i := 1; i <= workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			entry := aot()
			entry.AnimeID = id
			if err := store.UpsertAnime(ctx, entry); err != nil {
				errs <- err
				return
			}
			if _, err := store.AddTorrentCandidate(ctx, entry.Key(), candidate(1000+id, id)); err != nil {
				errs <- err
			}
			if _, err := store.ListAnime(ctx, domain.AnimeFilter{}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, workers, stats.AnimeBySource[domain.SourceAniList])
	assert.Equal(t, workers, stats.Torrents)
}

func TestDB_MigratesLegacyDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)

	_, err = raw.Exec(`
	CREATE TABLE anime (
		anime_id INTEGER NOT NULL,
		source TEXT NOT NULL,
		title_romaji TEXT NOT NULL,
		title_english TEXT NOT NULL,
		status TEXT NOT NULL,
		episodes INTEGER NULL,
		PRIMARY KEY (anime_id, source)
	);
	CREATE TABLE torrent (
		torrent_sk INTEGER PRIMARY KEY AUTOINCREMENT,
		torrent_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		download_url TEXT NOT NULL,
		size TEXT NULL,
		seeders INTEGER NULL,
		leechers INTEGER NULL,
		anime_id INTEGER NOT NULL,
		anime_source TEXT NOT NULL,
		UNIQUE (torrent_sk, torrent_id),
		FOREIGN KEY (anime_id, anime_source) REFERENCES anime(anime_id, source) ON DELETE CASCADE
	);
	INSERT INTO anime VALUES (1, 'ANILIST', 'Shingeki no Kyojin', 'Attack on Titan', 'WATCHING', 25);
	INSERT INTO torrent (torrent_id, title, download_url, seeders, anime_id, anime_source) VALUES
		(500, 'old', 'magnet:?xt=a', 1, 1, 'ANILIST'),
		(500, 'new', 'magnet:?xt=b', 2, 1, 'ANILIST'),
		(501, 'other', 'magnet:?xt=c', 3, 1, 'ANILIST');
	PRAGMA user_version = 1;`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	db, err := NewDB(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var version int
	require.NoError(t, db.handler.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, len(migrations), version)

	store := NewAnimeTorrentStore(zerolog.Nop(), db)
	list, err := store.ListTorrentsForAnime(context.Background(), aot().Key(), domain.TorrentSortInsertion)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].Title)
	assert.Equal(t, 501, list[1].TorrentID)

	_, err = store.AddTorrentCandidate(context.Background(), aot().Key(), candidate(501, 9))
	require.NoError(t, err)
	assert.Equal(t, 2, countTorrents(t, db))
}

func TestDB_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.db")

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = raw.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	_, err = NewDB(path, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}
