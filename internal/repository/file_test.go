package repository

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varoOP/anifeed/internal/domain"
)

func feed() []domain.FeedItem {
	key := domain.AnimeKey{ID: 1, Source: domain.SourceAniList}
	return []domain.FeedItem{{
		Anime: domain.AnimeEntry{
			AnimeID:      1,
			Source:       domain.SourceAniList,
			TitleRomaji:  "Shingeki no Kyojin",
			TitleEnglish: "Attack on Titan",
			Status:       domain.StatusWatching,
			Episodes:     domain.IntPtr(25),
		},
		Torrents: []domain.TorrentCandidate{{
			SK:          1,
			TorrentID:   500,
			Title:       "[SubsPlease] AoT - 01",
			DownloadURL: "magnet:?xt=urn:btih:abc",
			Seeders:     domain.IntPtr(120),
			Leechers:    domain.IntPtr(3),
			Anime:       key,
		}},
	}}
}

func TestFileRepository_StoreAndGet(t *testing.T) {
	repo := NewFileRepository(zerolog.Nop())
	dir := t.TempDir()

	for _, name := range []string{"feed.json", "nested/feed.yaml", "feed.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, repo.Store(context.Background(), path, feed()))

			got, err := repo.Get(context.Background(), path)
			require.NoError(t, err)
			assert.Equal(t, feed(), got)
		})
	}
}

func TestEncode_Formats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FormatJSON, feed()))
	assert.Contains(t, buf.String(), `"titleRomaji": "Shingeki no Kyojin"`)
	assert.Contains(t, buf.String(), `"torrentId": 500`)
	assert.NotContains(t, buf.String(), `"size"`)

	buf.Reset()
	require.NoError(t, Encode(&buf, FormatYAML, feed()))
	assert.Contains(t, buf.String(), "titleEnglish: Attack on Titan")

	buf.Reset()
	require.NoError(t, Encode(&buf, FormatJSON, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestFileRepository_Errors(t *testing.T) {
	repo := NewFileRepository(zerolog.Nop())
	dir := t.TempDir()

	err := repo.Store(context.Background(), filepath.Join(dir, "feed.txt"), feed())
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = repo.Get(context.Background(), filepath.Join(dir, "missing.json"))
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	_, err = repo.Get(context.Background(), bad)
	assert.Error(t, err)
}
