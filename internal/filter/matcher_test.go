package filter

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/varoOP/anifeed/internal/domain"
)

func result(id int, title string, seeders int) domain.TorrentResult {
	return domain.TorrentResult{
		TorrentID:   id,
		Title:       title,
		DownloadURL: fmt.Sprintf("https://nyaa.si/download/%d.torrent", id),
		Size:        "1 GiB",
		Seeders:     seeders,
	}
}

func ids(cs []domain.TorrentCandidate) []int {
	out := make([]int, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.TorrentID)
	}
	return out
}

var watching = domain.AnimeEntry{AnimeID: 1, Source: domain.SourceAniList, TitleRomaji: "Yofukashi no Uta", Status: domain.StatusWatching}

func TestMatch_SeedersWithoutPreferences(t *testing.T) {
	m := NewMatcher(zerolog.Nop(), domain.NyaaConfig{})

	got := m.Match(watching, []domain.TorrentResult{
		result(1, "a", 10),
		result(2, "b", 300),
		result(3, "c", 10),
	})
	assert.Equal(t, []int{2, 3, 1}, ids(got))
}

func TestMatch_Preferences(t *testing.T) {
	m := NewMatcher(zerolog.Nop(), domain.NyaaConfig{
		Fansubs:      []string{"[SubsPlease]", "[Erai-raws]"},
		Resolutions:  []string{"1080p", "720p"},
		BatchMarkers: []string{"Batch"},
	})

	results := []domain.TorrentResult{
		result(1, "[Erai-raws] Yofukashi no Uta - 01 [1080p]", 500),
		result(2, "[SubsPlease] Yofukashi no Uta - 01 (720p)", 50),
		result(3, "[SubsPlease] Yofukashi no Uta - 01 (1080p)", 40),
		result(4, "[SubsPlease] Yofukashi no Uta (01-13) (1080p) [Batch]", 900),
		result(5, "[Random] Yofukashi no Uta - 01", 1000),
	}

	assert.Equal(t, []int{3, 2, 1, 5, 4}, ids(m.Match(watching, results)))

	completed := watching
	completed.Status = domain.StatusCompleted
	assert.Equal(t, []int{4, 3, 2, 1, 5}, ids(m.Match(completed, results)))
}

func TestMatch_LimitAndInvalid(t *testing.T) {
	m := NewMatcher(zerolog.Nop(), domain.NyaaConfig{MaxCandidates: 2})

	invalid := result(9, "no link", 999)
	invalid.DownloadURL = ""

	got := m.Match(watching, []domain.TorrentResult{
		result(1, "a", 1), result(2, "b", 2), result(3, "c", 3), result(3, "c", 3), invalid,
	})
	assert.Equal(t, []int{3, 2}, ids(got))
	for _, c := range got {
		assert.NoError(t, c.Validate())
	}

	assert.Empty(t, m.Match(watching, nil))
}
