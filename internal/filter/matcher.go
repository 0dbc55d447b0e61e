package filter

import (
	"cmp"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/varoOP/anifeed/internal/domain"
)

// Matcher ranks search results by the configured release preferences and
// keeps the best few as candidates.
type Matcher struct {
	log           zerolog.Logger
	fansubs       []string
	resolutions   []string
	batchMarkers  []string
	maxCandidates int
}

var _ domain.Matcher = (*Matcher)(nil)

func NewMatcher(log zerolog.Logger, cfg domain.NyaaConfig) *Matcher {
	return &Matcher{
		log:           log.With().Str("module", "filter").Logger(),
		fansubs:       lower(cfg.Fansubs),
		resolutions:   lower(cfg.Resolutions),
		batchMarkers:  lower(cfg.BatchMarkers),
		maxCandidates: cfg.MaxCandidates,
	}
}

type ranked struct {
	result     domain.TorrentResult
	batchRank  int
	fansubRank int
	resRank    int
}

// Match orders results and converts the top ones to candidates.
// Order of preference:
//  1. batch releases first for COMPLETED entries, single episodes first otherwise
//  2. earlier entries of the fansub list
//  3. earlier entries of the resolution list
//  4. more seeders
//  5. newer torrent id
//
// Results that fail candidate validation are dropped.
func (m *Matcher) Match(entry domain.AnimeEntry, results []domain.TorrentResult) []domain.TorrentCandidate {
	items := make([]ranked, 0, len(results))
	seen := make(map[int]struct{}, len(results))

	for _, r := range results {
		if _, ok := seen[r.TorrentID]; ok {
			continue
		}
		if err := r.Candidate().Validate(); err != nil {
			m.log.Debug().Err(err).Int("torrent", r.TorrentID).Msg("Dropping invalid result")
			continue
		}
		seen[r.TorrentID] = struct{}{}

		title := strings.ToLower(r.Title)
		isBatch := indexOf(m.batchMarkers, title) < len(m.batchMarkers)

		batchRank := 0
		if isBatch != (entry.Status == domain.StatusCompleted) {
			batchRank = 1
		}

		items = append(items, ranked{
			result:     r,
			batchRank:  batchRank,
			fansubRank: indexOf(m.fansubs, title),
			resRank:    indexOf(m.resolutions, title),
		})
	}

	slices.SortStableFunc(items, func(a, b ranked) int {
		return cmp.Or(
			cmp.Compare(a.batchRank, b.batchRank),
			cmp.Compare(a.fansubRank, b.fansubRank),
			cmp.Compare(a.resRank, b.resRank),
			cmp.Compare(b.result.Seeders, a.result.Seeders),
			cmp.Compare(b.result.TorrentID, a.result.TorrentID),
		)
	})

	if m.maxCandidates > 0 && len(items) > m.maxCandidates {
		items = items[:m.maxCandidates]
	}

	candidates := make([]domain.TorrentCandidate, 0, len(items))
	for _, it := range items {
		candidates = append(candidates, it.result.Candidate())
	}

	m.log.Trace().Str("anime", entry.Key().String()).Int("results", len(results)).Int("candidates", len(candidates)).Msg("Matched torrents")

	return candidates
}

// indexOf returns the position of the first marker contained in title,
// or len(markers) when none is.
func indexOf(markers []string, title string) int {
	for i, marker := range markers {
		if strings.Contains(title, marker) {
			return i
		}
	}
	return len(markers)
}

func lower(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
