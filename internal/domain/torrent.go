package domain

import (
	"net/url"
	"strings"
)

// TorrentResult is a raw hit returned by a torrent index search
type TorrentResult struct {
	TorrentID   int
	Title       string
	DownloadURL string
	Size        string
	Seeders     int
	Leechers    int
}

// Candidate converts a search hit into a storable candidate
func (r TorrentResult) Candidate() TorrentCandidate {
	c := TorrentCandidate{
		TorrentID:   r.TorrentID,
		Title:       r.Title,
		DownloadURL: r.DownloadURL,
		Seeders:     IntPtr(r.Seeders),
		Leechers:    IntPtr(r.Leechers),
	}
	if r.Size != "" {
		c.Size = StringPtr(r.Size)
	}
	return c
}

// TorrentCandidate is a potential download for an anime entry.
// SK is assigned by the store and is zero until the candidate is persisted.
type TorrentCandidate struct {
	SK          int64    `json:"torrentSk" yaml:"torrentSk"`
	TorrentID   int      `json:"torrentId" yaml:"torrentId"`
	Title       string   `json:"title" yaml:"title"`
	DownloadURL string   `json:"downloadUrl" yaml:"downloadUrl"`
	Size        *string  `json:"size,omitempty" yaml:"size,omitempty"`
	Seeders     *int     `json:"seeders,omitempty" yaml:"seeders,omitempty"`
	Leechers    *int     `json:"leechers,omitempty" yaml:"leechers,omitempty"`
	Anime       AnimeKey `json:"anime" yaml:"anime"`
}

func (c TorrentCandidate) Validate() error {
	if c.TorrentID <= 0 {
		return &ValidationError{Field: "torrent_id", Reason: "must be positive"}
	}
	if strings.TrimSpace(c.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	u, err := url.Parse(c.DownloadURL)
	if err != nil || u.Scheme == "" || (u.Host == "" && u.Opaque == "" && u.RawQuery == "") {
		return &ValidationError{Field: "download_url", Reason: "must be an absolute URI"}
	}
	if c.Seeders != nil && *c.Seeders < 0 {
		return &ValidationError{Field: "seeders", Reason: "must not be negative"}
	}
	if c.Leechers != nil && *c.Leechers < 0 {
		return &ValidationError{Field: "leechers", Reason: "must not be negative"}
	}
	return nil
}

// TorrentSort selects the ordering of ListTorrentsForAnime results
type TorrentSort string

const (
	// TorrentSortInsertion orders by surrogate key
	TorrentSortInsertion TorrentSort = ""
	// TorrentSortSeeders puts the best seeded candidate first, unknown counts last
	TorrentSortSeeders TorrentSort = "seeders"
)

func (s TorrentSort) Validate() error {
	switch s {
	case TorrentSortInsertion, TorrentSortSeeders:
		return nil
	}
	return &ValidationError{Field: "sort", Reason: "unknown torrent sort " + string(s)}
}

// FeedItem is the joined anime + candidates view read by consumers
type FeedItem struct {
	Anime    AnimeEntry         `json:"anime" yaml:"anime"`
	Torrents []TorrentCandidate `json:"torrents" yaml:"torrents"`
}
