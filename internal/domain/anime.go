package domain

import (
	"fmt"
	"strings"
)

// Source is the profile provider an anime entry was fetched from
type Source string

const (
	SourceAniList     Source = "ANILIST"
	SourceMyAnimeList Source = "MYANIMELIST"
)

// Sources lists every recognised source
var Sources = []Source{SourceAniList, SourceMyAnimeList}

func (s Source) Valid() bool {
	return s == SourceAniList || s == SourceMyAnimeList
}

func (s Source) String() string {
	return string(s)
}

// ParseSource accepts the stored names as well as the short config aliases
// ("anilist", "mal").
func ParseSource(v string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "anilist":
		return SourceAniList, nil
	case "mal", "myanimelist":
		return SourceMyAnimeList, nil
	}
	return "", &ValidationError{Field: "source", Reason: fmt.Sprintf("unknown source %q", v)}
}

// AnimeStatus is the user's list status for an entry
type AnimeStatus string

const (
	StatusPlanning  AnimeStatus = "PLANNING"
	StatusWatching  AnimeStatus = "WATCHING"
	StatusCompleted AnimeStatus = "COMPLETED"
	StatusDropped   AnimeStatus = "DROPPED"
	StatusPaused    AnimeStatus = "PAUSED"
	StatusRepeating AnimeStatus = "REPEATING"
)

var Statuses = []AnimeStatus{
	StatusPlanning,
	StatusWatching,
	StatusCompleted,
	StatusDropped,
	StatusPaused,
	StatusRepeating,
}

func (s AnimeStatus) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s AnimeStatus) String() string {
	return string(s)
}

func ParseStatus(v string) (AnimeStatus, error) {
	st := AnimeStatus(strings.ToUpper(strings.TrimSpace(v)))
	if !st.Valid() {
		return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", v)}
	}
	return st, nil
}

// AnimeKey is the composite identity of an anime entry
type AnimeKey struct {
	ID     int    `json:"animeId" yaml:"animeId"`
	Source Source `json:"source" yaml:"source"`
}

func (k AnimeKey) String() string {
	return fmt.Sprintf("%s:%d", k.Source, k.ID)
}

func (k AnimeKey) Validate() error {
	if k.ID <= 0 {
		return &ValidationError{Field: "anime_id", Reason: "must be positive"}
	}
	if !k.Source.Valid() {
		return &ValidationError{Field: "source", Reason: fmt.Sprintf("unknown source %q", k.Source)}
	}
	return nil
}

// AnimeEntry is one title tracked under one profile source
type AnimeEntry struct {
	AnimeID      int         `json:"animeId" yaml:"animeId"`
	Source       Source      `json:"source" yaml:"source"`
	TitleRomaji  string      `json:"titleRomaji" yaml:"titleRomaji"`
	TitleEnglish string      `json:"titleEnglish" yaml:"titleEnglish"`
	Status       AnimeStatus `json:"status" yaml:"status"`
	Episodes     *int        `json:"episodes,omitempty" yaml:"episodes,omitempty"`
}

func (a AnimeEntry) Key() AnimeKey {
	return AnimeKey{ID: a.AnimeID, Source: a.Source}
}

// SearchTitle returns the title used to query torrent indexes
func (a AnimeEntry) SearchTitle() string {
	if t := strings.TrimSpace(a.TitleRomaji); t != "" {
		return t
	}
	return strings.TrimSpace(a.TitleEnglish)
}

// Validate checks the entry before it is written
func (a AnimeEntry) Validate() error {
	if err := a.Key().Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(a.TitleRomaji) == "" && strings.TrimSpace(a.TitleEnglish) == "" {
		return &ValidationError{Field: "title", Reason: "romaji and english titles are both empty"}
	}
	if !a.Status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", a.Status)}
	}
	if a.Episodes != nil && *a.Episodes < 0 {
		return &ValidationError{Field: "episodes", Reason: "must not be negative"}
	}
	return nil
}

// AnimeSort selects the ordering of ListAnime results
type AnimeSort string

const (
	AnimeSortNone  AnimeSort = ""
	AnimeSortTitle AnimeSort = "title"
	AnimeSortID    AnimeSort = "id"
)

// AnimeFilter narrows ListAnime. Zero values match everything.
type AnimeFilter struct {
	Status AnimeStatus
	Source Source
	Sort   AnimeSort
}

func (f AnimeFilter) Validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", f.Status)}
	}
	if f.Source != "" && !f.Source.Valid() {
		return &ValidationError{Field: "source", Reason: fmt.Sprintf("unknown source %q", f.Source)}
	}
	switch f.Sort {
	case AnimeSortNone, AnimeSortTitle, AnimeSortID:
	default:
		return &ValidationError{Field: "sort", Reason: fmt.Sprintf("unknown sort %q", f.Sort)}
	}
	return nil
}

// IntPtr is a helper for optional integer fields
func IntPtr(v int) *int {
	return &v
}

func StringPtr(v string) *string {
	return &v
}
