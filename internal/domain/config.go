package domain

import "github.com/pkg/errors"

type Config struct {
	User              string        `mapstructure:"user"`
	Source            Source        `mapstructure:"source"`
	Statuses          []AnimeStatus `mapstructure:"statuses"`
	MalClientID       string        `mapstructure:"mal_client_id"`
	DatabasePath      string        `mapstructure:"db_path"`
	LogLevel          string        `mapstructure:"log_level"`
	DiscordWebhookURL string        `mapstructure:"discord_webhook_url"`
	Nyaa              NyaaConfig    `mapstructure:"nyaa"`
}

// ValidateProfile checks the settings needed to fetch a user's list
func (c *Config) ValidateProfile() error {
	if c.User == "" {
		return errors.New("user is required (set via config.yaml or ANIFEED_USER environment variable)")
	}
	if !c.Source.Valid() {
		return errors.Errorf("invalid source: %q", c.Source)
	}
	if c.Source == SourceMyAnimeList && c.MalClientID == "" {
		return errors.New("mal_client_id is required for MyAnimeList (set via config.yaml or ANIFEED_MAL_CLIENT_ID environment variable)")
	}
	return nil
}

// NyaaConfig holds torrent search and filtering preferences
type NyaaConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Category string `mapstructure:"category"`
	Filter   string `mapstructure:"filter"`

	// Fansubs and Resolutions are preferred title markers, e.g. "[SubsPlease]", "1080p"
	Fansubs       []string `mapstructure:"fansubs"`
	Resolutions   []string `mapstructure:"resolutions"`
	BatchMarkers  []string `mapstructure:"batch_markers"`
	MaxCandidates int      `mapstructure:"max_candidates"`
}
