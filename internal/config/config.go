package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/varoOP/anifeed/internal/domain"
	"github.com/varoOP/anifeed/internal/logger"
)

var (
	nyaaCategories = []string{"1_0", "1_2", "1_3", "1_4"}
	nyaaFilters    = []string{"0", "1", "2"}

	categoryAliases = map[string]string{
		"anime":       "1_0",
		"english":     "1_2",
		"non-english": "1_3",
		"raw":         "1_4",
	}
)

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("source", "anilist")
	v.SetDefault("statuses", []string{string(domain.StatusWatching)})
	v.SetDefault("db_path", "./anifeed.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("nyaa.base_url", "https://nyaa.si")
	v.SetDefault("nyaa.category", "1_2")
	v.SetDefault("nyaa.filter", "0")
	v.SetDefault("nyaa.batch_markers", []string{"Batch", "Complete", "BD"})
	v.SetDefault("nyaa.max_candidates", 5)
}

// Load loads configuration from multiple sources:
// 1. Config file (config.yaml or $HOME/.anifeed.yaml, optional)
// 2. Environment variables (ANIFEED_*)
// 3. Flags bound by the CLI
func Load() (*domain.Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom builds and validates a Config from v
func LoadFrom(v *viper.Viper) (*domain.Config, error) {
	SetDefaults(v)

	cfg := &domain.Config{
		User:              strings.TrimSpace(v.GetString("user")),
		MalClientID:       v.GetString("mal_client_id"),
		DatabasePath:      v.GetString("db_path"),
		LogLevel:          v.GetString("log_level"),
		DiscordWebhookURL: v.GetString("discord_webhook_url"),
		Nyaa: domain.NyaaConfig{
			BaseURL:       strings.TrimRight(v.GetString("nyaa.base_url"), "/"),
			Category:      categoryValue(v.Get("nyaa.category")),
			Filter:        v.GetString("nyaa.filter"),
			Fansubs:       splitList(v.GetStringSlice("nyaa.fansubs")),
			Resolutions:   splitList(v.GetStringSlice("nyaa.resolutions")),
			BatchMarkers:  splitList(v.GetStringSlice("nyaa.batch_markers")),
			MaxCandidates: v.GetInt("nyaa.max_candidates"),
		},
	}

	source, err := domain.ParseSource(v.GetString("source"))
	if err != nil {
		return nil, err
	}
	cfg.Source = source

	for _, s := range splitList(v.GetStringSlice("statuses")) {
		status, err := domain.ParseStatus(s)
		if err != nil {
			return nil, err
		}
		cfg.Statuses = append(cfg.Statuses, status)
	}
	if len(cfg.Statuses) == 0 {
		return nil, errors.New("statuses must list at least one status")
	}

	if cfg.DatabasePath == "" {
		return nil, errors.New("db_path must not be empty")
	}

	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	if err := validateNyaa(cfg.Nyaa); err != nil {
		return nil, err
	}

	if cfg.DiscordWebhookURL != "" {
		if u, err := url.Parse(cfg.DiscordWebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
			return nil, errors.Errorf("invalid discord_webhook_url: %q", cfg.DiscordWebhookURL)
		}
	}

	return cfg, nil
}

func validateNyaa(n domain.NyaaConfig) error {
	u, err := url.Parse(n.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Errorf("invalid nyaa.base_url: %q", n.BaseURL)
	}
	if !slices.Contains(nyaaCategories, n.Category) {
		return errors.Errorf("invalid nyaa.category: %s (must be one of %s)", n.Category, strings.Join(nyaaCategories, ", "))
	}
	if !slices.Contains(nyaaFilters, n.Filter) {
		return errors.Errorf("invalid nyaa.filter: %s (must be 0, 1 or 2)", n.Filter)
	}
	if n.MaxCandidates < 0 {
		return errors.Errorf("nyaa.max_candidates must not be negative, got %d", n.MaxCandidates)
	}
	return nil
}

// categoryValue normalises nyaa.category. YAML reads an unquoted 1_2 as the
// integer 12, so two digit integers are mapped back to N_M.
func categoryValue(raw any) string {
	var n int64
	switch t := raw.(type) {
	case int:
		n = int64(t)
	case int64:
		n = t
	case uint64:
		n = int64(t)
	case float64:
		if t != float64(int64(t)) {
			return fmt.Sprint(t)
		}
		n = int64(t)
	case string:
		c := strings.ToLower(strings.TrimSpace(t))
		if alias, ok := categoryAliases[c]; ok {
			return alias
		}
		return c
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}

	if n < 10 || n > 99 {
		return fmt.Sprint(n)
	}
	return fmt.Sprintf("%d_%d", n/10, n%10)
}

// splitList accepts both YAML lists and comma separated env values
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
