package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/anifeed/internal/domain"
)

const (
	colorSuccess = 0x00ff00
	colorWarning = 0xffa500
	colorError   = 0xff0000

	// Discord rejects embed descriptions over 4096 characters
	maxDescription = 4000
)

// DiscordService implements NotificationService for Discord webhooks
type DiscordService struct {
	log        zerolog.Logger
	webhookURL string
	httpClient *http.Client
}

// NewDiscordService creates a new Discord notification service
func NewDiscordService(log zerolog.Logger, webhookURL string) *DiscordService {
	return &DiscordService{
		log:        log.With().Str("module", "notification").Str("type", "discord").Logger(),
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendSuccess sends a sync summary. Runs where some searches failed are
// reported in orange.
func (s *DiscordService) SendSuccess(ctx context.Context, stats domain.Statistics) error {
	if s.webhookURL == "" {
		return nil
	}

	color := colorSuccess
	if stats.SearchFailures > 0 {
		color = colorWarning
	}

	embed := discordEmbed{
		Title:       "anifeed sync completed",
		Description: fmt.Sprintf("Synced %s list of **%s**", strings.ToLower(string(stats.Source)), stats.User),
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields: []discordField{
			{Name: "Anime fetched", Value: fmt.Sprint(stats.AnimeFetched), Inline: true},
			{Name: "Anime searched", Value: fmt.Sprint(stats.AnimeSearched), Inline: true},
			{Name: "Search failures", Value: fmt.Sprint(stats.SearchFailures), Inline: true},
			{Name: "Candidates stored", Value: fmt.Sprint(stats.CandidatesStored), Inline: true},
			{Name: "Without match", Value: fmt.Sprint(stats.AnimeWithoutMatch), Inline: true},
			{Name: "Cache", Value: fmt.Sprintf("%d anime, %d torrents", stats.TotalAnime, stats.TotalTorrents), Inline: false},
		},
		Footer: &discordFooter{Text: "run " + stats.RunID},
	}

	return s.sendWebhook(ctx, discordWebhook{Embeds: []discordEmbed{embed}})
}

// SendError sends an error notification with error details
func (s *DiscordService) SendError(ctx context.Context, err error) error {
	if s.webhookURL == "" {
		return nil
	}

	msg := truncate(err.Error(), maxDescription)

	embed := discordEmbed{
		Title:       "anifeed sync failed",
		Description: fmt.Sprintf("Sync failed with error:\n```%s```", msg),
		Color:       colorError,
		Timestamp:   time.Now().Format(time.RFC3339),
	}

	return s.sendWebhook(ctx, discordWebhook{Embeds: []discordEmbed{embed}})
}

// sendWebhook sends a webhook payload to Discord
func (s *DiscordService) sendWebhook(ctx context.Context, payload discordWebhook) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return errors.Wrap(err, "failed to create webhook request")
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send webhook request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("webhook request failed with status %d", resp.StatusCode)
	}

	s.log.Debug().Msg("Discord notification sent successfully")
	return nil
}

type discordWebhook struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Fields      []discordField `json:"fields,omitempty"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

// truncate cuts s to at most n runes. Discord counts characters, and a cut
// inside a rune would send invalid UTF-8.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
