package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/varoOP/anifeed/internal/domain"
	"github.com/varoOP/anifeed/internal/httpclient"
)

const (
	DefaultURL = "https://graphql.anilist.co"

	// AniList allows ~90 requests per minute
	rateLimit = 1
	rateBurst = 5

	maxRetries = httpclient.DefaultMaxRetries
)

const userListQuery = `
query ($userName: String, $status: MediaListStatus) {
	MediaListCollection(userName: $userName, type: ANIME, status: $status) {
		lists {
			entries {
				media {
					id
					title {
						romaji
						english
					}
					episodes
				}
			}
		}
	}
}`

var statusMap = map[domain.AnimeStatus]string{
	domain.StatusWatching:  "CURRENT",
	domain.StatusPlanning:  "PLANNING",
	domain.StatusCompleted: "COMPLETED",
	domain.StatusDropped:   "DROPPED",
	domain.StatusPaused:    "PAUSED",
	domain.StatusRepeating: "REPEATING",
}

type Service interface {
	domain.ProfileFetcher
}

type service struct {
	log          zerolog.Logger
	client       *http.Client
	url          string
	limiter      *rate.Limiter
	initialDelay time.Duration
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"errors,omitempty"`
}

type mediaListCollection struct {
	MediaListCollection *struct {
		Lists []struct {
			Entries []struct {
				Media struct {
					ID    int `json:"id"`
					Title struct {
						Romaji  string `json:"romaji"`
						English string `json:"english"`
					} `json:"title"`
					Episodes *int `json:"episodes"`
				} `json:"media"`
			} `json:"entries"`
		} `json:"lists"`
	} `json:"MediaListCollection"`
}

// Option customises the service
type Option func(*service)

func WithHTTPClient(c *http.Client) Option {
	return func(s *service) {
		s.client = c
	}
}

func WithURL(u string) Option {
	return func(s *service) {
		s.url = u
	}
}

func WithLimiter(l *rate.Limiter) Option {
	return func(s *service) {
		s.limiter = l
	}
}

// WithRetryDelay sets the first backoff delay; it doubles per retry
func WithRetryDelay(d time.Duration) Option {
	return func(s *service) {
		s.initialDelay = d
	}
}

func NewService(log zerolog.Logger, opts ...Option) Service {
	s := &service{
		log:          log.With().Str("module", "anilist").Logger(),
		client:       &http.Client{Timeout: 30 * time.Second},
		url:          DefaultURL,
		limiter:      rate.NewLimiter(rate.Limit(rateLimit), rateBurst),
		initialDelay: time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *service) Source() domain.Source {
	return domain.SourceAniList
}

// FetchUserList returns username's anime list entries in the given status
func (s *service) FetchUserList(ctx context.Context, username string, status domain.AnimeStatus) ([]domain.AnimeEntry, error) {
	anilistStatus, ok := statusMap[status]
	if !ok {
		return nil, &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("%q has no AniList equivalent", status)}
	}
	if username == "" {
		return nil, &domain.ValidationError{Field: "user", Reason: "must not be empty"}
	}

	s.log.Info().Str("user", username).Str("status", string(status)).Msg("Getting anime list from anilist..")

	var result mediaListCollection
	err := s.doRequest(ctx, userListQuery, map[string]any{
		"userName": username,
		"status":   anilistStatus,
	}, &result)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch %s list of %s", anilistStatus, username)
	}

	if result.MediaListCollection == nil {
		return nil, &domain.NotFoundError{What: fmt.Sprintf("anilist user %s", username)}
	}

	entries := []domain.AnimeEntry{}
	seen := make(map[int]struct{})
	for _, list := range result.MediaListCollection.Lists {
		for _, e := range list.Entries {
			// custom lists repeat entries of the status lists
			if _, ok := seen[e.Media.ID]; ok {
				continue
			}
			seen[e.Media.ID] = struct{}{}

			entry := domain.AnimeEntry{
				AnimeID:      e.Media.ID,
				Source:       domain.SourceAniList,
				TitleRomaji:  e.Media.Title.Romaji,
				TitleEnglish: e.Media.Title.English,
				Status:       status,
				Episodes:     e.Media.Episodes,
			}
			if entry.TitleEnglish == "" {
				entry.TitleEnglish = entry.TitleRomaji
			}
			if entry.TitleRomaji == "" {
				entry.TitleRomaji = entry.TitleEnglish
			}
			entries = append(entries, entry)
		}
	}

	s.log.Debug().Int("count", len(entries)).Str("status", string(status)).Msg("Fetched anilist entries")

	return entries, nil
}

// doRequest performs a GraphQL request with rate limiting and retries on
// 429 and 5xx responses
func (s *service) doRequest(ctx context.Context, query string, variables map[string]any, result any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return errors.Wrap(err, "failed to marshal request")
	}

	delay := s.initialDelay
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			s.log.Warn().Err(lastErr).Int("attempt", attempt).Dur("delay", delay).Msg("Retrying anilist request")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, httpclient.MaxDelay)
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limiter")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return errors.Wrap(err, "failed to create request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = errors.Wrap(err, "failed to fetch")
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return errors.Wrap(err, "failed to read response body")
		}

		if httpclient.Retryable(resp.StatusCode) {
			lastErr = errors.Errorf("HTTP %d", resp.StatusCode)
			delay = httpclient.RetryAfter(resp, delay)
			continue
		}

		var gqlResp graphQLResponse
		if err := json.Unmarshal(respBody, &gqlResp); err != nil {
			if resp.StatusCode != http.StatusOK {
				return errors.Errorf("unexpected status code %d", resp.StatusCode)
			}
			return errors.Wrap(err, "failed to parse GraphQL response")
		}

		if len(gqlResp.Errors) > 0 {
			msgs := make([]string, 0, len(gqlResp.Errors))
			for _, e := range gqlResp.Errors {
				msgs = append(msgs, e.Message)
			}
			// AniList answers unknown users with a 404 and a GraphQL error
			if resp.StatusCode == http.StatusNotFound {
				return &domain.NotFoundError{What: fmt.Sprintf("anilist user %v (%s)", variables["userName"], strings.Join(msgs, "; "))}
			}
			return errors.Errorf("GraphQL errors: %s", strings.Join(msgs, "; "))
		}

		if resp.StatusCode != http.StatusOK {
			return errors.Errorf("unexpected status code %d", resp.StatusCode)
		}

		if err := json.Unmarshal(gqlResp.Data, result); err != nil {
			return errors.Wrap(err, "failed to parse data")
		}

		return nil
	}

	return errors.Wrapf(lastErr, "request failed after %d attempts", maxRetries+1)
}
