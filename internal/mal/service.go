package mal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/varoOP/anifeed/internal/domain"
	"github.com/varoOP/anifeed/internal/httpclient"
)

const (
	DefaultBaseURL = "https://api.myanimelist.net/v2"

	listFields = "id,title,alternative_titles,num_episodes,list_status"
	pageLimit  = 1000
)

// statusMap translates list statuses to MAL's list_status values.
// MAL has no rewatching list; REPEATING entries are the watching ones
// flagged is_rewatching.
var statusMap = map[domain.AnimeStatus]string{
	domain.StatusWatching:  "watching",
	domain.StatusPlanning:  "plan_to_watch",
	domain.StatusCompleted: "completed",
	domain.StatusDropped:   "dropped",
	domain.StatusPaused:    "on_hold",
	domain.StatusRepeating: "watching",
}

type Service interface {
	domain.ProfileFetcher
}

type service struct {
	log     zerolog.Logger
	client  *http.Client
	retry   *httpclient.RetryTransport
	baseURL string
	limiter *rate.Limiter
}

type animeListResponse struct {
	Data []struct {
		Node struct {
			ID                int    `json:"id"`
			Title             string `json:"title"`
			NumEpisodes       int    `json:"num_episodes"`
			AlternativeTitles struct {
				Synonyms []string `json:"synonyms"`
				English  string   `json:"en"`
				Japanese string   `json:"ja"`
			} `json:"alternative_titles"`
		} `json:"node"`
		ListStatus struct {
			Status       string `json:"status"`
			IsRewatching bool   `json:"is_rewatching"`
		} `json:"list_status"`
	} `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

type clientIDTransport struct {
	Transport http.RoundTripper
	ClientID  string
}

func (c *clientIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	transport := c.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	req = req.Clone(req.Context())
	req.Header.Set("X-MAL-CLIENT-ID", c.ClientID)
	return transport.RoundTrip(req)
}

// Option customises the service
type Option func(*service)

// WithTransport sets the round tripper underneath the retrying transport
func WithTransport(rt http.RoundTripper) Option {
	return func(s *service) {
		s.retry.Transport = rt
	}
}

// WithRetryDelay sets the first backoff delay after a 5xx response
func WithRetryDelay(d time.Duration) Option {
	return func(s *service) {
		s.retry.Backoff = d
	}
}

// WithBaseURL points the service at another API root
func WithBaseURL(baseURL string) Option {
	return func(s *service) {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLimiter replaces the default request rate limiter
func WithLimiter(l *rate.Limiter) Option {
	return func(s *service) {
		s.limiter = l
	}
}

func NewService(log zerolog.Logger, clientID string, opts ...Option) Service {
	log = log.With().Str("module", "mal").Logger()
	retry := httpclient.NewRetryTransport(log, nil)

	s := &service{
		log: log,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: &clientIDTransport{Transport: retry, ClientID: clientID},
		},
		retry:   retry,
		baseURL: DefaultBaseURL,
		limiter: rate.NewLimiter(rate.Every(700*time.Millisecond), 3),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *service) Source() domain.Source {
	return domain.SourceMyAnimeList
}

// FetchUserList returns every entry of username's list in the given status,
// following paging.next until the list is exhausted.
func (s *service) FetchUserList(ctx context.Context, username string, status domain.AnimeStatus) ([]domain.AnimeEntry, error) {
	malStatus, ok := statusMap[status]
	if !ok {
		return nil, &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("%q has no MyAnimeList equivalent", status)}
	}
	if username == "" {
		return nil, &domain.ValidationError{Field: "user", Reason: "must not be empty"}
	}

	params := url.Values{}
	params.Set("status", malStatus)
	params.Set("fields", listFields)
	params.Set("limit", fmt.Sprint(pageLimit))
	params.Set("nsfw", "true")

	next := fmt.Sprintf("%s/users/%s/animelist?%s", s.baseURL, url.PathEscape(username), params.Encode())

	s.log.Info().Str("user", username).Str("status", string(status)).Msg("Getting anime list from myanimelist..")

	entries := []domain.AnimeEntry{}
	for next != "" {
		page, err := s.fetchPage(ctx, next)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to fetch %s list of %s", malStatus, username)
		}

		for _, v := range page.Data {
			if status == domain.StatusRepeating && !v.ListStatus.IsRewatching {
				continue
			}

			entry := domain.AnimeEntry{
				AnimeID:      v.Node.ID,
				Source:       domain.SourceMyAnimeList,
				TitleRomaji:  v.Node.Title,
				TitleEnglish: v.Node.AlternativeTitles.English,
				Status:       status,
			}
			if entry.TitleEnglish == "" {
				entry.TitleEnglish = entry.TitleRomaji
			}
			// MAL reports 0 for unknown episode counts
			if v.Node.NumEpisodes > 0 {
				entry.Episodes = domain.IntPtr(v.Node.NumEpisodes)
			}
			entries = append(entries, entry)
		}

		next = page.Paging.Next
	}

	s.log.Debug().Int("count", len(entries)).Str("status", string(status)).Msg("Fetched myanimelist entries")

	return entries, nil
}

func (s *service) fetchPage(ctx context.Context, pageURL string) (*animeListResponse, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected status code %d from %s", resp.StatusCode, req.URL.Redacted())
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	page := &animeListResponse{}
	if err := json.Unmarshal(body, page); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}

	return page, nil
}
