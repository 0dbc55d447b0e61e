package nyaa

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly"
	"github.com/gocolly/colly/extensions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/anifeed/internal/domain"
	"github.com/varoOP/anifeed/internal/httpclient"
)

type Service interface {
	domain.TorrentSearcher
}

type service struct {
	log       zerolog.Logger
	config    domain.NyaaConfig
	collector *colly.Collector
	mu        sync.Mutex
}

type settings struct {
	transport    http.RoundTripper
	delay        time.Duration
	randomDelay  time.Duration
	retryBackoff time.Duration
}

// Option customises the collector
type Option func(*settings)

// WithTransport replaces the collector's http transport
func WithTransport(rt http.RoundTripper) Option {
	return func(s *settings) {
		s.transport = rt
	}
}

// WithDelay sets the delay between requests to the index
func WithDelay(d time.Duration) Option {
	return func(s *settings) {
		s.delay = d
		s.randomDelay = 0
	}
}

// WithRetryDelay sets the first backoff delay after a 5xx response
func WithRetryDelay(d time.Duration) Option {
	return func(s *settings) {
		s.retryBackoff = d
	}
}

func NewService(log zerolog.Logger, config domain.NyaaConfig, opts ...Option) Service {
	log = log.With().Str("module", "nyaa").Logger()

	set := &settings{
		delay:        2 * time.Second,
		randomDelay:  time.Second,
		retryBackoff: httpclient.DefaultBackoff,
	}
	for _, opt := range opts {
		opt(set)
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(30 * time.Second)
	extensions.RandomUserAgent(c)

	retry := httpclient.NewRetryTransport(log, set.transport)
	retry.Backoff = set.retryBackoff
	c.WithTransport(retry)

	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       set.delay,
		RandomDelay: set.randomDelay,
		Parallelism: 1,
	}); err != nil {
		log.Warn().Err(err).Msg("invalid nyaa rate limit rule")
	}

	return &service{
		log:       log,
		config:    config,
		collector: c,
	}
}

// SearchURL builds the search page URL sorted by seeders, most first
func SearchURL(config domain.NyaaConfig, query string) string {
	params := url.Values{}
	params.Set("q", query)
	params.Set("f", config.Filter)
	params.Set("c", config.Category)
	params.Set("s", "seeders")
	params.Set("o", "desc")
	return strings.TrimRight(config.BaseURL, "/") + "/?" + params.Encode()
}

// Search scrapes the first result page for query
func (s *service) Search(ctx context.Context, query string) ([]domain.TorrentResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &domain.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		results  []domain.TorrentResult
		parseErr error
	)

	s.mu.Lock()
	cc := s.collector.Clone()
	s.mu.Unlock()

	cc.OnRequest(func(r *colly.Request) {
		s.log.Debug().Str("url", r.URL.String()).Msg("visiting")
	})

	cc.OnResponse(func(r *colly.Response) {
		results, parseErr = ParseSearchResults(bytes.NewReader(r.Body), r.Request.URL)
	})

	searchURL := SearchURL(s.config, query)
	if err := cc.Visit(searchURL); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.Wrapf(err, "failed to search nyaa for %q", query)
	}
	cc.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, errors.Wrapf(parseErr, "failed to parse results for %q", query)
	}
	if results == nil {
		results = []domain.TorrentResult{}
	}

	s.log.Debug().Str("query", query).Int("results", len(results)).Msg("Searched nyaa")

	return results, nil
}
