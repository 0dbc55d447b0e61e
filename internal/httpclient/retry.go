package httpclient

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultMaxRetries = 3
	DefaultBackoff    = 300 * time.Millisecond
	MaxDelay          = 30 * time.Second
)

// Retryable reports whether a response status is worth another attempt
func Retryable(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// RetryAfter returns the delay requested by the Retry-After header of resp,
// or fallback when there is none.
func RetryAfter(resp *http.Response, fallback time.Duration) time.Duration {
	if resp == nil {
		return fallback
	}
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return fallback
	}
	return min(time.Duration(secs)*time.Second, MaxDelay)
}

// RetryTransport retries requests that fail with a transport error or a
// Retryable status, doubling the delay after every attempt.
type RetryTransport struct {
	Transport  http.RoundTripper
	MaxRetries int
	Backoff    time.Duration

	log zerolog.Logger
}

func NewRetryTransport(log zerolog.Logger, next http.RoundTripper) *RetryTransport {
	return &RetryTransport{
		Transport:  next,
		MaxRetries: DefaultMaxRetries,
		Backoff:    DefaultBackoff,
		log:        log,
	}
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.Transport
	if next == nil {
		next = http.DefaultTransport
	}

	delay := t.Backoff
	for attempt := 0; ; attempt++ {
		r := req
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r = req.Clone(req.Context())
			r.Body = body
		}

		resp, err := next.RoundTrip(r)
		if attempt >= t.MaxRetries || !t.shouldRetry(req, resp, err) {
			return resp, err
		}

		wait := RetryAfter(resp, delay)
		event := t.log.Warn().Str("url", req.URL.Redacted()).Int("attempt", attempt+1).Dur("delay", wait)
		if err != nil {
			event = event.Err(err)
		} else {
			event = event.Int("status", resp.StatusCode)
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		event.Msg("Retrying request")

		timer := time.NewTimer(wait)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
		delay = min(delay*2, MaxDelay)
	}
}

func (t *RetryTransport) shouldRetry(req *http.Request, resp *http.Response, err error) bool {
	// a consumed body can only be replayed through GetBody
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return false
	}
	if err != nil {
		return req.Context().Err() == nil
	}
	return Retryable(resp.StatusCode)
}
