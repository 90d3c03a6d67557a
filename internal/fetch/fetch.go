// Package fetch downloads pages for the ingestion pipeline. Each request is
// bounded by a per-attempt timeout and retried with jittered exponential
// backoff; hosts that keep failing are short-circuited by a breaker.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/newsrank/internal/config"
	"github.com/TobiSchelling/newsrank/internal/logging"
	"github.com/TobiSchelling/newsrank/internal/metrics"
)

const maxBodyBytes = 10 << 20

var (
	// ErrEmptyContent is returned when a page yields no usable text.
	ErrEmptyContent = errors.New("empty content")
	// ErrDisallowed is returned when robots.txt forbids the URL.
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Permanent reports whether retrying cannot help. Client errors are permanent
// except request timeout and rate limiting.
func (e *StatusError) Permanent() bool {
	return e.Code >= 400 && e.Code < 500 &&
		e.Code != http.StatusRequestTimeout && e.Code != http.StatusTooManyRequests
}

// Options configures a Fetcher.
type Options struct {
	Attempts          int
	AttemptTimeout    time.Duration
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	RequestsPerSecond float64 // 0 disables the limiter
	RespectRobots     bool
	UserAgent         string

	// BreakerThreshold is the number of consecutive failures that opens a
	// host's circuit. BreakerCooldown is how long it stays open.
	BreakerThreshold uint32
	BreakerCooldown  time.Duration

	Client *http.Client
}

// OptionsFromConfig maps the ingest config section onto fetcher options.
func OptionsFromConfig(cfg config.Ingest) Options {
	return Options{
		Attempts:          cfg.Attempts,
		AttemptTimeout:    cfg.AttemptTimeout.Std(),
		BackoffInitial:    cfg.BackoffInitial.Std(),
		BackoffMax:        cfg.BackoffMax.Std(),
		RequestsPerSecond: cfg.RequestsPerSecond,
		RespectRobots:     cfg.RespectRobots,
		UserAgent:         cfg.UserAgent,
	}
}

// Fetcher retrieves pages over HTTP. It is safe for concurrent use.
type Fetcher struct {
	opts    Options
	client  *http.Client
	limiter *rate.Limiter

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
	robots   *robotsCache
}

// New creates a Fetcher, filling zero options with defaults.
func New(opts Options) *Fetcher {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 5 * time.Second
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = 250 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 2 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "newsrank/1.0 (news recommender)"
	}
	if opts.BreakerThreshold == 0 {
		opts.BreakerThreshold = 10
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		}
	}

	f := &Fetcher{
		opts:     opts,
		client:   client,
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
	if opts.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	if opts.RespectRobots {
		f.robots = newRobotsCache(client, opts.UserAgent, opts.AttemptTimeout)
	}
	return f
}

// Fetch downloads rawURL and returns its body decoded to UTF-8.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q", rawURL)
	}

	if f.robots != nil && !f.robots.allowed(ctx, u) {
		metrics.FetchAttempts.WithLabelValues("disallowed").Inc()
		return nil, fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
	}

	cb := f.breaker(strings.ToLower(u.Host))

	op := func() ([]byte, error) {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(err)
			}
		}

		body, err := cb.Execute(func() ([]byte, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, f.opts.AttemptTimeout)
			defer cancel()
			return f.get(attemptCtx, rawURL)
		})
		if err == nil {
			metrics.FetchAttempts.WithLabelValues("ok").Inc()
			return body, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.FetchAttempts.WithLabelValues("rejected").Inc()
			return nil, backoff.Permanent(fmt.Errorf("host %s: %w", u.Host, err))
		}
		metrics.FetchAttempts.WithLabelValues("error").Inc()

		var se *StatusError
		if errors.As(err, &se) && se.Permanent() {
			return nil, backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	notify := func(err error, wait time.Duration) {
		logging.Debug().Err(err).Str("url", rawURL).Dur("wait", wait).Msg("retrying fetch")
	}

	return backoff.RetryNotifyWithData[[]byte](op, f.backOff(ctx), notify)
}

func (f *Fetcher) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = f.opts.BackoffInitial
	eb.MaxInterval = f.opts.BackoffMax
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(f.opts.Attempts-1)), ctx)
}

func (f *Fetcher) breaker(host string) *gobreaker.CircuitBreaker[[]byte] {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cb, ok := f.breakers[host]; ok {
		return cb
	}

	threshold := f.opts.BreakerThreshold
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     f.opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A 404 says nothing about the health of the host.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			return err == nil || (errors.As(err, &se) && se.Permanent())
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("host", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit state change")
		},
	})
	f.breakers[host] = cb
	return cb
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	reader, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		reader = io.LimitReader(resp.Body, maxBodyBytes)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}
