// Package fetch retrieves a web page, reduces it to plain text and caches the
// result by URL.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vinayprograms/pagechat/cache"
	"github.com/vinayprograms/pagechat/errors"
	"github.com/vinayprograms/pagechat/extract"
	"github.com/vinayprograms/pagechat/logging"
	"github.com/vinayprograms/pagechat/telemetry"
)

// Config configures a Fetcher.
type Config struct {
	// Timeout bounds the whole GET including body read.
	Timeout time.Duration

	// MaxChars caps the extracted text in characters (runes).
	MaxChars int

	// MaxBodyBytes caps how much of the response body is parsed.
	MaxBodyBytes int64

	UserAgent string
}

// DefaultConfig returns the fetcher defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      10 * time.Second,
		MaxChars:     12000,
		MaxBodyBytes: 10 * 1024 * 1024,
		UserAgent:    "Mozilla/5.0 (compatible; pagechat/1.0)",
	}
}

// Fetcher turns URLs into cleaned page text. It is safe for concurrent use.
type Fetcher struct {
	config Config
	store  cache.Store
	client *http.Client
	group  singleflight.Group
	logger *logging.Logger
	tracer *telemetry.Tracer
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default client. Its Timeout is left as given.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithTracer sets the tracer. The global tracer is used otherwise.
func WithTracer(t *telemetry.Tracer) Option {
	return func(f *Fetcher) { f.tracer = t }
}

// New creates a Fetcher backed by store. Zero config fields take defaults.
func New(cfg Config, store cache.Store, opts ...Option) *Fetcher {
	d := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = d.MaxChars
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = d.MaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = d.UserAgent
	}

	f := &Fetcher{
		config: cfg,
		store:  store,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.tracer == nil {
		f.tracer = telemetry.GetTracer()
	}
	return f
}

// Validate checks that rawURL is an absolute http or https URL with a host.
func Validate(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, errors.InvalidURL(rawURL, errors.WithCause(err))
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.InvalidURL(rawURL)
	}
	return u, nil
}

// Fetch returns the cleaned text of the page at rawURL, at most MaxChars
// characters long. A cached page is returned without network I/O. Concurrent
// misses for the same URL share one request, which is bounded only by the
// fetch timeout; a caller that gives up stops waiting without failing the
// others.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := Validate(rawURL)
	if err != nil {
		return "", err
	}
	key := u.String()

	ctx, span := f.tracer.StartFetchSpan(ctx, key)

	if page, ok := f.store.Get(key); ok {
		f.logger.CacheHit(key)
		f.tracer.EndFetchSpan(span, telemetry.FetchSpanOptions{CacheHit: true, Chars: page.Chars}, nil)
		return page.Text, nil
	}

	start := time.Now()
	flightCtx := context.WithoutCancel(ctx)
	ch := f.group.DoChan(key, func() (interface{}, error) {
		// A concurrent flight may have finished between Get and DoChan.
		if page, ok := f.store.Get(key); ok {
			return page, nil
		}
		text, status, err := f.download(flightCtx, key)
		if err != nil {
			return cache.Page{}, &statusError{status: status, err: err}
		}
		return f.store.Put(key, text), nil
	})

	var (
		page   cache.Page
		status int
	)
	select {
	case res := <-ch:
		err = res.Err
		page, _ = res.Val.(cache.Page)
		if se, ok := err.(*statusError); ok {
			status, err = se.status, se.err
		}
	case <-ctx.Done():
		err = errors.FromContext(ctx.Err(), "fetching page")
	}

	f.logger.FetchComplete(key, time.Since(start), page.Chars, err)
	f.tracer.EndFetchSpan(span, telemetry.FetchSpanOptions{Status: status, Chars: page.Chars}, err)
	if err != nil {
		return "", err
	}
	return page.Text, nil
}

// statusError carries the HTTP status out of the single-flight closure.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func (f *Fetcher) download(ctx context.Context, rawURL string) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", 0, errors.FetchFailed(rawURL, err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, errors.FetchFailed(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", resp.StatusCode, errors.FetchFailed(rawURL,
			fmt.Errorf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}

	text, err := extract.FromReader(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	if err != nil {
		return "", resp.StatusCode, errors.FetchFailed(rawURL, err)
	}
	return extract.Truncate(text, f.config.MaxChars), resp.StatusCode, nil
}
