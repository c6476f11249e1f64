// Package listing fetches public HTTP directory listings and release pages
// and turns them into ordered anchor entries or heading text.
package listing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	// DefaultTimeout is the default HTTP client timeout for listing pages
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent is the default User-Agent header
	DefaultUserAgent = "isofetch/1.0"

	// DefaultMaxPageSize bounds how much of a listing page is read into memory
	DefaultMaxPageSize = 16 << 20
)

// ErrUpstreamUnavailable indicates a listing page could not be fetched.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// ErrPageTooLarge is wrapped by the UpstreamError of a page over the size
// limit.
var ErrPageTooLarge = errors.New("page too large")

// UpstreamError describes a failed page fetch. StatusCode is zero for
// transport-level failures.
type UpstreamError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// IsStatus reports whether err is an UpstreamError carrying an HTTP status
// (the server answered, but not with 200).
func IsStatus(err error) bool {
	var upErr *UpstreamError
	return errors.As(err, &upErr) && upErr.StatusCode != 0
}

// Entry is one anchor of a listing page, in document order.
type Entry struct {
	Text string
	Href string
}

// Name returns the whole href with any query, fragment, leading "./" and
// trailing slash removed ("24.04/" -> "24.04"). Hrefs pointing into another
// directory keep their path, so recognizers anchored on a bare name reject
// them.
func (e Entry) Name() string {
	href := e.Href
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	href = strings.TrimSpace(href)
	href = strings.TrimPrefix(href, "./")
	return strings.TrimSuffix(href, "/")
}

// Fetcher retrieves the body of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPClient defines the interface for HTTP operations
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds configuration for the HTTP fetcher
type Config struct {
	UserAgent  string
	Timeout    time.Duration
	HTTPClient HTTPClient
	// MaxPageSize defaults to DefaultMaxPageSize when zero.
	MaxPageSize int64
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		UserAgent: DefaultUserAgent,
		Timeout:   DefaultTimeout,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// HTTPFetcher fetches pages with a plain GET and treats anything but 200 as
// an UpstreamError.
type HTTPFetcher struct {
	config Config
}

// NewHTTPFetcher creates a fetcher, filling unset fields from DefaultConfig.
func NewHTTPFetcher(config Config) *HTTPFetcher {
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{
			Timeout: config.Timeout,
		}
	}
	return &HTTPFetcher{config: config}
}

func (f *HTTPFetcher) maxPageSize() int64 {
	if f.config.MaxPageSize > 0 {
		return f.config.MaxPageSize
	}
	return DefaultMaxPageSize
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &UpstreamError{URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.config.HTTPClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{URL: url, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxPageSize()+1))
	if err != nil {
		return nil, &UpstreamError{URL: url, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	if int64(len(body)) > f.maxPageSize() {
		return nil, &UpstreamError{URL: url, Err: fmt.Errorf("page exceeds %d bytes: %w", f.maxPageSize(), ErrPageTooLarge)}
	}
	return body, nil
}

// Client wraps a Fetcher with the anchor and text extractors. When a cache
// TTL is set, page bodies are reused for that long, which avoids fetching
// the same release folder twice during a fallback probe.
type Client struct {
	fetcher Fetcher
	cache   *cache.Cache
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCacheTTL enables the page cache. A ttl <= 0 leaves it disabled.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.cache = cache.New(ttl, 2*ttl)
		}
	}
}

// WithLogger sets the logger used for fetch debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a listing client on top of fetcher.
func NewClient(fetcher Fetcher, opts ...Option) *Client {
	c := &Client{
		fetcher: fetcher,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListEntries fetches url and returns its anchors in document order.
func (c *Client) ListEntries(ctx context.Context, url string) ([]Entry, error) {
	body, err := c.page(ctx, url)
	if err != nil {
		return nil, err
	}
	entries := ExtractAnchors(body)
	c.logger.Debug("listing fetched", "url", url, "entries", len(entries))
	return entries, nil
}

// PageText fetches url and returns the text content of every element whose
// tag is in tags, in document order.
func (c *Client) PageText(ctx context.Context, url string, tags ...string) ([]string, error) {
	body, err := c.page(ctx, url)
	if err != nil {
		return nil, err
	}
	return ExtractText(body, tags...), nil
}

func (c *Client) page(ctx context.Context, url string) ([]byte, error) {
	if c.cache != nil {
		if body, ok := c.cache.Get(url); ok {
			c.logger.Debug("listing cache hit", "url", url)
			return body.([]byte), nil
		}
	}

	body, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.SetDefault(url, body)
	}
	return body, nil
}
