// Package fma is the Free Music Archive catalog client: the JSON API for
// genres and tracks, and the HTML site for search.
package fma

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/olivier-w/fmap/internal/catalog"
)

const (
	// DefaultAPIURL is the JSON API base URL.
	DefaultAPIURL = "https://freemusicarchive.org/api/get"

	// DefaultSiteURL is the public site used for search and downloads.
	DefaultSiteURL = "https://freemusicarchive.org"

	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "fmap (https://github.com/olivier-w/fmap)"

	// DefaultTimeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// DefaultRequestInterval spaces out API requests.
	DefaultRequestInterval = 500 * time.Millisecond

	// DefaultPageLimit is the page size asked of the API.
	DefaultPageLimit = 50
)

// Client talks to the Free Music Archive.
type Client struct {
	apiURL     string
	siteURL    string
	apiKey     string
	userAgent  string
	limit      int
	httpClient *http.Client
	noRedirect *http.Client
	limiter    *rate.Limiter
	napMin     time.Duration
	napMax     time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

var _ catalog.Source = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithAPIURL sets the JSON API base URL.
func WithAPIURL(u string) Option {
	return func(c *Client) { c.apiURL = u }
}

// WithSiteURL sets the site base URL used for search.
func WithSiteURL(u string) Option {
	return func(c *Client) { c.siteURL = u }
}

// WithAPIKey sets the api_key query parameter.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLimiter replaces the request rate limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithPageLimit sets the number of items requested per API page.
func WithPageLimit(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithNap sets the random pause taken between search page fetches and
// harvested downloads.
func WithNap(lo, hi time.Duration) Option {
	return func(c *Client) {
		if hi < lo {
			hi = lo
		}
		c.napMin, c.napMax = lo, hi
	}
}

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		apiURL:     DefaultAPIURL,
		siteURL:    DefaultSiteURL,
		userAgent:  DefaultUserAgent,
		limit:      DefaultPageLimit,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Every(DefaultRequestInterval), 1),
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Same transport, but hand 3xx responses back instead of following them.
	nr := *c.httpClient
	nr.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	c.noRedirect = &nr
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Nap sleeps for a random duration within the configured nap range.
func (c *Client) Nap(ctx context.Context) error {
	if c.napMax <= 0 {
		return nil
	}
	d := c.napMin
	if span := c.napMax - c.napMin; span > 0 {
		d += rand.N(span + 1)
	}
	log.Info().Dur("nap", d).Msg("taking a nap")
	return c.sleep(ctx, d)
}

// get performs a throttled GET. Status codes
// are mapped to catalog sentinels.
func (c *Client) get(ctx context.Context, hc *http.Client, rawURL string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		log.Warn().Int("status", resp.StatusCode).Str("url", rawURL).Err(err).Msg("catalog request failed")
		return nil, err
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 400:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return catalog.ErrRateLimited
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return catalog.ErrTemporary
	case resp.StatusCode == http.StatusNotFound:
		return catalog.ErrNotFound
	default:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}

func (c *Client) getBytes(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.get(ctx, c.httpClient, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// Fetch downloads raw bytes.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return c.getBytes(ctx, rawURL)
}

// StreamURL resolves the direct download URL of a track. The download link
// answers with a redirect to the file; a 2xx answer means the link is
// already direct.
func (c *Client) StreamURL(ctx context.Context, t catalog.Track) (string, error) {
	if t.DownloadURL == "" {
		return "", fmt.Errorf("track %s: no download url: %w", t.ID, catalog.ErrNotFound)
	}
	return c.Resolve(ctx, t.DownloadURL)
}

// Resolve follows a single redirect hop of rawURL without downloading.
func (c *Client) Resolve(ctx context.Context, rawURL string) (string, error) {
	resp, err := c.get(ctx, c.noRedirect, rawURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 300 {
		return rawURL, nil
	}
	loc, err := resp.Location()
	if err != nil {
		return "", fmt.Errorf("redirect without location: %w", catalog.ErrParse)
	}
	return loc.String(), nil
}

func (c *Client) apiQuery(endpoint string, params url.Values) string {
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	params.Set("limit", fmt.Sprint(c.limit))
	return c.apiURL + "/" + endpoint + "?" + params.Encode()
}
