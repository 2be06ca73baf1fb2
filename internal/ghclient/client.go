package ghclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/spiffcs/ghsearch/internal/constants"
	"github.com/spiffcs/ghsearch/internal/log"
)

const defaultHTTPTimeout = 30 * time.Second

// Client issues GitHub REST requests with rate-limit aware retries.
// It holds no state shared between calls and is safe for concurrent use.
type Client struct {
	http    *http.Client
	baseRaw string
	baseURL *url.URL
	policy  RetryPolicy
	logger  *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	pacer Pacer

	// token is intentionally unexported. NEVER add String(), MarshalJSON(),
	// or any method that could expose this value in logs or serialized output.
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root, such as a
// GitHub Enterprise server or a test server.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseRaw = base
	}
}

// WithHTTPClient sets the underlying HTTP client. Its transport is wrapped,
// not replaced.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRetryPolicy overrides the default retry bounds.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock sets the time source used to evaluate rate-limit resets.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSleeper replaces the function used to wait between attempts and batches.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// Pacer delays outbound requests per key. *ratelimit.KeyedRateLimiter
// satisfies it.
type Pacer interface {
	Wait(ctx context.Context, key string) error
}

// WithPacer makes every request wait on p, keyed by the target host,
// before it is sent. Pacing is independent of the retry policy.
func WithPacer(p Pacer) Option {
	return func(c *Client) {
		c.pacer = p
	}
}

// NewClient creates a client. An empty token sends unauthenticated requests
// with no Authorization header.
func NewClient(token string, opts ...Option) (*Client, error) {
	c := &Client{
		http:    &http.Client{Timeout: defaultHTTPTimeout},
		baseRaw: constants.DefaultAPIBaseURL,
		policy:  DefaultRetryPolicy(),
		logger:  log.Logger(),
		now:     time.Now,
		sleep:   sleepContext,
		token:   token,
	}
	for _, opt := range opts {
		opt(c)
	}

	base, err := url.Parse(strings.TrimRight(c.baseRaw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing API base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", c.baseRaw)
	}
	c.baseURL = base
	c.policy = c.policy.normalized()

	inner := c.http.Transport
	if inner == nil {
		inner = http.DefaultTransport
	}
	var rt http.RoundTripper = &headerTransport{base: inner, logger: c.logger}
	if token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   rt,
		}
	}

	c.http = &http.Client{
		Transport:     rt,
		Timeout:       c.http.Timeout,
		CheckRedirect: c.http.CheckRedirect,
		Jar:           c.http.Jar,
	}

	return c, nil
}

// Authenticated reports whether requests carry a token.
func (c *Client) Authenticated() bool {
	return c.token != ""
}

// FetchWithRetry performs a GET, retrying throttled 403 responses within the
// client's RetryPolicy. A non-2xx result is returned as *APIError. Network
// failures are returned wrapped and are not retried.
//
// The caller owns the returned response body.
func (c *Client) FetchWithRetry(ctx context.Context, rawURL string) (*http.Response, error) {
	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		resp, err := c.do(ctx, rawURL)
		if err != nil {
			return nil, err
		}

		d := decideRetry(attempt, resp.StatusCode, resp.Header, c.policy, c.now())
		switch d.Outcome {
		case OutcomeSuccess:
			return resp, nil
		case OutcomeFail:
			return nil, newAPIError(resp, d.Delay, c.now())
		}

		drain(resp.Body)
		c.logger.Warn("GitHub request throttled, waiting to retry",
			"url", redactQuery(rawURL),
			"status", resp.StatusCode,
			"wait", d.Delay,
			"attempt", attempt+1,
			"max_attempts", c.policy.MaxAttempts)

		if err := c.sleep(ctx, d.Delay); err != nil {
			return nil, fmt.Errorf("waiting to retry %s: %w", redactQuery(rawURL), err)
		}
	}

	return nil, fmt.Errorf("%w: %s after %d attempts", errRetriesExhausted, redactQuery(rawURL), c.policy.MaxAttempts)
}

// Fetch performs a single GET with no retry. A non-2xx result is returned
// as *APIError.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*http.Response, error) {
	resp, err := c.do(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp, 0, c.now())
	}
	return resp, nil
}

// GitHub returns a go-github client sharing this client's transport and
// API root.
func (c *Client) GitHub() *gh.Client {
	client := gh.NewClient(c.http)
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	client.BaseURL = &u
	return client
}

func (c *Client) do(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx, req.URL.Host); err != nil {
			return nil, fmt.Errorf("pacing request to %s: %w", req.URL.Host, err)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", redactQuery(rawURL), err)
	}
	return resp, nil
}

// endpoint resolves path against the API root.
func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}

// sameOrigin reports whether rawURL targets the API host. Requests elsewhere
// would carry the bearer token to a third party.
func (c *Client) sameOrigin(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, c.baseURL.Scheme) && strings.EqualFold(u.Host, c.baseURL.Host)
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBody))
	_ = body.Close()
}

func redactQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
