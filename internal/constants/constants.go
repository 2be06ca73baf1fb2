// Package constants provides a centralized location for all configuration
// values and magic numbers used throughout the ghsearch application.
package constants

import "time"

// GitHub API constants
const (
	// DefaultAPIBaseURL is the GitHub REST API root.
	DefaultAPIBaseURL = "https://api.github.com"

	// AcceptHeader is sent on every outbound request.
	AcceptHeader = "application/vnd.github.v3+json"

	// APIVersionHeader is the header carrying the pinned REST API version.
	APIVersionHeader = "X-GitHub-Api-Version"

	// APIVersion is the pinned GitHub REST API version.
	APIVersion = "2022-11-28"

	// UserAgent identifies this tool to GitHub.
	UserAgent = "ghsearch"

	// SearchUsersPath is the user search endpoint relative to the API root.
	SearchUsersPath = "/search/users"
)

// Retry and backoff constants
const (
	// MaxWait is the ceiling on any single computed wait. A wait longer than
	// this turns a retryable response into a failure.
	MaxWait = 10 * time.Second

	// DefaultMaxAttempts is the number of attempts made for a retried request.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the first exponential backoff step.
	DefaultBaseDelay = time.Second
)

// Search enrichment constants
const (
	// DetailBatchSize is the maximum number of detail requests in flight
	// for a single search page.
	DetailBatchSize = 5

	// DetailBatchDelay is the pause between two detail batches.
	DetailBatchDelay = 100 * time.Millisecond

	// DefaultPage and DefaultPerPage are the paging defaults for a search.
	DefaultPage    = 1
	DefaultPerPage = 30

	// MaxPerPage is the largest page size GitHub accepts for search.
	MaxPerPage = 100

	// JoinedSentinel is reported as the join date when upstream omits it.
	JoinedSentinel = "2000-01-01T00:00:00Z"
)

// Rate limiting constants
const (
	// RateLimitLowWatermark is the threshold below which rate limit
	// warnings are logged.
	RateLimitLowWatermark = 100
)

// DetailCacheTTL is the maximum age of a cached user detail before it is
// considered stale and re-fetched. Search pages are never cached.
const DetailCacheTTL = 24 * time.Hour

// Server constants
const (
	// DefaultServerAddr is the listen address for `ghsearch serve`.
	DefaultServerAddr = ":8080"

	// DefaultServerRPS and DefaultServerBurst bound inbound requests per client IP.
	DefaultServerRPS   = 2.0
	DefaultServerBurst = 10

	// ShutdownTimeout is how long in-flight requests get on shutdown.
	ShutdownTimeout = 30 * time.Second
)
