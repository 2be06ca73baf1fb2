package ghclient

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/spiffcs/ghsearch/internal/constants"
)

// headerTransport wraps an http.RoundTripper to add the GitHub API headers
// and report a low quota.
type headerTransport struct {
	base   http.RoundTripper
	logger *slog.Logger
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Accept", constants.AcceptHeader)
	req.Header.Set(constants.APIVersionHeader, constants.APIVersion)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", constants.UserAgent)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	if rl := ParseRateLimit(resp.Header); rl != nil && rl.Remaining > 0 && rl.Remaining <= constants.RateLimitLowWatermark {
		t.logger.Debug("rate limit low",
			"remaining", rl.Remaining,
			"limit", rl.Limit,
			"resets_at", rl.ResetTime().Format(time.RFC3339))
	}

	return resp, nil
}
