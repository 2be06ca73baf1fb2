package cmd

import (
	"fmt"

	"github.com/spiffcs/ghsearch/config"
	"github.com/spiffcs/ghsearch/internal/cache"
	"github.com/spiffcs/ghsearch/internal/constants"
	"github.com/spiffcs/ghsearch/internal/ghclient"
	"github.com/spiffcs/ghsearch/internal/log"
	"github.com/spiffcs/ghsearch/internal/ratelimit"
)

// newSearcher assembles the searcher stack shared by search and serve:
// fixture, or client -> searcher with an optional detail cache. The returned cleanup
// stops the outbound pacer if one was started.
func newSearcher(token string, s config.Settings, noCache bool) (ghclient.UserSearcher, func(), error) {
	if s.MockAPI {
		log.Info("using fixture data, GitHub will not be contacted")
		return ghclient.NewFixtureSearcher(), func() {}, nil
	}

	if token == "" {
		log.Warn("GITHUB_TOKEN not set, using unauthenticated rate limits")
	}

	clientOpts := []ghclient.Option{
		ghclient.WithBaseURL(s.APIBaseURL),
		ghclient.WithLogger(log.Logger()),
		ghclient.WithRetryPolicy(ghclient.RetryPolicy{
			MaxAttempts: s.MaxAttempts,
			BaseDelay:   s.BaseDelay,
			MaxWait:     constants.MaxWait,
		}),
	}

	cleanup := func() {}
	if s.OutboundRPS > 0 {
		pacer := ratelimit.New(s.OutboundRPS, 1)
		clientOpts = append(clientOpts, ghclient.WithPacer(pacer))
		cleanup = pacer.Stop
		log.Debug("outbound pacing enabled", "rps", s.OutboundRPS)
	}

	client, err := ghclient.NewClient(token, clientOpts...)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}

	if !s.CacheEnabled || noCache {
		return ghclient.NewSearcher(client), cleanup, nil
	}

	c, err := cache.NewCache()
	if err != nil {
		log.Warn("cache unavailable, continuing without it", "error", err)
		return ghclient.NewSearcher(client), cleanup, nil
	}
	log.Debug("cache enabled", "dir", c.Dir())

	return ghclient.NewSearcher(client, ghclient.WithDetailCache(c)), cleanup, nil
}
