package ghclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/sync/errgroup"

	"github.com/spiffcs/ghsearch/internal/constants"
	"github.com/spiffcs/ghsearch/internal/model"
)

// DetailCache stores user details between searches.
type DetailCache interface {
	Get(login string) (*gh.User, bool)
	Set(login string, user *gh.User) error
}

// Searcher runs user searches and enriches each hit with its detail record.
type Searcher struct {
	client     *Client
	cache      DetailCache
	batchSize  int
	batchDelay time.Duration
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithDetailCache enables the detail cache. A nil cache disables it.
func WithDetailCache(c DetailCache) SearcherOption {
	return func(s *Searcher) {
		s.cache = c
	}
}

// NewSearcher creates a Searcher backed by client.
func NewSearcher(client *Client, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		client:     client,
		batchSize:  constants.DetailBatchSize,
		batchDelay: constants.DetailBatchDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search runs one page of a user search.
//
// An empty query fails before any request. A failed search request is
// returned unchanged from the client. Detail fetches never fail the call:
// a hit whose detail cannot be fetched or decoded keeps its search data.
func (s *Searcher) Search(ctx context.Context, params model.SearchParams) (*model.SearchResponse, error) {
	if params.Q == "" {
		return nil, queryRequiredError()
	}

	resp, err := s.client.FetchWithRetry(ctx, s.client.endpoint(constants.SearchUsersPath, searchQuery(params)))
	if err != nil {
		return nil, err
	}
	defer drain(resp.Body)

	rateLimit := ParseRateLimit(resp.Header)

	var result gh.UsersSearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding search response: %v", ErrSchemaMismatch, err)
	}
	if err := validateSearchResult(&result); err != nil {
		return nil, err
	}

	detailed, err := s.enrich(ctx, result.Users)
	if err != nil {
		return nil, err
	}

	users := make([]model.UserRecord, len(detailed))
	for i, u := range detailed {
		users[i] = toUserRecord(u)
	}

	return &model.SearchResponse{
		Users:      users,
		TotalCount: result.GetTotal(),
		RateLimit:  rateLimit,
	}, nil
}

func searchQuery(params model.SearchParams) url.Values {
	page := params.Page
	if page <= 0 {
		page = constants.DefaultPage
	}
	perPage := params.PerPage
	if perPage <= 0 {
		perPage = constants.DefaultPerPage
	}

	q := url.Values{}
	q.Set("q", params.Q)
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	if params.Sort != "" {
		q.Set("sort", params.Sort)
	}
	if params.Order != "" {
		q.Set("order", params.Order)
	}
	return q
}

// enrich fetches details in sequential batches of batchSize, waiting
// batchDelay between batches. Results keep the input order.
func (s *Searcher) enrich(ctx context.Context, items []*gh.User) ([]*gh.User, error) {
	out := make([]*gh.User, len(items))

	for start := 0; start < len(items); start += s.batchSize {
		end := min(start+s.batchSize, len(items))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				out[i] = s.detail(ctx, items[i])
				return nil
			})
		}
		_ = g.Wait()

		if end < len(items) {
			if err := s.client.sleep(ctx, s.batchDelay); err != nil {
				return nil, fmt.Errorf("waiting between detail batches: %w", err)
			}
		}
	}

	return out, nil
}

// detail returns the full user record for a search hit, or the hit itself
// when the detail is unavailable.
func (s *Searcher) detail(ctx context.Context, item *gh.User) *gh.User {
	login := item.GetLogin()
	logger := s.client.logger

	if s.cache != nil {
		if u, ok := s.cache.Get(login); ok {
			logger.Debug("user detail cache hit", "login", login)
			return u
		}
	}

	detailURL := item.GetURL()
	if !s.client.sameOrigin(detailURL) {
		logger.Debug("skipping user detail outside API host", "login", login, "url", detailURL)
		return item
	}

	resp, err := s.client.Fetch(ctx, detailURL)
	if err != nil {
		logger.Debug("user detail unavailable, using search result", "login", login, "error", err)
		return item
	}
	defer drain(resp.Body)

	var u gh.User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		logger.Debug("user detail undecodable, using search result", "login", login, "error", err)
		return item
	}
	if err := validateUser(&u); err != nil {
		logger.Debug("user detail invalid, using search result", "login", login, "error", err)
		return item
	}

	if s.cache != nil {
		if err := s.cache.Set(login, &u); err != nil {
			logger.Debug("failed to cache user detail", "login", login, "error", err)
		}
	}

	return &u
}

func validateSearchResult(r *gh.UsersSearchResult) error {
	switch {
	case r.Total == nil:
		return fmt.Errorf("%w: missing total_count", ErrSchemaMismatch)
	case r.IncompleteResults == nil:
		return fmt.Errorf("%w: missing incomplete_results", ErrSchemaMismatch)
	case r.Users == nil:
		return fmt.Errorf("%w: missing items", ErrSchemaMismatch)
	}
	for i, u := range r.Users {
		if err := validateUser(u); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

func validateUser(u *gh.User) error {
	switch {
	case u == nil:
		return fmt.Errorf("%w: null user", ErrSchemaMismatch)
	case u.Login == nil:
		return fmt.Errorf("%w: missing login", ErrSchemaMismatch)
	case u.AvatarURL == nil:
		return fmt.Errorf("%w: missing avatar_url", ErrSchemaMismatch)
	case u.HTMLURL == nil:
		return fmt.Errorf("%w: missing html_url", ErrSchemaMismatch)
	case u.URL == nil:
		return fmt.Errorf("%w: missing url", ErrSchemaMismatch)
	}
	return nil
}

func toUserRecord(u *gh.User) model.UserRecord {
	joined := constants.JoinedSentinel
	if u.CreatedAt != nil && !u.CreatedAt.IsZero() {
		joined = u.CreatedAt.UTC().Format(time.RFC3339)
	}

	return model.UserRecord{
		Login:       u.GetLogin(),
		Name:        u.Name,
		AvatarURL:   u.AvatarURL,
		Type:        model.ParseUserType(u.GetType()),
		Sponsorable: false,
		Stats: model.UserStats{
			Repositories: u.GetPublicRepos(),
			Followers:    u.GetFollowers(),
			Joined:       joined,
		},
		Location:  u.Location,
		Bio:       u.Bio,
		URL:       u.GetHTMLURL(),
		Languages: []string{},
	}
}
