// Package ghclient provides GitHub API client functionality.
package ghclient

import (
	"context"

	"github.com/spiffcs/ghsearch/internal/model"
)

// UserSearcher runs one page of a GitHub user search.
// Implementations return *APIError for upstream failures.
type UserSearcher interface {
	Search(ctx context.Context, params model.SearchParams) (*model.SearchResponse, error)
}

// Ensure Searcher implements UserSearcher interface.
var _ UserSearcher = (*Searcher)(nil)

// Ensure FixtureSearcher implements UserSearcher interface.
var _ UserSearcher = (*FixtureSearcher)(nil)
