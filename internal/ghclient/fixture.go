package ghclient

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/spiffcs/ghsearch/internal/model"
)

// fixtureEmptyMarker in a query makes the fixture return no users.
const fixtureEmptyMarker = "emptyresult"

// FixtureSearcher returns canned results without contacting GitHub.
// It backs end-to-end tests and demos where quota must not be spent.
type FixtureSearcher struct {
	now func() time.Time
}

// NewFixtureSearcher creates a FixtureSearcher using the wall clock.
func NewFixtureSearcher() *FixtureSearcher {
	return &FixtureSearcher{now: time.Now}
}

// Search returns three fixed users with a total of 35, or no users when the
// query contains "emptyresult".
func (f *FixtureSearcher) Search(_ context.Context, params model.SearchParams) (*model.SearchResponse, error) {
	if params.Q == "" {
		return nil, queryRequiredError()
	}

	rl := &model.RateLimit{
		Limit:     5000,
		Remaining: 4999,
		Reset:     f.now().Add(time.Hour).Unix(),
		Used:      1,
	}

	if strings.Contains(params.Q, fixtureEmptyMarker) {
		return &model.SearchResponse{Users: []model.UserRecord{}, TotalCount: 0, RateLimit: rl}, nil
	}

	return &model.SearchResponse{
		Users: []model.UserRecord{
			fixtureUser("test-user-1", "Test User One", 1001, 10, 100, "2020-01-01T12:00:00Z"),
			fixtureUser("test-user-2", "Test User Two", 1002, 5, 50, "2021-05-20T10:00:00Z"),
			fixtureUser("test-user-3", "Test User Three", 1003, 20, 200, "2019-11-15T08:30:00Z"),
		},
		TotalCount: 35,
		RateLimit:  rl,
	}, nil
}

func fixtureUser(login, name string, id, repos, followers int, joined string) model.UserRecord {
	avatar := "https://avatars.githubusercontent.com/u/" + strconv.Itoa(id) + "?v=4"
	return model.UserRecord{
		Login:     login,
		Name:      &name,
		AvatarURL: &avatar,
		Type:      model.UserTypeUser,
		Stats: model.UserStats{
			Repositories: repos,
			Followers:    followers,
			Joined:       joined,
		},
		URL:       "https://github.com/" + login,
		Languages: []string{},
	}
}
