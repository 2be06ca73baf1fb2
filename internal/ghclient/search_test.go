package ghclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gh "github.com/google/go-github/v57/github"

	"github.com/spiffcs/ghsearch/internal/model"
)

// fakeGitHub serves /search/users and /users/{login} from in-memory data.
type fakeGitHub struct {
	t *testing.T

	searchStatus int
	searchBody   func(base string) any
	details      map[string]any
	detailStatus map[string]int
	detailDelay  map[string]time.Duration

	searchCalls atomic.Int32
	detailCalls atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mu        sync.Mutex
	lastQuery map[string]string
}

func (f *fakeGitHub) handler(base func() string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /search/users", func(w http.ResponseWriter, r *http.Request) {
		f.searchCalls.Add(1)
		f.mu.Lock()
		f.lastQuery = map[string]string{}
		for k := range r.URL.Query() {
			f.lastQuery[k] = r.URL.Query().Get(k)
		}
		f.mu.Unlock()

		setRateLimit(w, 29, testNow.Add(time.Minute))
		if f.searchStatus != 0 {
			w.WriteHeader(f.searchStatus)
			_, _ = w.Write([]byte(`{"message":"Validation Failed"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(f.searchBody(base()))
	})
	mux.HandleFunc("GET /users/{login}", func(w http.ResponseWriter, r *http.Request) {
		f.detailCalls.Add(1)
		n := f.inFlight.Add(1)
		defer f.inFlight.Add(-1)
		for {
			cur := f.maxInFlight.Load()
			if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}

		login := r.PathValue("login")
		if d := f.detailDelay[login]; d > 0 {
			time.Sleep(d)
		}
		if status := f.detailStatus[login]; status != 0 {
			w.WriteHeader(status)
			return
		}
		detail, ok := f.details[login]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(detail)
	})
	return mux
}

func newFakeServer(t *testing.T, f *fakeGitHub) *httptest.Server {
	t.Helper()
	f.t = t
	var srv *httptest.Server
	srv = httptest.NewServer(f.handler(func() string { return srv.URL }))
	t.Cleanup(srv.Close)
	return srv
}

func searchItem(base, login, typ string) map[string]any {
	return map[string]any{
		"login":      login,
		"id":         1,
		"avatar_url": "https://avatars.githubusercontent.com/u/1?v=4",
		"html_url":   "https://github.com/" + login,
		"url":        base + "/users/" + login,
		"type":       typ,
	}
}

func detailItem(base, login string, repos, followers int, created string) map[string]any {
	item := searchItem(base, login, "User")
	item["name"] = "Name of " + login
	item["public_repos"] = repos
	item["followers"] = followers
	item["created_at"] = created
	item["location"] = "Berlin"
	item["bio"] = nil
	return item
}

func searchResult(total int, items ...map[string]any) map[string]any {
	if items == nil {
		items = []map[string]any{}
	}
	return map[string]any{
		"total_count":        total,
		"incomplete_results": false,
		"items":              items,
	}
}

func TestSearchEmptyQueryMakesNoRequest(t *testing.T) {
	f := &fakeGitHub{searchBody: func(string) any { return searchResult(0) }}
	srv := newFakeServer(t, f)
	c, _ := newTestClient(t, srv, "")

	_, err := NewSearcher(c).Search(context.Background(), model.SearchParams{Q: ""})

	if f.searchCalls.Load() != 0 {
		t.Errorf("expected no requests, got %d", f.searchCalls.Load())
	}
	if !errors.Is(err, ErrQueryRequired) {
		t.Errorf("expected ErrQueryRequired, got %v", err)
	}
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.Status != http.StatusBadRequest || apiErr.Message != QueryRequiredMessage {
		t.Errorf("expected 400 APIError with %q, got %#v", QueryRequiredMessage, err)
	}
}

func TestSearchTotalCountFromUpstream(t *testing.T) {
	f := &fakeGitHub{searchBody: func(string) any { return searchResult(42) }}
	srv := newFakeServer(t, f)
	c, _ := newTestClient(t, srv, "")

	resp, err := NewSearcher(c).Search(context.Background(), model.SearchParams{Q: "location:berlin"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.TotalCount != 42 {
		t.Errorf("expected total_count 42, got %d", resp.TotalCount)
	}
	if resp.Users == nil || len(resp.Users) != 0 {
		t.Errorf("expected empty non-nil users, got %#v", resp.Users)
	}
	raw, _ := json.Marshal(resp)
	var fields map[string]any
	_ = json.Unmarshal(raw, &fields)
	if users, ok := fields["users"].([]any); !ok || len(users) != 0 {
		t.Errorf("expected users to serialize as [], got %s", raw)
	}
	if resp.RateLimit == nil || resp.RateLimit.Remaining != 29 {
		t.Errorf("expected rate limit from success headers, got %+v", resp.RateLimit)
	}
}

func TestSearchQueryParameters(t *testing.T) {
	tests := []struct {
		name   string
		params model.SearchParams
		want   map[string]string
	}{
		{
			name:   "defaults",
			params: model.SearchParams{Q: "tom"},
			want:   map[string]string{"q": "tom", "page": "1", "per_page": "30"},
		},
		{
			name:   "explicit paging and sort",
			params: model.SearchParams{Q: "type:org", Page: 3, PerPage: 50, Sort: "followers", Order: "desc"},
			want:   map[string]string{"q": "type:org", "page": "3", "per_page": "50", "sort": "followers", "order": "desc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeGitHub{searchBody: func(string) any { return searchResult(0) }}
			srv := newFakeServer(t, f)
			c, _ := newTestClient(t, srv, "")

			if _, err := NewSearcher(c).Search(context.Background(), tt.params); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			f.mu.Lock()
			defer f.mu.Unlock()
			if len(f.lastQuery) != len(tt.want) {
				t.Errorf("expected query %v, got %v", tt.want, f.lastQuery)
			}
			for k, v := range tt.want {
				if f.lastQuery[k] != v {
					t.Errorf("expected %s=%q, got %q", k, v, f.lastQuery[k])
				}
			}
		})
	}
}

func TestSearchPerItemFallback(t *testing.T) {
	f := &fakeGitHub{
		searchBody: func(base string) any {
			return searchResult(3,
				searchItem(base, "alice", "User"),
				searchItem(base, "bob", "User"),
				searchItem(base, "carol", "Organization"),
			)
		},
		detailStatus: map[string]int{"bob": http.StatusInternalServerError},
	}
	srv := newFakeServer(t, f)
	f.details = map[string]any{
		"alice": detailItem(srv.URL, "alice", 12, 340, "2015-03-04T05:06:07Z"),
		"carol": detailItem(srv.URL, "carol", 7, 80, "2018-01-01T00:00:00Z"),
	}
	c, _ := newTestClient(t, srv, "")

	resp, err := NewSearcher(c).Search(context.Background(), model.SearchParams{Q: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Users) != 3 {
		t.Fatalf("expected 3 users, got %d", len(resp.Users))
	}

	alice, bob, carol := resp.Users[0], resp.Users[1], resp.Users[2]

	if bob.Login != "bob" {
		t.Fatalf("expected bob at index 1, got %q", bob.Login)
	}
	if bob.Stats.Repositories != 0 || bob.Stats.Followers != 0 || bob.Stats.Joined != "2000-01-01T00:00:00Z" {
		t.Errorf("expected bob to fall back to summary defaults, got %+v", bob.Stats)
	}
	if bob.Name != nil {
		t.Errorf("expected no name for summary-only record, got %q", *bob.Name)
	}

	if alice.Stats.Repositories != 12 || alice.Stats.Followers != 340 || alice.Stats.Joined != "2015-03-04T05:06:07Z" {
		t.Errorf("expected alice detail stats, got %+v", alice.Stats)
	}
	if alice.Name == nil || *alice.Name != "Name of alice" {
		t.Errorf("expected alice's name from detail, got %v", alice.Name)
	}
	if alice.Location == nil || *alice.Location != "Berlin" {
		t.Errorf("expected alice's location from detail, got %v", alice.Location)
	}
	if alice.Bio != nil {
		t.Errorf("expected null bio to stay absent, got %q", *alice.Bio)
	}
	if alice.URL != "https://github.com/alice" {
		t.Errorf("expected profile URL, got %q", alice.URL)
	}
	if alice.Sponsorable || alice.Languages == nil || len(alice.Languages) != 0 {
		t.Errorf("expected sponsorable=false and empty languages, got %v %v", alice.Sponsorable, alice.Languages)
	}

	// The detail record for carol says "User"; the detail wins.
	if carol.Stats.Followers != 80 || carol.Type != model.UserTypeUser {
		t.Errorf("expected carol detail data, got %+v type %s", carol.Stats, carol.Type)
	}
}

func TestSearchInvalidDetailFallsBack(t *testing.T) {
	f := &fakeGitHub{
		searchBody: func(base string) any {
			return searchResult(1, searchItem(base, "dave", "User"))
		},
		details: map[string]any{
			"dave": map[string]any{"login": "dave", "public_repos": 99},
		},
	}
	srv := newFakeServer(t, f)
	c, _ := newTestClient(t, srv, "")

	resp, err := NewSearcher(c).Search(context.Background(), model.SearchParams{Q: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := resp.Users[0].Stats.Repositories; got != 0 {
		t.Errorf("expected detail missing required fields to be ignored, got repos %d", got)
	}
}

func TestSearchPreservesOrderAndBoundsConcurrency(t *testing.T) {
	const n = 12
	f := &fakeGitHub{detailDelay: map[string]time.Duration{}}
	srv := newFakeServer(t, f)

	f.details = map[string]any{}
	logins := make([]string, n)
	for i := range n {
		login := fmt.Sprintf("user%02d", i)
		logins[i] = login
		f.details[login] = detailItem(srv.URL, login, i, i*10, "2020-01-01T00:00:00Z")
		f.detailDelay[login] = time.Duration(n-i) * time.Millisecond
	}
	f.searchBody = func(base string) any {
		items := make([]map[string]any, n)
		for i, login := range logins {
			items[i] = searchItem(base, login, "User")
		}
		return searchResult(100, items...)
	}

	c, rs := newTestClient(t, srv, "")
	resp, err := NewSearcher(c).Search(context.Background(), model.SearchParams{Q: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, u := range resp.Users {
		if u.Login != logins[i] {
			t.Errorf("index %d: expected %q, got %q", i, logins[i], u.Login)
		}
		if u.Stats.Repositories != i {
			t.Errorf("index %d: expected repos %d, got %d", i, i, u.Stats.Repositories)
		}
	}
	if got := f.maxInFlight.Load(); got > 5 {
		t.Errorf("expected at most 5 detail requests in flight, got %d", got)
	}
	if got := f.detailCalls.Load(); got != n {
		t.Errorf("expected %d detail calls, got %d", n, got)
	}

	waits := rs.recorded()
	if len(waits) != 2 {
		t.Fatalf("expected 2 inter-batch waits for 3 batches, got %v", waits)
	}
	for _, w := range waits {
		if w != 100*time.Millisecond {
			t.Errorf("expected 100ms between batches, got %v", w)
		}
	}
}

func TestSearchSingleBatchHasNoDelay(t *testing.T) {
	f := &fakeGitHub{}
	srv := newFakeServer(t, f)
	f.details = map[string]any{}
	f.searchBody = func(base string) any {
		items := make([]map[string]any, 5)
		for i := range items {
			login := fmt.Sprintf("u%d", i)
			items[i] = searchItem(base, login, "User")
		}
		return searchResult(5, items...)
	}

	c, rs := newTestClient(t, srv, "")
	if _, err := NewSearcher(c).Search(context.Background(), model.SearchParams{Q: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rs.recorded()) != 0 {
		t.Errorf("expected no delay after the final batch, got %v", rs.recorded())
	}
}

func TestSearchSchemaMismatch(t *testing.T) {
	tests := []struct {
		name string
		body func(base string) any
	}{
		{"missing total_count", func(string) any {
			return map[string]any{"incomplete_results": false, "items": []any{}}
		}},
		{"missing incomplete_results", func(string) any {
			return map[string]any{"total_count": 1, "items": []any{}}
		}},
		{"missing items", func(string) any {
			return map[string]any{"total_count": 1, "incomplete_results": false}
		}},
		{"item missing avatar_url", func(base string) any {
			item := searchItem(base, "eve", "User")
			delete(item, "avatar_url")
			return searchResult(1, item)
		}},
		{"wrong type for total_count", func(string) any {
			return map[string]any{"total_count": "many", "incomplete_results": false, "items": []any{}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeGitHub{searchBody: tt.body}
			srv := newFakeServer(t, f)
			c, rs := newTestClient(t, srv, "")

			_, err := NewSearcher(c).Search(context.Background(), model.SearchParams{Q: "x"})
			if !errors.Is(err, ErrSchemaMismatch) {
				t.Errorf("expected ErrSchemaMismatch, got %v", err)
			}
			if f.searchCalls.Load() != 1 || len(rs.recorded()) != 0 {
				t.Errorf("expected a single unretried request, got %d calls and waits %v", f.searchCalls.Load(), rs.recorded())
			}
		})
	}
}

func TestSearchPropagatesAPIError(t *testing.T) {
	f := &fakeGitHub{searchStatus: http.StatusUnprocessableEntity}
	srv := newFakeServer(t, f)
	c, _ := newTestClient(t, srv, "")

	_, err := NewSearcher(c).Search(context.Background(), model.SearchParams{Q: "x"})
	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d", apiErr.Status)
	}
	if apiErr.RateLimit == nil {
		t.Error("expected rate limit on the error")
	}
	if f.detailCalls.Load() != 0 {
		t.Errorf("expected no detail calls, got %d", f.detailCalls.Load())
	}
}

func TestSearchSkipsForeignDetailURL(t *testing.T) {
	f := &fakeGitHub{
		searchBody: func(string) any {
			item := searchItem("https://evil.example.com", "mallory", "User")
			return searchResult(1, item)
		},
	}
	srv := newFakeServer(t, f)
	c, _ := newTestClient(t, srv, "token")

	resp, err := NewSearcher(c).Search(context.Background(), model.SearchParams{Q: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Users[0].Login != "mallory" || resp.Users[0].Stats.Joined != "2000-01-01T00:00:00Z" {
		t.Errorf("expected summary fallback, got %+v", resp.Users[0])
	}
}

type memoryDetailCache struct {
	mu    sync.Mutex
	users map[string]*gh.User
	sets  int
}

func (m *memoryDetailCache) Get(login string) (*gh.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[login]
	return u, ok
}

func (m *memoryDetailCache) Set(login string, u *gh.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[login] = u
	m.sets++
	return nil
}

func TestSearchUsesDetailCache(t *testing.T) {
	f := &fakeGitHub{
		searchBody: func(base string) any {
			return searchResult(2, searchItem(base, "cached", "User"), searchItem(base, "fresh", "User"))
		},
	}
	srv := newFakeServer(t, f)
	f.details = map[string]any{"fresh": detailItem(srv.URL, "fresh", 3, 4, "2021-02-03T04:05:06Z")}

	cache := &memoryDetailCache{users: map[string]*gh.User{
		"cached": {
			Login:       gh.String("cached"),
			AvatarURL:   gh.String("https://avatars.githubusercontent.com/u/2?v=4"),
			HTMLURL:     gh.String("https://github.com/cached"),
			URL:         gh.String(srv.URL + "/users/cached"),
			PublicRepos: gh.Int(55),
		},
	}}

	c, _ := newTestClient(t, srv, "")
	resp, err := NewSearcher(c, WithDetailCache(cache)).Search(context.Background(), model.SearchParams{Q: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.detailCalls.Load() != 1 {
		t.Errorf("expected 1 detail call, got %d", f.detailCalls.Load())
	}
	if resp.Users[0].Stats.Repositories != 55 {
		t.Errorf("expected cached repos 55, got %d", resp.Users[0].Stats.Repositories)
	}
	if cache.sets != 1 {
		t.Errorf("expected fresh detail to be cached once, got %d", cache.sets)
	}
}

func TestParseUserTypeCoercion(t *testing.T) {
	tests := []struct {
		in   string
		want model.UserType
	}{
		{"User", model.UserTypeUser},
		{"Organization", model.UserTypeOrganization},
		{"Bot", model.UserTypeUser},
		{"", model.UserTypeUser},
	}
	for _, tt := range tests {
		if got := model.ParseUserType(tt.in); got != tt.want {
			t.Errorf("ParseUserType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
