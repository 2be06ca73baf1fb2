package ghclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spiffcs/ghsearch/internal/log"
)

var testNow = time.Unix(1_700_000_000, 0)

// recordingSleeper records requested waits without blocking.
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func (r *recordingSleeper) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

func newTestClient(t *testing.T, srv *httptest.Server, token string, opts ...Option) (*Client, *recordingSleeper) {
	t.Helper()
	rs := &recordingSleeper{}
	base := []Option{
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithSleeper(rs.sleep),
		WithClock(func() time.Time { return testNow }),
		WithLogger(log.Discard()),
	}
	c, err := NewClient(token, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	return c, rs
}

func setRateLimit(w http.ResponseWriter, remaining int, reset time.Time) {
	w.Header().Set("X-RateLimit-Limit", "60")
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
	w.Header().Set("X-RateLimit-Used", strconv.Itoa(60-remaining))
}

func TestFetchWithRetry429NotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		setRateLimit(w, 0, testNow.Add(30*time.Minute))
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"API rate limit exceeded"}`))
	}))
	defer srv.Close()

	c, rs := newTestClient(t, srv, "")
	_, err := c.FetchWithRetry(context.Background(), srv.URL+"/search/users?q=x")

	if calls.Load() != 1 {
		t.Errorf("expected exactly 1 call, got %d", calls.Load())
	}
	if len(rs.recorded()) != 0 {
		t.Errorf("expected no waits, got %v", rs.recorded())
	}

	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", apiErr.Status)
	}
	if apiErr.RateLimit == nil || apiErr.RateLimit.Remaining != 0 || apiErr.RateLimit.Limit != 60 {
		t.Errorf("expected parsed rate limit, got %+v", apiErr.RateLimit)
	}
	if apiErr.Kind != KindQuota {
		t.Errorf("expected kind %q, got %q", KindQuota, apiErr.Kind)
	}
	if apiErr.RetryAfterSeconds != 1800 {
		t.Errorf("expected 1800s until reset, got %d", apiErr.RetryAfterSeconds)
	}
	if apiErr.Error() != "GitHub API fetch failed: 429" {
		t.Errorf("unexpected message %q", apiErr.Error())
	}
}

func TestFetchWithRetryRetryAfterAboveCeiling(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "20")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"You have exceeded a secondary rate limit."}`))
	}))
	defer srv.Close()

	c, rs := newTestClient(t, srv, "")
	_, err := c.FetchWithRetry(context.Background(), srv.URL+"/search/users?q=x")

	if calls.Load() != 1 {
		t.Errorf("expected exactly 1 call, got %d", calls.Load())
	}
	if len(rs.recorded()) != 0 {
		t.Errorf("expected no sleep, got %v", rs.recorded())
	}
	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", apiErr.Status)
	}
	if !IsSecondary(err) {
		t.Errorf("expected secondary rate limit, got kind %q", apiErr.Kind)
	}
	if apiErr.RetryAfterSeconds != 20 {
		t.Errorf("expected declined wait of 20s, got %d", apiErr.RetryAfterSeconds)
	}
}

func TestFetchWithRetryRecoversAfterPastReset(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= 2 {
			setRateLimit(w, 5, testNow.Add(-2*time.Second))
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, rs := newTestClient(t, srv, "")
	resp, err := c.FetchWithRetry(context.Background(), srv.URL+"/search/users?q=x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	waits := rs.recorded()
	if len(waits) != 2 || waits[0] != time.Second || waits[1] != 2*time.Second {
		t.Errorf("expected backoff waits [1s 2s], got %v", waits)
	}
}

func TestFetchWithRetryExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"Resource not accessible by integration"}`))
	}))
	defer srv.Close()

	c, rs := newTestClient(t, srv, "")
	_, err := c.FetchWithRetry(context.Background(), srv.URL+"/users/octocat")

	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
	if len(rs.recorded()) != 2 {
		t.Errorf("expected 2 waits, got %v", rs.recorded())
	}
	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Kind != KindOther {
		t.Errorf("expected kind %q, got %q", KindOther, apiErr.Kind)
	}
	if errors.Is(err, errRetriesExhausted) {
		t.Error("expected the last attempt to fail explicitly, not fall through")
	}
}

func TestFetchWithRetryGenericErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, "")
	_, err := c.FetchWithRetry(context.Background(), srv.URL+"/search/users?q=x")

	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("expected *APIError, got %v", err)
	}
	data, ok := apiErr.Data.(map[string]any)
	if !ok || len(data) != 0 {
		t.Errorf("expected unparsable body to become an empty object, got %#v", apiErr.Data)
	}
}

func TestFetchWithRetryNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c, rs := newTestClient(t, srv, "")
	srv.Close()

	_, err := c.FetchWithRetry(context.Background(), srv.URL+"/search/users?q=x")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if _, ok := AsAPIError(err); ok {
		t.Errorf("expected a transport error, got APIError %v", err)
	}
	if len(rs.recorded()) != 0 {
		t.Errorf("expected no retry on network failure, got waits %v", rs.recorded())
	}
}

func TestFetchWithRetryCanceledDuringWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c, _ := newTestClient(t, srv, "", WithSleeper(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}))

	_, err := c.FetchWithRetry(ctx, srv.URL+"/search/users?q=x")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRequestHeaders(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		wantAuth string
	}{
		{"with token", "s3cret", "Bearer s3cret"},
		{"without token", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got http.Header
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Clone()
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			c, _ := newTestClient(t, srv, tt.token)
			resp, err := c.Fetch(context.Background(), srv.URL+"/users/octocat")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			_ = resp.Body.Close()

			if _, present := got["Authorization"]; present != (tt.wantAuth != "") {
				t.Errorf("expected Authorization present=%v, got header %q", tt.wantAuth != "", got.Get("Authorization"))
			}
			if got.Get("Authorization") != tt.wantAuth {
				t.Errorf("expected Authorization %q, got %q", tt.wantAuth, got.Get("Authorization"))
			}
			if got.Get("Accept") != "application/vnd.github.v3+json" {
				t.Errorf("unexpected Accept %q", got.Get("Accept"))
			}
			if got.Get("X-GitHub-Api-Version") != "2022-11-28" {
				t.Errorf("unexpected API version %q", got.Get("X-GitHub-Api-Version"))
			}
		})
	}
}

func TestAPIErrorHidesHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setRateLimit(w, 0, testNow.Add(time.Minute))
		w.Header().Set("X-Internal-Trace", "abc")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"API rate limit exceeded for user"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, "")
	_, err := c.Fetch(context.Background(), srv.URL+"/users/octocat")
	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("expected *APIError, got %v", err)
	}

	raw, err := json.Marshal(apiErr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if _, ok := fields["headers"]; ok {
		t.Errorf("expected no headers field, got %s", raw)
	}
	for _, key := range []string{"message", "status", "data", "rateLimit", "kind"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("expected field %q in %s", key, raw)
		}
	}
	if apiErr.Kind != KindQuota {
		t.Errorf("expected remaining=0 on 403 to be quota, got %q", apiErr.Kind)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   ErrorKind
	}{
		{"429", http.StatusTooManyRequests, nil, `{}`, KindQuota},
		{"403 remaining zero", http.StatusForbidden, rateLimitHeader(0, testNow), `{}`, KindQuota},
		{"403 retry-after", http.StatusForbidden, http.Header{"Retry-After": {"60"}}, `{}`, KindSecondary},
		{"403 rate limit message", http.StatusForbidden, rateLimitHeader(10, testNow), `{"message":"You have exceeded a secondary Rate Limit"}`, KindSecondary},
		{"403 plain forbidden", http.StatusForbidden, rateLimitHeader(10, testNow), `{"message":"Forbidden"}`, KindOther},
		{"404", http.StatusNotFound, nil, `{"message":"Not Found"}`, KindOther},
		{"502", http.StatusBadGateway, nil, ``, KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{
				StatusCode: tt.status,
				Header:     tt.header,
				Body:       io.NopCloser(strings.NewReader(tt.body)),
			}
			if resp.Header == nil {
				resp.Header = http.Header{}
			}
			got := newAPIError(resp, 0, testNow)
			if got.Kind != tt.want {
				t.Errorf("expected kind %q, got %q", tt.want, got.Kind)
			}
		})
	}
}

func TestSameOrigin(t *testing.T) {
	c, err := NewClient("", WithBaseURL("https://api.github.com"), WithLogger(log.Discard()))
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	tests := []struct {
		url  string
		want bool
	}{
		{"https://api.github.com/users/octocat", true},
		{"https://API.GITHUB.COM/users/octocat", true},
		{"http://api.github.com/users/octocat", false},
		{"https://evil.example.com/users/octocat", false},
		{"::not a url", false},
	}
	for _, tt := range tests {
		if got := c.sameOrigin(tt.url); got != tt.want {
			t.Errorf("sameOrigin(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestNewClientRejectsBadBaseURL(t *testing.T) {
	if _, err := NewClient("", WithBaseURL("not-a-url")); err == nil {
		t.Error("expected error for base URL without scheme and host")
	}
}

type recordingPacer struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (p *recordingPacer) Wait(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return p.err
}

func TestPacerWaitsPerRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pacer := &recordingPacer{}
	c, _ := newTestClient(t, srv, "", WithPacer(pacer))

	for range 2 {
		resp, err := c.Fetch(context.Background(), srv.URL+"/users/a")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		drain(resp.Body)
	}

	host := strings.TrimPrefix(srv.URL, "http://")
	if len(pacer.keys) != 2 || pacer.keys[0] != host {
		t.Errorf("expected two waits keyed by %q, got %v", host, pacer.keys)
	}
}

func TestPacerErrorStopsRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, "", WithPacer(&recordingPacer{err: context.DeadlineExceeded}))
	_, err := c.FetchWithRetry(context.Background(), srv.URL+"/search/users?q=x")

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected pacing error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no request, got %d", calls.Load())
	}
}
