package ghclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/spiffcs/ghsearch/internal/model"
)

// QueryRequiredMessage is reported when a search is attempted without a query.
const QueryRequiredMessage = "Query parameter 'q' is required"

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 1 << 20

var (
	// ErrQueryRequired is wrapped by the APIError returned for an empty query.
	ErrQueryRequired = errors.New("query parameter 'q' is required")

	// ErrSchemaMismatch indicates a search response that does not have the
	// expected shape. It is never retried.
	ErrSchemaMismatch = errors.New("unexpected GitHub response shape")

	errRetriesExhausted = errors.New("retry attempts exhausted")
)

// ErrorKind classifies an APIError for callers that react to rate limiting.
type ErrorKind string

const (
	// KindQuota means the primary quota is spent; wait for the reset.
	KindQuota ErrorKind = "quota"
	// KindSecondary means GitHub's short-window throttle tripped.
	KindSecondary ErrorKind = "secondary"
	// KindOther covers every other failure.
	KindOther ErrorKind = "other"
)

// APIError is a failed GitHub request as seen by callers. It carries the
// status, the decoded body and the quota snapshot, and never the response
// headers or any other transport object.
type APIError struct {
	Message   string           `json:"message"`
	Status    int              `json:"status"`
	Data      any              `json:"data"`
	RateLimit *model.RateLimit `json:"rateLimit,omitempty"`
	Kind      ErrorKind        `json:"kind"`

	// RetryAfterSeconds is the wait the client declined for a secondary
	// limit, or the time left until reset for a spent quota. Zero if unknown.
	RetryAfterSeconds int `json:"retryAfterSeconds,omitempty"`

	err error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.err
}

// AsAPIError returns the APIError in err's chain, if any.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsQuota reports whether err is a spent primary quota.
func IsQuota(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == KindQuota
}

// IsSecondary reports whether err is a secondary rate limit.
func IsSecondary(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == KindSecondary
}

func queryRequiredError() *APIError {
	return &APIError{
		Message: QueryRequiredMessage,
		Status:  http.StatusBadRequest,
		Data:    map[string]any{"message": QueryRequiredMessage},
		Kind:    KindOther,
		err:     ErrQueryRequired,
	}
}

// newAPIError builds the error for a failed response and closes its body.
// declined is the wait the retry loop refused, if any.
func newAPIError(resp *http.Response, declined time.Duration, now time.Time) *APIError {
	data := readErrorBody(resp.Body)
	rl := ParseRateLimit(resp.Header)
	kind := classify(resp.StatusCode, rl, resp.Header, data)

	apiErr := &APIError{
		Message:   fmt.Sprintf("GitHub API fetch failed: %d", resp.StatusCode),
		Status:    resp.StatusCode,
		Data:      data,
		RateLimit: rl,
		Kind:      kind,
	}

	switch kind {
	case KindQuota:
		if rl != nil {
			apiErr.RetryAfterSeconds = ceilSeconds(rl.ResetTime().Sub(now))
		}
	case KindSecondary:
		apiErr.RetryAfterSeconds = ceilSeconds(declined)
	}

	return apiErr
}

// classify tags a failed response once so consumers never re-infer it.
func classify(status int, rl *model.RateLimit, h http.Header, data any) ErrorKind {
	switch status {
	case http.StatusTooManyRequests:
		return KindQuota
	case http.StatusForbidden:
		if rl != nil && rl.Exhausted() {
			return KindQuota
		}
		if _, ok := parseRetryAfter(h); ok {
			return KindSecondary
		}
		if strings.Contains(strings.ToLower(bodyMessage(data)), "rate limit") {
			return KindSecondary
		}
	}
	return KindOther
}

// readErrorBody decodes a failure body, tolerating any parse failure as an
// empty object.
func readErrorBody(body io.ReadCloser) any {
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return map[string]any{}
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil || data == nil {
		return map[string]any{}
	}
	return data
}

func bodyMessage(data any) string {
	m, ok := data.(map[string]any)
	if !ok {
		return ""
	}
	msg, _ := m["message"].(string)
	return msg
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
