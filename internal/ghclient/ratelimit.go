package ghclient

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spiffcs/ghsearch/internal/model"
)

// Response headers consumed by the client.
const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
	headerRateLimitUsed      = "X-RateLimit-Used"
	headerRetryAfter         = "Retry-After"
)

// ParseRateLimit extracts a quota snapshot from response headers.
//
// It returns nil unless limit, remaining and reset are all present and
// integral. Used defaults to 0 when absent. Any malformed value makes the
// whole snapshot absent rather than partially filled.
func ParseRateLimit(h http.Header) *model.RateLimit {
	limit, ok := headerInt(h, headerRateLimitLimit)
	if !ok {
		return nil
	}
	remaining, ok := headerInt(h, headerRateLimitRemaining)
	if !ok {
		return nil
	}
	reset, ok := headerInt(h, headerRateLimitReset)
	if !ok {
		return nil
	}

	var used int64
	if headerValue(h, headerRateLimitUsed) != "" {
		if used, ok = headerInt(h, headerRateLimitUsed); !ok {
			return nil
		}
	}

	return &model.RateLimit{
		Limit:     int(limit),
		Remaining: int(remaining),
		Reset:     reset,
		Used:      int(used),
	}
}

// parseRetryAfter reads Retry-After as a whole number of seconds.
// HTTP-date and negative values are ignored.
func parseRetryAfter(h http.Header) (time.Duration, bool) {
	secs, ok := headerInt(h, headerRetryAfter)
	if !ok || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func headerInt(h http.Header, key string) (int64, bool) {
	v := headerValue(h, key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// headerValue looks a header up case-insensitively, including maps built
// by hand with non-canonical keys.
func headerValue(h http.Header, key string) string {
	if h == nil {
		return ""
	}
	if v := h.Get(key); v != "" {
		return strings.TrimSpace(v)
	}
	for k, vs := range h {
		if strings.EqualFold(k, key) && len(vs) > 0 {
			return strings.TrimSpace(vs[0])
		}
	}
	return ""
}
