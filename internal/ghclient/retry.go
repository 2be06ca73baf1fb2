package ghclient

import (
	"context"
	"net/http"
	"time"

	"github.com/spiffcs/ghsearch/internal/constants"
	"github.com/spiffcs/ghsearch/internal/model"
)

// RetryPolicy bounds how a throttled request is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxWait     time.Duration
}

// DefaultRetryPolicy returns three attempts, a one second base delay and a
// ten second ceiling on any single wait.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: constants.DefaultMaxAttempts,
		BaseDelay:   constants.DefaultBaseDelay,
		MaxWait:     constants.MaxWait,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxWait <= 0 {
		p.MaxWait = constants.MaxWait
	}
	return p
}

// Outcome is the terminal or transitional state of one attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetry
	OutcomeFail
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	default:
		return "fail"
	}
}

// Decision is what the client does after one attempt. For OutcomeRetry,
// Delay is the wait before the next attempt. For OutcomeFail it is the wait
// that was computed and declined, if any.
type Decision struct {
	Outcome   Outcome
	Delay     time.Duration
	RateLimit *model.RateLimit
}

// decideRetry holds every retry rule. attempt counts from zero.
//
// Only 403 is retried. 429 and every other non-2xx fail at once. A 403 waits
// for Retry-After when it is given, otherwise for the quota reset when it is
// in the future, otherwise for BaseDelay doubled per attempt. A reset that
// passed more than MaxWait ago fails, as does any wait above MaxWait and any
// failure on the last attempt.
func decideRetry(attempt int, status int, h http.Header, p RetryPolicy, now time.Time) Decision {
	if status >= 200 && status < 300 {
		return Decision{Outcome: OutcomeSuccess}
	}

	rl := ParseRateLimit(h)
	d := Decision{Outcome: OutcomeFail, RateLimit: rl}
	if status != http.StatusForbidden {
		return d
	}

	last := attempt >= p.MaxAttempts-1

	wait, ok := parseRetryAfter(h)
	if !ok {
		wait = backoff(p.BaseDelay, attempt)
		if rl != nil {
			reset := rl.ResetTime()
			if reset.After(now) {
				wait = reset.Sub(now)
			} else if now.Sub(reset) > p.MaxWait || last {
				d.Delay = wait
				return d
			}
		}
	}

	d.Delay = wait
	if wait > p.MaxWait || last {
		return d
	}

	d.Outcome = OutcomeRetry
	return d
}

func backoff(base time.Duration, attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	return base << attempt
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
