package model

import "time"

// RateLimit is a quota snapshot taken from one response's X-RateLimit-* headers.
type RateLimit struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"` // epoch seconds
	Used      int   `json:"used"`
}

// ResetTime returns Reset as a time.
func (r RateLimit) ResetTime() time.Time {
	return time.Unix(r.Reset, 0)
}

// Exhausted reports whether the primary quota is used up.
func (r RateLimit) Exhausted() bool {
	return r.Remaining <= 0
}
