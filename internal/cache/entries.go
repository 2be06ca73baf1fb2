package cache

import (
	"time"

	gh "github.com/google/go-github/v57/github"
)

// Version should be incremented when an entry format changes so that
// old entries are ignored instead of misread.
const Version = 2

// userPrefix marks user detail entry files.
const userPrefix = "user_"

// UserEntry is a cached user detail record.
type UserEntry struct {
	User     *gh.User  `json:"user"`
	CachedAt time.Time `json:"cachedAt"`
	Version  int       `json:"version"`
}

// Stats counts cached user details.
type Stats struct {
	Total int
	Valid int
}

// Expired returns the number of entries past their TTL or written by an
// older version.
func (s *Stats) Expired() int {
	return s.Total - s.Valid
}
