// Package cache stores GitHub user details on disk for a day.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gh "github.com/google/go-github/v57/github"

	"github.com/spiffcs/ghsearch/internal/constants"
	"github.com/spiffcs/ghsearch/internal/log"
)

// Cacher defines the interface for caching operations.
// This interface enables mocking the cache in unit tests.
type Cacher interface {
	Get(login string) (*gh.User, bool)
	Set(login string, user *gh.User) error

	Clear() error
	DetailedStats() (*Stats, error)
}

var _ Cacher = (*Cache)(nil)

// Cache is a directory of JSON entry files.
type Cache struct {
	dir string
	now func() time.Time
}

// NewCache opens the cache under the user cache directory.
func NewCache() (*Cache, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return nil, err
	}
	return NewCacheAt(filepath.Join(cacheDir, "ghsearch", "users"))
}

// NewCacheAt opens a cache rooted at dir, creating it if needed.
func NewCacheAt(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{dir: dir, now: time.Now}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// userFile maps a login to a file name. Logins are case-insensitive on GitHub.
func userFile(login string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, strings.ToLower(login))
	return userPrefix + safe + ".json"
}

// Get returns the cached detail for login if it is present and fresh.
func (c *Cache) Get(login string) (*gh.User, bool) {
	if login == "" {
		return nil, false
	}

	var entry UserEntry
	name := userFile(login)
	if !c.read(name, &entry) {
		return nil, false
	}

	if entry.Version != Version {
		log.Debug("cache version mismatch", "cached", entry.Version, "current", Version, "key", name)
		return nil, false
	}
	if c.now().Sub(entry.CachedAt) > constants.DetailCacheTTL || entry.User == nil {
		return nil, false
	}

	return entry.User, true
}

// Set stores the detail for login.
func (c *Cache) Set(login string, user *gh.User) error {
	if login == "" || user == nil {
		return nil
	}
	return c.write(userFile(login), UserEntry{
		User:     user,
		CachedAt: c.now(),
		Version:  Version,
	})
}

func (c *Cache) read(name string, v any) bool {
	data, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Debug("ignoring unreadable cache entry", "key", name, "error", err)
		return false
	}
	return true
}

// write replaces name atomically so concurrent readers never see a partial file.
func (c *Cache) write(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(c.dir, name+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(c.dir, name))
}

// Clear removes all cached entries
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
			return err
		}
	}

	return nil
}

// DetailedStats counts cached user details and how many are still fresh.
func (c *Cache) DetailedStats() (*Stats, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	now := c.now()

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, userPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		stats.Total++

		var meta struct {
			CachedAt time.Time `json:"cachedAt"`
			Version  int       `json:"version"`
		}
		if c.read(name, &meta) && meta.Version == Version && now.Sub(meta.CachedAt) <= constants.DetailCacheTTL {
			stats.Valid++
		}
	}

	return stats, nil
}
