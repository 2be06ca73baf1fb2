package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/spiffcs/ghsearch/internal/constants"
)

// Config represents the application configuration as read from disk.
// Pointer fields distinguish "unset" from a zero value so that a local
// file can override only what it names.
type Config struct {
	DefaultFormat string   `yaml:"default_format,omitempty" validate:"omitempty,oneof=table json"`
	APIBaseURL    string   `yaml:"api_base_url,omitempty" validate:"omitempty,url"`
	PerPage       *int     `yaml:"per_page,omitempty" validate:"omitempty,min=1,max=100"`
	OutboundRPS   *float64 `yaml:"outbound_rps,omitempty" validate:"omitempty,gte=0"`
	MockAPI       *bool    `yaml:"mock_api,omitempty"`

	Retry  *RetryOverrides  `yaml:"retry,omitempty"`
	Cache  *CacheOverrides  `yaml:"cache,omitempty"`
	Server *ServerOverrides `yaml:"server,omitempty"`
}

// RetryOverrides tunes the retry policy for throttled requests.
type RetryOverrides struct {
	MaxAttempts *int           `yaml:"max_attempts,omitempty" validate:"omitempty,min=1,max=10"`
	BaseDelay   *time.Duration `yaml:"base_delay,omitempty" validate:"omitempty,gt=0"`
}

// CacheOverrides controls the on-disk cache.
type CacheOverrides struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

// ServerOverrides configures `ghsearch serve`.
type ServerOverrides struct {
	Addr           *string            `yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
	AllowedOrigins []string           `yaml:"allowed_origins,omitempty" validate:"omitempty,dive,required"`
	TrustedProxies []string           `yaml:"trusted_proxies,omitempty" validate:"omitempty,dive,cidr|ip"`
	RateLimit      *RateLimitOverride `yaml:"rate_limit,omitempty"`
}

// RateLimitOverride bounds inbound requests per client IP.
type RateLimitOverride struct {
	RPS   *float64 `yaml:"rps,omitempty" validate:"omitempty,gt=0"`
	Burst *int     `yaml:"burst,omitempty" validate:"omitempty,min=1"`
}

// Settings is the fully resolved configuration with defaults applied.
type Settings struct {
	Format       string
	APIBaseURL   string
	PerPage      int
	OutboundRPS  float64
	MockAPI      bool
	MaxAttempts  int
	BaseDelay    time.Duration
	CacheEnabled bool
	Server       ServerSettings
}

// ServerSettings is the resolved server configuration.
type ServerSettings struct {
	Addr           string
	AllowedOrigins []string
	TrustedProxies []string
	RPS            float64
	Burst          int
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() Settings {
	return Settings{
		Format:       "table",
		APIBaseURL:   constants.DefaultAPIBaseURL,
		PerPage:      constants.DefaultPerPage,
		MaxAttempts:  constants.DefaultMaxAttempts,
		BaseDelay:    constants.DefaultBaseDelay,
		CacheEnabled: true,
		Server: ServerSettings{
			Addr:           constants.DefaultServerAddr,
			AllowedOrigins: []string{"http://localhost:3000"},
			RPS:            constants.DefaultServerRPS,
			Burst:          constants.DefaultServerBurst,
		},
	}
}

// Resolve returns settings with overrides merged onto the defaults.
// MOCK_GITHUB_API=true in the environment forces fixture mode.
func (c *Config) Resolve() Settings {
	s := DefaultSettings()

	if c.DefaultFormat != "" {
		s.Format = c.DefaultFormat
	}
	if c.APIBaseURL != "" {
		s.APIBaseURL = c.APIBaseURL
	}
	if c.PerPage != nil {
		s.PerPage = *c.PerPage
	}
	if c.OutboundRPS != nil {
		s.OutboundRPS = *c.OutboundRPS
	}
	if c.MockAPI != nil {
		s.MockAPI = *c.MockAPI
	}
	if MockFromEnv() {
		s.MockAPI = true
	}

	if r := c.Retry; r != nil {
		if r.MaxAttempts != nil {
			s.MaxAttempts = *r.MaxAttempts
		}
		if r.BaseDelay != nil {
			s.BaseDelay = *r.BaseDelay
		}
	}

	if c.Cache != nil && c.Cache.Enabled != nil {
		s.CacheEnabled = *c.Cache.Enabled
	}

	if srv := c.Server; srv != nil {
		if srv.Addr != nil {
			s.Server.Addr = *srv.Addr
		}
		if len(srv.AllowedOrigins) > 0 {
			s.Server.AllowedOrigins = srv.AllowedOrigins
		}
		if len(srv.TrustedProxies) > 0 {
			s.Server.TrustedProxies = srv.TrustedProxies
		}
		if rl := srv.RateLimit; rl != nil {
			if rl.RPS != nil {
				s.Server.RPS = *rl.RPS
			}
			if rl.Burst != nil {
				s.Server.Burst = *rl.Burst
			}
		}
	}

	return s
}

// MockFromEnv reports whether MOCK_GITHUB_API is set to true.
func MockFromEnv() bool {
	return strings.EqualFold(os.Getenv("MOCK_GITHUB_API"), "true")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report YAML key names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks field constraints and reports every violation at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s %s", yamlPath(fe.Namespace()), friendlyMessage(fe)))
	}
	sort.Strings(msgs)
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// yamlPath turns "Config.server.rate_limit.rps" into "server.rate_limit.rps".
func yamlPath(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}

func friendlyMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return "must be one of: " + fe.Param()
	case "url":
		return "must be a valid URL"
	case "hostname_port":
		return "must be host:port"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "required":
		return "must not be empty"
	case "cidr|ip":
		return "must be an IP address or CIDR range"
	default:
		return "is invalid"
	}
}

// DefaultConfigDir returns the default config directory
func DefaultConfigDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ".ghsearch"
	}
	return filepath.Join(configDir, "ghsearch")
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// LocalConfigPath returns the path to the local config file in the current directory
func LocalConfigPath() string {
	return ".ghsearch.yaml"
}

// Load loads the configuration from disk.
// It first loads the global config from XDG config directory, then merges
// any local .ghsearch.yaml config on top (local values take precedence).
func Load() (*Config, error) {
	return LoadFrom(ConfigPath(), LocalConfigPath())
}

// LoadFrom is Load with explicit paths. Missing files are skipped.
func LoadFrom(globalPath, localPath string) (*Config, error) {
	cfg := &Config{}

	if err := readInto(globalPath, cfg); err != nil {
		return nil, fmt.Errorf("global config: %w", err)
	}

	var localCfg Config
	if err := readInto(localPath, &localCfg); err != nil {
		return nil, fmt.Errorf("local config: %w", err)
	}
	cfg = mergeConfig(cfg, &localCfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readInto(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// mergeConfig merges local config on top of global config.
// Local values take precedence; unset local values preserve global values.
func mergeConfig(global, local *Config) *Config {
	result := &Config{
		DefaultFormat: firstString(local.DefaultFormat, global.DefaultFormat),
		APIBaseURL:    firstString(local.APIBaseURL, global.APIBaseURL),
		PerPage:       firstPtr(local.PerPage, global.PerPage),
		OutboundRPS:   firstPtr(local.OutboundRPS, global.OutboundRPS),
		MockAPI:       firstPtr(local.MockAPI, global.MockAPI),
	}

	if global.Retry != nil || local.Retry != nil {
		g, l := deref(global.Retry), deref(local.Retry)
		result.Retry = &RetryOverrides{
			MaxAttempts: firstPtr(l.MaxAttempts, g.MaxAttempts),
			BaseDelay:   firstPtr(l.BaseDelay, g.BaseDelay),
		}
	}

	if global.Cache != nil || local.Cache != nil {
		g, l := deref(global.Cache), deref(local.Cache)
		result.Cache = &CacheOverrides{Enabled: firstPtr(l.Enabled, g.Enabled)}
	}

	if global.Server != nil || local.Server != nil {
		g, l := deref(global.Server), deref(local.Server)
		srv := &ServerOverrides{
			Addr:           firstPtr(l.Addr, g.Addr),
			AllowedOrigins: g.AllowedOrigins,
			TrustedProxies: g.TrustedProxies,
		}
		// Lists are replaced, not appended.
		if len(l.AllowedOrigins) > 0 {
			srv.AllowedOrigins = l.AllowedOrigins
		}
		if len(l.TrustedProxies) > 0 {
			srv.TrustedProxies = l.TrustedProxies
		}
		if g.RateLimit != nil || l.RateLimit != nil {
			gr, lr := deref(g.RateLimit), deref(l.RateLimit)
			srv.RateLimit = &RateLimitOverride{
				RPS:   firstPtr(lr.RPS, gr.RPS),
				Burst: firstPtr(lr.Burst, gr.Burst),
			}
		}
		result.Server = srv
	}

	return result
}

func firstString(local, global string) string {
	if local != "" {
		return local
	}
	return global
}

func firstPtr[T any](local, global *T) *T {
	if local != nil {
		return local
	}
	return global
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	if err := c.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return SaveTo(ConfigPath(), string(data))
}

// GetGitHubToken returns the GitHub token from the GITHUB_TOKEN environment variable.
// Tokens are never read from config files.
func (c *Config) GetGitHubToken() string {
	return os.Getenv("GITHUB_TOKEN")
}

// DefaultConfig returns a fully populated config with all default values.
// This is useful for generating a complete config file template.
func DefaultConfig() *Config {
	s := DefaultSettings()
	mock := false

	return &Config{
		DefaultFormat: s.Format,
		APIBaseURL:    s.APIBaseURL,
		PerPage:       &s.PerPage,
		OutboundRPS:   &s.OutboundRPS,
		MockAPI:       &mock,
		Retry: &RetryOverrides{
			MaxAttempts: &s.MaxAttempts,
			BaseDelay:   &s.BaseDelay,
		},
		Cache: &CacheOverrides{Enabled: &s.CacheEnabled},
		Server: &ServerOverrides{
			Addr:           &s.Server.Addr,
			AllowedOrigins: s.Server.AllowedOrigins,
			RateLimit: &RateLimitOverride{
				RPS:   &s.Server.RPS,
				Burst: &s.Server.Burst,
			},
		},
	}
}

// ToYAML returns the config as a YAML string
func (c *Config) ToYAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(data), nil
}

// ConfigPathInfo contains information about config file paths
type ConfigPathInfo struct {
	GlobalPath   string
	GlobalExists bool
	LocalPath    string
	LocalExists  bool
}

// GetConfigPaths returns path info for both global and local configs
func GetConfigPaths() ConfigPathInfo {
	globalPath := ConfigPath()
	localPath := LocalConfigPath()

	// Get absolute path for local config
	absLocalPath, err := filepath.Abs(localPath)
	if err != nil {
		absLocalPath = localPath
	}

	_, globalErr := os.Stat(globalPath)
	_, localErr := os.Stat(localPath)

	return ConfigPathInfo{
		GlobalPath:   globalPath,
		GlobalExists: globalErr == nil,
		LocalPath:    absLocalPath,
		LocalExists:  localErr == nil,
	}
}

// MinimalConfig returns a minimal config template with comments
func MinimalConfig() string {
	return `# ghsearch configuration file
# See: ghsearch config defaults  (for all available options)

# Output format: table or json
default_format: table

# Results per page (1-100)
# per_page: 30

# GitHub Enterprise API root (optional)
# api_base_url: https://github.example.com/api/v3

# Retry throttled requests (waits never exceed 10s)
# retry:
#   max_attempts: 3
#   base_delay: 1s

# Settings for "ghsearch serve"
# server:
#   addr: ":8080"
#   allowed_origins:
#     - http://localhost:3000
#   # X-Forwarded-For is only honored from these addresses
#   trusted_proxies:
#     - 127.0.0.1
#   rate_limit:
#     rps: 2
#     burst: 10
`
}

// SaveTo writes content to a specific path, creating directories as needed
func SaveTo(path string, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	return nil
}
