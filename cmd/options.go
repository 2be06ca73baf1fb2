package cmd

// Options holds the shared command-line options for the ghsearch CLI.
type Options struct {
	Format    string
	Verbosity int
	NoCache   bool

	// Raw query; when set the filter flags are ignored.
	Query string

	// Filter flags
	Type         string
	In           []string
	Sponsorable  bool
	Locations    []string
	Languages    []string
	Repos        string
	Followers    string
	Joined       string // any, 1y, 1-3y, 3y+ or FROM..TO
	JoinedWithin string // e.g. 6mo; overrides Joined

	// Paging and ordering
	Page    int
	PerPage int
	Sort    string
	Order   string

	// Server options
	Addr string

	// Profiling options
	CPUProfile string // Write CPU profile to file
	MemProfile string // Write memory profile to file
	Trace      string // Write execution trace to file
}

// Option is a functional option for configuring Options.
type Option func(*Options)

// NewOptions creates a new Options with defaults and applies any provided options.
func NewOptions(opts ...Option) *Options {
	o := &Options{
		Type:   "user",
		In:     []string{"login", "name"},
		Joined: "any",
		Page:   1,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithFormat sets the output format (table, json).
func WithFormat(format string) Option {
	return func(o *Options) {
		o.Format = format
	}
}

// WithQuery sets a raw search query.
func WithQuery(q string) Option {
	return func(o *Options) {
		o.Query = q
	}
}

// WithType sets the account type filter (user, org).
func WithType(t string) Option {
	return func(o *Options) {
		o.Type = t
	}
}

// WithRepos sets the repository count range, e.g. ">=10" or "5..50".
func WithRepos(r string) Option {
	return func(o *Options) {
		o.Repos = r
	}
}

// WithFollowers sets the follower count range.
func WithFollowers(r string) Option {
	return func(o *Options) {
		o.Followers = r
	}
}

// WithJoined sets the account creation window.
func WithJoined(j string) Option {
	return func(o *Options) {
		o.Joined = j
	}
}

// WithJoinedWithin limits results to accounts created within a window, e.g. "6mo".
func WithJoinedWithin(w string) Option {
	return func(o *Options) {
		o.JoinedWithin = w
	}
}

// WithVerbosity sets the verbosity level.
func WithVerbosity(v int) Option {
	return func(o *Options) {
		o.Verbosity = v
	}
}

// WithNoCache bypasses the on-disk cache.
func WithNoCache(noCache bool) Option {
	return func(o *Options) {
		o.NoCache = noCache
	}
}
