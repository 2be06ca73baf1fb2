package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spiffcs/ghsearch/config"
	"github.com/spiffcs/ghsearch/internal/duration"
	"github.com/spiffcs/ghsearch/internal/ghclient"
	"github.com/spiffcs/ghsearch/internal/log"
	"github.com/spiffcs/ghsearch/internal/model"
	"github.com/spiffcs/ghsearch/internal/output"
	"github.com/spiffcs/ghsearch/internal/query"
)

// NewCmdSearch creates the search command.
func NewCmdSearch(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search GitHub users and organizations",
		Long: `Searches GitHub users, then fetches each result's profile to fill in
repository and follower counts, join date and location.

Filters are combined into a GitHub search query. Use --query to pass a
raw query instead.

Examples:
  ghsearch search tom --location Berlin --repos ">=10"
  ghsearch search --type org --language go --joined 3y+
  ghsearch search --query "type:user followers:>1000" -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args, opts)
		},
	}

	addSearchFlags(cmd, opts)
	return cmd
}

// addSearchFlags adds the search-specific flags to a command.
func addSearchFlags(cmd *cobra.Command, opts *Options) {
	f := cmd.Flags()
	f.StringVar(&opts.Query, "query", "", "Raw GitHub search query (overrides filter flags)")
	f.StringVar(&opts.Type, "type", opts.Type, "Account type (user, org)")
	f.StringSliceVar(&opts.In, "in", opts.In, "Fields free text is matched against (login, name, email)")
	f.BoolVar(&opts.Sponsorable, "sponsorable", false, "Only accounts with GitHub Sponsors")
	f.StringArrayVar(&opts.Locations, "location", nil, "Location, repeatable")
	f.StringArrayVar(&opts.Languages, "language", nil, "Primary repository language, repeatable")
	f.StringVar(&opts.Repos, "repos", "", `Public repository count (e.g. ">=10", "5..50")`)
	f.StringVar(&opts.Followers, "followers", "", `Follower count (e.g. ">=100", "*..50")`)
	f.StringVar(&opts.Joined, "joined", opts.Joined, "Join window (any, 1y, 1-3y, 3y+, or FROM..TO dates)")
	f.StringVar(&opts.JoinedWithin, "joined-within", "", "Only accounts created within a window (e.g. 30d, 6mo, 2y)")

	f.IntVar(&opts.Page, "page", opts.Page, "Result page")
	f.IntVar(&opts.PerPage, "per-page", 0, "Results per page, at most 100 (default from config)")
	f.StringVar(&opts.Sort, "sort", "", "Sort by followers, repositories or joined")
	f.StringVar(&opts.Order, "order", "", "Sort order (asc, desc)")

	f.StringVarP(&opts.Format, "output", "o", "", "Output format (table, json)")
	f.BoolVar(&opts.NoCache, "no-cache", false, "Bypass the profile cache")
	f.CountVarP(&opts.Verbosity, "verbose", "v", "Increase verbosity (-v info, -vv debug, -vvv trace)")

	f.StringVar(&opts.CPUProfile, "cpuprofile", "", "Write CPU profile to file")
	f.StringVar(&opts.MemProfile, "memprofile", "", "Write memory profile to file")
	f.StringVar(&opts.Trace, "trace", "", "Write execution trace to file")
}

func runSearch(cmd *cobra.Command, args []string, opts *Options) error {
	profiler := NewProfiler(opts.CPUProfile, opts.MemProfile, opts.Trace)
	if err := profiler.Start(); err != nil {
		return err
	}
	log.Initialize(opts.Verbosity, os.Stderr)
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Warn("profiling incomplete", "error", err)
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	settings := cfg.Resolve()

	now := time.Now()
	q, filter, err := buildSearchQuery(opts, args, now)
	if err != nil {
		return err
	}

	format := opts.Format
	if format == "" {
		format = settings.Format
	}
	outFormat, err := output.ParseFormat(format)
	if err != nil {
		return err
	}

	params := model.SearchParams{
		Q:       q,
		Page:    opts.Page,
		PerPage: opts.PerPage,
		Sort:    opts.Sort,
		Order:   opts.Order,
	}
	if params.PerPage <= 0 {
		params.PerPage = settings.PerPage
	}

	searcher, cleanup, err := newSearcher(cfg.GetGitHubToken(), settings, opts.NoCache)
	if err != nil {
		return err
	}
	defer cleanup()

	log.Debug("search query", "q", q, "page", params.Page, "per_page", params.PerPage)
	log.Progress("Searching GitHub users...")

	resp, err := searcher.Search(cmd.Context(), params)
	if err != nil {
		log.ProgressClear()
		return describeSearchError(err)
	}
	log.ProgressDone()

	if rl := resp.RateLimit; rl != nil && rl.Remaining < rl.Limit/10 {
		log.Warn("search quota running low", "remaining", rl.Remaining, "limit", rl.Limit)
	}

	return output.NewFormatter(outFormat).Format(resp, output.Context{
		Query:   q,
		Page:    params.Page,
		PerPage: params.PerPage,
		Filters: query.Summary(filter),
		Now:     now,
	}, cmd.OutOrStdout())
}

// buildSearchQuery returns the q parameter and the filter it represents.
// A raw --query is parsed back into a filter for the summary line.
func buildSearchQuery(opts *Options, args []string, now time.Time) (string, query.Filter, error) {
	text := strings.TrimSpace(strings.Join(args, " "))

	if opts.Query != "" {
		if text != "" {
			return "", query.Filter{}, fmt.Errorf("cannot combine search text with --query")
		}
		return opts.Query, query.Parse(opts.Query), nil
	}

	filter, err := filterFromOptions(opts, text, now)
	if err != nil {
		return "", query.Filter{}, err
	}
	return query.Build(filter, now), filter, nil
}

func filterFromOptions(opts *Options, text string, now time.Time) (query.Filter, error) {
	f := query.Default()
	f.Text = text
	f.SponsorableOnly = opts.Sponsorable
	f.Locations = opts.Locations
	f.Languages = opts.Languages

	switch strings.ToLower(opts.Type) {
	case "", "user", "users":
		f.Type = query.AccountUser
	case "org", "orgs", "organization", "organizations":
		f.Type = query.AccountOrg
	default:
		return f, fmt.Errorf("invalid --type: %s (must be user or org)", opts.Type)
	}

	if opts.In != nil {
		f.TextFields = query.TextFields{}
		for _, field := range opts.In {
			switch strings.ToLower(strings.TrimSpace(field)) {
			case "login":
				f.TextFields.Login = true
			case "name":
				f.TextFields.Name = true
			case "email":
				f.TextFields.Email = true
			default:
				return f, fmt.Errorf("invalid --in field: %s (must be login, name or email)", field)
			}
		}
	}

	var err error
	if opts.Repos != "" {
		if f.Repos, err = query.ParseRange(opts.Repos); err != nil {
			return f, fmt.Errorf("invalid --repos: %w", err)
		}
	}
	if opts.Followers != "" {
		if f.Followers, err = query.ParseRange(opts.Followers); err != nil {
			return f, fmt.Errorf("invalid --followers: %w", err)
		}
	}

	if f.Joined, err = parseJoinedFlag(opts.Joined); err != nil {
		return f, err
	}
	if opts.JoinedWithin != "" {
		from, err := duration.Since(opts.JoinedWithin, now)
		if err != nil {
			return f, fmt.Errorf("invalid --joined-within: %w", err)
		}
		f.Joined = query.Joined{Preset: query.JoinedCustom, From: from}
	}

	return f, nil
}

func parseJoinedFlag(s string) (query.Joined, error) {
	switch s {
	case "", "any":
		return query.Joined{Preset: query.JoinedAny}, nil
	case "1y":
		return query.Joined{Preset: query.JoinedLastYear}, nil
	case "1-3y":
		return query.Joined{Preset: query.JoinedOneToThree}, nil
	case "3y+":
		return query.Joined{Preset: query.JoinedThreePlus}, nil
	}

	from, to, ok := strings.Cut(s, "..")
	if !ok {
		return query.Joined{}, fmt.Errorf("invalid --joined: %s (use any, 1y, 1-3y, 3y+ or FROM..TO)", s)
	}
	j := query.Joined{Preset: query.JoinedCustom}
	for _, p := range []struct {
		raw string
		dst *string
	}{{from, &j.From}, {to, &j.To}} {
		if p.raw == "*" || p.raw == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", p.raw); err != nil {
			return query.Joined{}, fmt.Errorf("invalid --joined date %q: want YYYY-MM-DD", p.raw)
		}
		*p.dst = p.raw
	}
	return j, nil
}

// describeSearchError turns rate limit failures into an actionable message.
func describeSearchError(err error) error {
	apiErr, ok := ghclient.AsAPIError(err)
	if !ok {
		return fmt.Errorf("search failed: %w", err)
	}

	switch apiErr.Kind {
	case ghclient.KindQuota:
		return fmt.Errorf("GitHub search quota exhausted, retry in %ds: %w", apiErr.RetryAfterSeconds, err)
	case ghclient.KindSecondary:
		return fmt.Errorf("GitHub secondary rate limit hit, retry in %ds: %w", apiErr.RetryAfterSeconds, err)
	default:
		return fmt.Errorf("search failed: %w", err)
	}
}
