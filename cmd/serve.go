package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spiffcs/ghsearch/config"
	"github.com/spiffcs/ghsearch/internal/log"
	"github.com/spiffcs/ghsearch/internal/server"
)

// NewCmdServe creates the serve command.
func NewCmdServe(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve user search over HTTP",
		Long: `Runs an HTTP server exposing GET /api/github/search/users for browser
clients. Requests are limited per client IP; allowed CORS origins,
limits and trusted proxies come from the server section of the config.
Forwarded client addresses are only honored from trusted proxies.

Stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "Listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false, "Bypass the profile cache")
	cmd.Flags().CountVarP(&opts.Verbosity, "verbose", "v", "Increase verbosity (-v info, -vv debug, -vvv trace)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *Options) error {
	// Request logs are info level; a server is never quiet.
	log.Initialize(max(opts.Verbosity, log.LevelInfo), os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	settings := cfg.Resolve()

	searcher, cleanup, err := newSearcher(cfg.GetGitHubToken(), settings, opts.NoCache)
	if err != nil {
		return err
	}
	defer cleanup()

	addr := settings.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	trusted, err := server.ParseTrustedProxies(settings.Server.TrustedProxies)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:           addr,
		AllowedOrigins: settings.Server.AllowedOrigins,
		TrustedProxies: trusted,
		RPS:            settings.Server.RPS,
		Burst:          settings.Server.Burst,
	}, searcher, log.Logger())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Start(ctx)
}
