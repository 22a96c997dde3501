package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rileyhilliard/vector/internal/httpserver"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveAddr  string
	serveNoAPI bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the configured host and serve the HTTP API",
	Long: `Acquire a pmwebapi context for the configured host, start the poll loop,
and serve session state and series over HTTP until interrupted.

Without a host the API still starts; set one with PUT /api/host or
'vector host set'.

Examples:
  vector serve
  vector serve --addr 0.0.0.0:7720
  VECTOR_HOST=perf01 vector serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serveCommand(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "API listen address (overrides api.addr)")
	serveCmd.Flags().BoolVar(&serveNoAPI, "no-api", false, "poll without serving the HTTP API")
}

func serveCommand(ctx context.Context) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.API.Addr = serveAddr
	}

	a, err := buildApp(cfg, path, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// A failed first acquisition is alerted and logged; the API stays up
		// so the host can be corrected.
		if err := a.mgr.Initialize(ctx); err != nil {
			a.log.Error("[session] initialize: %v", err)
		}
		<-ctx.Done()
		a.mgr.Close()
		return nil
	})

	if cfg.API.Enabled && !serveNoAPI {
		srv := httpserver.NewServer(cfg.API.Addr, a.mgr, a.board, a.stats, a.log)
		if err := srv.Start(); err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			return srv.Stop()
		})
	}

	return g.Wait()
}
