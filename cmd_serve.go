package main

import (
	"os"
	"os/signal"
	"syscall"

	"astro_insight/src/logger"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session API over HTTP",
		Long: `Start the HTTP API.

Endpoints:
  POST   /api/sessions                 start a session with {"input": "..."}
  POST   /api/sessions/{id}/messages   continue a session
  GET    /api/sessions/{id}            current session snapshot
  DELETE /api/sessions/{id}            forget a session
  GET    /api/datasets                 configured datasets
  GET    /api/history                  finished runs (?session_id=&limit=)
  GET    /healthz                      health check

The dataset directory is watched and reloaded while the server runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if addr != "" {
				opts.config.ServerConfig.Addr = addr
			}
			a, err := opts.newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return a.Server().ListenAndServe(gctx)
			})

			watchDone, err := a.Catalog.StartWatch(gctx)
			if err != nil {
				logger.Warn().Err(err).Msg("Dataset directory is not watched")
			} else {
				g.Go(func() error {
					<-watchDone
					return nil
				})
			}

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides SERVER_ADDR)")
	return cmd
}
