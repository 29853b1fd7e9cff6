package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coreman2200/relive/internal/app"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var (
		addr      string
		autostart bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a session headless behind HTTP and websockets",
		Long: `serve runs one playback session and exposes it:

  /ws/state    state pushes and map snapshots
  /ws/control  {"cmd":"next"} or {"key":"right"}
  /ws/diag     diagnostics
  /health      session summary
  /api/timeline the sorted records
  /metrics     Prometheus metrics

The process exits when the session exits or on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			log := root.log

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			core, err := app.InitCore(ctx, app.Options{Config: cfg, Log: log})
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      withCORS(core.Hub.Router()),
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 10 * time.Second,
				IdleTimeout:  60 * time.Second,
			}
			serveErr := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.Server.Addr).Msg("HTTP server starting")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
			}()
			if autostart {
				core.Session.Start()
			}

			select {
			case <-ctx.Done():
				log.Info().Msg("shutting down")
			case <-core.Session.Done():
				log.Info().Msg("session exited")
			case err = <-serveErr:
				log.Error().Err(err).Msg("http server failed")
			}

			sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
			if serr := core.Shutdown(sctx); serr != nil {
				log.Warn().Err(serr).Msg("shutdown incomplete")
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address")
	cmd.Flags().BoolVar(&autostart, "autostart", false, "start playback immediately")
	return cmd
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}
