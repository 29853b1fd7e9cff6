package main

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/coreman2200/relive/internal/app"
	"github.com/coreman2200/relive/internal/playback"
	"github.com/coreman2200/relive/internal/timeline"
	"github.com/coreman2200/relive/internal/tui"
)

func newPlayCommand(root *rootOptions) *cobra.Command {
	var (
		serve     bool
		autostart bool
	)
	cmd := &cobra.Command{
		Use:         "play",
		Short:       "Play the timeline in the terminal",
		Annotations: map[string]string{quietAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := root.cfg, root.log
			keys := tui.NewKeys()
			var prog atomic.Pointer[tea.Program]

			core, err := app.InitCore(cmd.Context(), app.Options{
				Config: cfg,
				Log:    log,
				Inputs: []playback.InputSource{keys},
				OnReload: func(recs []timeline.Record) {
					if p := prog.Load(); p != nil {
						p.Send(tui.RecordsMsg(recs))
					}
				},
			})
			if err != nil {
				return err
			}

			var srv *http.Server
			if serve {
				srv = &http.Server{Addr: cfg.Server.Addr, Handler: withCORS(core.Hub.Router())}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error().Err(err).Msg("http server failed")
					}
				}()
			}

			model := tui.New(keys, playback.DefaultBindings(), core.Records(), core.Session.State(), core.Map)
			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			prog.Store(p)
			stop := tui.Bridge(p, core.Session)
			if autostart {
				core.Session.Start()
			}

			_, runErr := p.Run()
			stop()

			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if srv != nil {
				_ = srv.Shutdown(ctx)
			}
			if err := core.Shutdown(ctx); err != nil {
				log.Warn().Err(err).Msg("shutdown incomplete")
			}
			if errors.Is(runErr, tea.ErrProgramKilled) {
				return nil
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&serve, "serve", false, "also serve the websocket API")
	cmd.Flags().BoolVar(&autostart, "autostart", false, "start playback immediately")
	return cmd
}
