package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/server"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/syncerr"
)

func (a *app) daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Sync periodically until interrupted",
		Long:  "Runs a full sync every interval. When listen is set, serves /healthz, /status and POST /sync.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, err := a.newEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			srv := server.New(ctx, eng.reconciler, a.logger)
			errCh := make(chan error, 1)
			if a.cfg.Listen != "" {
				go func() { errCh <- srv.Run(ctx, a.cfg.Listen) }()
			}

			a.logger.Info("daemon: started", "interval", a.cfg.Interval, "listen", a.cfg.Listen)
			ticker := time.NewTicker(a.cfg.Interval)
			defer ticker.Stop()

			for {
				a.scheduledRun(ctx, srv, eng)
				select {
				case <-ctx.Done():
					srv.Wait()
					a.logger.Info("daemon: stopped")
					return nil
				case err := <-errCh:
					srv.Wait()
					return err
				case <-ticker.C:
				}
			}
		},
	}
}

func (a *app) scheduledRun(ctx context.Context, srv *server.Server, eng *engine) {
	result, err := srv.RunSync(ctx)
	switch {
	case errors.Is(err, syncerr.ErrSyncInProgress):
		a.logger.Info("daemon: skipped, a triggered run is in progress")
		return
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		a.logger.Error("daemon: sync failed", "err", err)
		return
	}
	if n := result.ErrorCount(); n > 0 {
		a.logger.Warn("daemon: sync finished with task errors", "errors", n)
	}
	a.applyRetention(eng.store)
}
