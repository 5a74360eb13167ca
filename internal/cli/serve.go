package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/suricare/suricare/internal/api"
	"github.com/suricare/suricare/internal/lockfile"
	"github.com/suricare/suricare/internal/scheduler"
)

const weeklyAnalysisJob = "weekly-analysis"

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the weekly alert job",
		Long:  "Serves the HTTP API and runs the weekly alert analysis. A SQLite database directory is locked so only one server uses it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if dsnType(cfg) == "sqlite3" {
				lock, err := lockfile.Acquire(filepath.Dir(cfg.DSN()))
				if err != nil {
					return err
				}
				defer lock.Release()
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			sched, err := a.startScheduler()
			if err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := sched.Stop(stopCtx); err != nil {
					slog.Warn("serve: scheduler did not stop cleanly", "error", err)
				}
			}()

			srv := api.NewServer(a.st, a.assistant, a.analyzer,
				api.WithAddr(cfg.APIAddr),
				api.WithAlertGenerator(a.alerts))
			slog.Info("serve: starting SuriCare", "addr", cfg.APIAddr)
			if err := srv.Run(ctx); err != nil {
				return fmt.Errorf("api server: %w", err)
			}
			slog.Info("serve: SuriCare exited")
			return nil
		},
	}
}

// startScheduler registers the weekly analysis when alerts are enabled.
func (a *app) startScheduler() (*scheduler.Scheduler, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	sched := scheduler.NewScheduler(scheduler.WithLocation(loc))
	if !a.cfg.Alerts.Enabled {
		slog.Info("app.startScheduler: weekly alerts disabled")
		return sched, nil
	}
	job := func(ctx context.Context) error {
		res, err := a.alerts.RunAll(ctx)
		if err != nil {
			return err
		}
		slog.Info("app.startScheduler: weekly analysis finished", "children", res.Children, "alerts", res.Alerts, "failures", res.Failures)
		return nil
	}
	if err := sched.AddJob(weeklyAnalysisJob, a.cfg.Alerts.Schedule, job); err != nil {
		_ = sched.Stop(context.Background())
		return nil, err
	}
	slog.Info("app.startScheduler: weekly analysis scheduled", "schedule", a.cfg.Alerts.Schedule, "next", sched.Next(weeklyAnalysisJob))
	return sched, nil
}
