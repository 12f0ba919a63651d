package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/foodtruck-cli/internal/api"
	"github.com/sells-group/foodtruck-cli/internal/config"
	"github.com/sells-group/foodtruck-cli/internal/jobs"
	"github.com/sells-group/foodtruck-cli/internal/pipeline"
)

var (
	servePort        int
	serveNoScheduler bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pipeline API and periodic task scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		var sched api.Scheduler
		if cfg.Scheduler.Enabled && !serveNoScheduler {
			runner, err := newScheduler(env.Manager, env.Checker(), cfg.Scheduler)
			if err != nil {
				return err
			}
			env.Manager.AttachScheduler(runner)
			runner.Start(ctx)
			defer runner.Stop()
			sched = runner
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.New(cfg, env.Manager, env.Monitor, sched, api.WithExtractor(env.Extractor)).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.Bool("scheduler", sched != nil))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newScheduler registers the default periodic tasks on a fresh runner.
func newScheduler(m *pipeline.Manager, checker pipeline.UsageChecker, sc config.SchedulerConfig) (*jobs.Runner, error) {
	opts := []jobs.RunnerOption{jobs.WithMaxErrorStreak(sc.MaxConsecutiveErrs)}
	if sc.TickSecs > 0 {
		opts = append(opts, jobs.WithTick(time.Duration(sc.TickSecs)*time.Second))
	}
	runner := jobs.NewRunner(opts...)
	for _, t := range pipeline.DefaultTasks(m, checker, sc) {
		if err := runner.Add(t); err != nil {
			return nil, eris.Wrapf(err, "register task %s", t.ID)
		}
	}
	return runner, nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "serve the API without periodic tasks")
	rootCmd.AddCommand(serveCmd)
}
