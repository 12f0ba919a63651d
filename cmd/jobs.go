package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/foodtruck-cli/internal/discovery"
	"github.com/sells-group/foodtruck-cli/internal/jobs"
	"github.com/sells-group/foodtruck-cli/internal/model"
	"github.com/sells-group/foodtruck-cli/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage scraping jobs",
}

// -- jobs list --

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scraping jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		list, err := jobs.NewQueue(st, cfg.Jobs).List(ctx, store.JobFilter{
			Status: model.JobStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "jobs list")
		}
		if len(list) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found.")
			return nil
		}
		formatJobs(os.Stdout, list)
		return nil
	},
}

// -- jobs enqueue --

var jobsEnqueueCmd = &cobra.Command{
	Use:   "enqueue <url>...",
	Short: "Queue URLs for scraping",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		priority, _ := cmd.Flags().GetInt("priority")
		q := jobs.NewQueue(st, cfg.Jobs)

		for _, raw := range args {
			u, ok := discovery.NormalizeURL(raw)
			if !ok {
				zap.L().Warn("skipping invalid url", zap.String("url", raw))
				continue
			}
			job, created, err := q.EnqueueURL(ctx, u, priority)
			if err != nil {
				return eris.Wrapf(err, "enqueue %s", u)
			}
			zap.L().Info("job queued",
				zap.String("job_id", job.ID),
				zap.String("url", u),
				zap.Bool("created", created),
			)
		}
		return nil
	},
}

// -- jobs execute --

var jobsExecuteCmd = &cobra.Command{
	Use:   "execute <job-id>",
	Short: "Run one pending job immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "pipeline")
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Manager.ExecuteJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "execute job")
		}
		if err := writeJSON(os.Stdout, out); err != nil {
			return err
		}
		if out.Error != "" {
			return eris.Errorf("job %s failed: %s", args[0], out.Error)
		}
		return nil
	},
}

// -- jobs retry --

var jobsRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Requeue failed jobs that still have retries left",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		n, err := jobs.NewQueue(st, cfg.Jobs).RequeueFailed(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "jobs retry")
		}
		zap.L().Info("failed jobs requeued", zap.Int("count", n))
		return nil
	},
}

func init() {
	jobsListCmd.Flags().String("status", "", "filter by status (pending, running, completed, failed)")
	jobsListCmd.Flags().Int("limit", 50, "maximum jobs to list")
	jobsEnqueueCmd.Flags().Int("priority", 5, "job priority (1-10)")
	jobsRetryCmd.Flags().Int("limit", 100, "maximum jobs to requeue")

	jobsCmd.AddCommand(jobsListCmd, jobsEnqueueCmd, jobsExecuteCmd, jobsRetryCmd)
	rootCmd.AddCommand(jobsCmd)
}
