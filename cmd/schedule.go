package main

import (
	"os"

	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show the periodic tasks serve runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context(), "store")
		if err != nil {
			return err
		}
		defer env.Close()

		runner, err := newScheduler(env.Manager, env.Checker(), cfg.Scheduler)
		if err != nil {
			return err
		}
		formatTasks(os.Stdout, runner.Status())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
