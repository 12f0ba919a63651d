package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/foodtruck-cli/internal/monitoring"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show today's API usage against daily limits",
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

		monitor := monitoring.NewMonitor(st, cfg.Usage)

		var usage []monitoring.ServiceUsage
		if service, _ := cmd.Flags().GetString("service"); service != "" {
			u, err := monitor.Usage(ctx, service)
			if err != nil {
				return err
			}
			usage = []monitoring.ServiceUsage{*u}
		} else {
			usage, err = monitor.Snapshot(ctx)
			if err != nil {
				return eris.Wrap(err, "usage snapshot")
			}
		}

		if check, _ := cmd.Flags().GetBool("alert"); check {
			alerts := monitoring.NewAlerter(cfg.Usage).Evaluate(usage)
			for _, a := range alerts {
				zap.L().Warn("usage alert",
					zap.String("service", a.Service),
					zap.String("level", string(a.Level)),
					zap.String("message", a.Message),
				)
			}
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return writeJSON(os.Stdout, usage)
		}
		formatUsage(os.Stdout, usage)
		return nil
	},
}

func init() {
	usageCmd.Flags().String("service", "", "limit output to one service (anthropic, firecrawl, tavily)")
	usageCmd.Flags().Bool("alert", false, "log warning and critical threshold alerts")
	usageCmd.Flags().Bool("json", false, "print usage as JSON")
	rootCmd.AddCommand(usageCmd)
}
