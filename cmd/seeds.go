package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/foodtruck-cli/internal/seeds"
)

var seedsCmd = &cobra.Command{
	Use:   "seeds",
	Short: "Manage the curated seed URL list",
}

var seedsImportCmd = &cobra.Command{
	Use:   "import [path]",
	Short: "Queue seed URLs from a YAML or XLSX file",
	Long:  "Loads seeds from the given file (or seeds.path / seeds.urls from config) and queues every seed that has no live job and no recently scraped truck.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		list := env.Seeds
		if len(args) == 1 {
			list, err = seeds.Load(args[0])
			if err != nil {
				return err
			}
		}
		if len(list) == 0 {
			return eris.New("no seed URLs configured (pass a file or set FOODTRUCK_SEEDS_PATH)")
		}

		staleDays, _ := cmd.Flags().GetInt("stale-days")
		if staleDays <= 0 {
			staleDays = cfg.Pipeline.StaleDays
		}
		priority, _ := cmd.Flags().GetInt("priority")

		report, err := env.Manager.EnsureSeeds(ctx, list, staleDays, priority)
		if err != nil {
			return eris.Wrap(err, "import seeds")
		}
		zap.L().Info("seeds imported",
			zap.Int("checked", report.Checked),
			zap.Int("queued", report.Queued),
			zap.Int("fresh", report.Fresh),
			zap.Int("live", report.Live),
		)
		return nil
	},
}

func init() {
	seedsImportCmd.Flags().Int("priority", 0, "priority for seeds that do not set one (1-10)")
	seedsImportCmd.Flags().Int("stale-days", 0, "skip seeds whose truck was scraped within this many days")
	seedsCmd.AddCommand(seedsImportCmd)
	rootCmd.AddCommand(seedsCmd)
}
