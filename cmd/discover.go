package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/foodtruck-cli/internal/pipeline"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Search for food truck websites and record new candidate URLs",
	Long:  "Runs the discovery pipeline: web search per city plus configured directory crawls. New URLs are stored as candidates; use --queue to also create scraping jobs for them.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "pipeline")
		if err != nil {
			return err
		}
		defer env.Close()

		params := pipeline.DefaultParams(cfg).Apply(overridesFromFlags(cmd.Flags()))
		typ := pipeline.TypeDiscovery
		if queue, _ := cmd.Flags().GetBool("queue"); queue {
			// A full run with no processing budget discovers and queues only.
			typ = pipeline.TypeFull
			params.MaxJobs = 0
		}

		res := env.Manager.Run(ctx, pipeline.Request{Type: typ, Params: params})
		formatResult(os.Stdout, res)
		if !res.Success {
			return eris.Errorf("discovery failed: %s", res.Error)
		}
		return nil
	},
}

func init() {
	f := discoverCmd.Flags()
	f.StringArray("cities", nil, `city to search, repeatable, e.g. "Charleston, SC" (default from config)`)
	f.Int("max-urls", 0, "maximum new URLs to record")
	f.Int("priority", 0, "priority for queued jobs (1-10)")
	f.Bool("queue", false, "create scraping jobs for new URLs")
	rootCmd.AddCommand(discoverCmd)
}
