package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sells-group/foodtruck-cli/internal/pipeline"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run pipelines and inspect pipeline state",
}

// -- pipeline run --

var pipelineRunCmd = &cobra.Command{
	Use:   "run <discovery|processing|full|maintenance>",
	Short: "Run one pipeline synchronously",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		typ, err := pipeline.ParseType(args[0])
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "pipeline")
		if err != nil {
			return err
		}
		defer env.Close()

		params := pipeline.DefaultParams(cfg).Apply(overridesFromFlags(cmd.Flags()))
		res := env.Manager.Run(ctx, pipeline.Request{Type: typ, Params: params})

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			if err := writeJSON(os.Stdout, res); err != nil {
				return err
			}
		} else {
			formatResult(os.Stdout, res)
		}
		if !res.Success {
			return eris.Errorf("pipeline %s failed: %s", typ, res.Error)
		}
		return nil
	},
}

// -- pipeline status --

var pipelineStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show job, URL, and truck counts plus today's API usage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		st, err := env.Manager.Status(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline status")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return writeJSON(os.Stdout, st)
		}
		formatStatus(os.Stdout, st)
		return nil
	},
}

// overridesFromFlags maps explicitly set flags onto pipeline overrides.
func overridesFromFlags(fs *pflag.FlagSet) pipeline.Overrides {
	var o pipeline.Overrides
	intFlag := func(name string) *int {
		if !fs.Changed(name) {
			return nil
		}
		v, _ := fs.GetInt(name)
		return &v
	}
	boolFlag := func(name string) *bool {
		if !fs.Changed(name) {
			return nil
		}
		v, _ := fs.GetBool(name)
		return &v
	}

	if fs.Changed("cities") {
		o.Cities, _ = fs.GetStringArray("cities")
	}
	o.MaxURLs = intFlag("max-urls")
	o.MaxJobs = intFlag("max-jobs")
	o.Priority = intFlag("priority")
	o.Concurrency = intFlag("concurrency")
	o.StaleDays = intFlag("stale-days")
	o.SkipDiscovery = boolFlag("skip-discovery")
	o.RetryFailedJobs = boolFlag("retry-failed")
	return o
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode json")
}

func init() {
	f := pipelineRunCmd.Flags()
	f.StringArray("cities", nil, `city to search, repeatable, e.g. "Charleston, SC" (default from config)`)
	f.Int("max-urls", 0, "maximum URLs to discover")
	f.Int("max-jobs", 0, "maximum jobs to process; 0 skips processing")
	f.Int("priority", 0, "priority for newly queued jobs (1-10)")
	f.Int("concurrency", 0, "parallel job workers (1-5)")
	f.Int("stale-days", 0, "age in days after which trucks are refreshed")
	f.Bool("skip-discovery", false, "full pipeline: only queue and process known URLs")
	f.Bool("retry-failed", false, "requeue failed jobs that still have retries left")
	f.Bool("json", false, "print the result as JSON")

	pipelineStatusCmd.Flags().Bool("json", false, "print status as JSON")

	pipelineCmd.AddCommand(pipelineRunCmd, pipelineStatusCmd)
	rootCmd.AddCommand(pipelineCmd)
}
