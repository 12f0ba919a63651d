package main

import (
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/foodtruck-cli/internal/extract"
)

var extractCmd = &cobra.Command{
	Use:   "extract <kind> [file|-]",
	Short: "Run one extraction over text from a file or stdin",
	Long: `Runs a single extraction (menu, location, hours, sentiment, enhance,
fullExtraction) over the given text and prints the result as JSON. Reads
stdin when no file is given or the file is "-".`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kind, ok := extract.ParseKind(args[0])
		if !ok {
			return eris.Errorf("unknown extraction kind %q", args[0])
		}
		input, err := readInput(args[1:], cmd.InOrStdin())
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "pipeline")
		if err != nil {
			return err
		}
		defer env.Close()

		res := env.Extractor.Extract(ctx, kind, input)
		if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		return res.Err()
	},
}

// readInput returns the text named by args, or stdin when args is empty
// or "-".
func readInput(args []string, stdin io.Reader) (string, error) {
	var (
		raw []byte
		err error
	)
	if len(args) == 0 || args[0] == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", eris.Wrap(err, "read input")
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", eris.New("input is empty")
	}
	return text, nil
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
