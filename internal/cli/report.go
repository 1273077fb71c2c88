package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/ambiguity-runner/internal/logger"
	"github.com/example/ambiguity-runner/internal/summary"
)

func newReportCmd() *cobra.Command {
	var summaryPath string
	var noColor bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a stored summary.json as the human-readable report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if summaryPath == "" {
				return errors.New("--summary is required")
			}

			sum, err := readSummary(summaryPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return summary.Render(out, sum, summary.RenderOptions{Color: !noColor && logger.IsTerminal(out)})
		},
	}

	cmd.Flags().StringVar(&summaryPath, "summary", "", "Path to a run's summary.json")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable coloured output")
	if err := cmd.MarkFlagRequired("summary"); err != nil {
		panic(err)
	}

	return cmd
}

func readSummary(path string) (summary.Summary, error) {
	var sum summary.Summary
	data, err := os.ReadFile(path)
	if err != nil {
		return sum, err
	}
	if err := json.Unmarshal(data, &sum); err != nil {
		return sum, fmt.Errorf("parse %s: %w", path, err)
	}
	return sum, nil
}
