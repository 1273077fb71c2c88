package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/ambiguity-runner/internal/config"
)

// runtimeFlagSet tracks shared run/doctor flags before they are converted into config overrides.
type runtimeFlagSet struct {
	timeout    string
	resultsDir string
	engine     string
	logLevel   string
}

func bindRuntimeFlags(cmd *cobra.Command, flags *runtimeFlagSet) {
	cmd.Flags().StringVar(&flags.timeout, "timeout", "", "Per-regex engine timeout for both passes (seconds or duration, 0 disables)")
	cmd.Flags().StringVar(&flags.resultsDir, "results-dir", "", "Directory under which run directories are created")
	cmd.Flags().StringVar(&flags.engine, "engine", "", "Engine command line (overrides config)")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, or error")
}

// toOverrides converts changed flags and positional input files into overrides.
func (f runtimeFlagSet) toOverrides(cmd *cobra.Command, args []string) (config.Overrides, error) {
	ov := config.Overrides{}
	if len(args) > 0 {
		ov.Inputs = args
	}

	if cmd.Flags().Changed("timeout") {
		d, err := config.ParseTimeout(f.timeout)
		if err != nil {
			return ov, fmt.Errorf("--timeout: %w", err)
		}
		ov.Timeout = &d
	}

	if cmd.Flags().Changed("results-dir") {
		ov.ResultsDir = f.resultsDir
	}

	if cmd.Flags().Changed("engine") {
		ov.Engine = strings.Fields(f.engine)
	}

	if cmd.Flags().Changed("log-level") {
		ov.LogLevel = f.logLevel
	}

	return ov, nil
}
