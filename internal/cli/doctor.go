package cli

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/ambiguity-runner/internal/config"
	"github.com/example/ambiguity-runner/internal/engine"
)

type doctorCheck struct {
	Name   string
	Status string // "✓", "✗" or "⊘"
	Detail string
	Error  error
}

func newDoctorCmd(loader *config.Loader) *cobra.Command {
	flags := &runtimeFlagSet{}

	cmd := &cobra.Command{
		Use:   "doctor [FILE...]",
		Short: "Validate the engine, configuration, input files and results directory",
		Long: `The doctor subcommand checks everything a run depends on:
- Go runtime version
- engine executable presence
- configuration values
- readability of each input file
- results directory creation`,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := flags.toOverrides(cmd, args)
			if err != nil {
				return err
			}

			cfg, err := loader.Load(overrides)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			checks := runDoctorChecks(cfg, engine.NewRunner(cfg.Engine))
			printDoctorReport(cmd, checks)

			for _, check := range checks {
				if check.Error != nil {
					return fmt.Errorf("doctor checks failed")
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), "\n✓ All checks passed. System is ready.")
			return nil
		},
	}

	bindRuntimeFlags(cmd, flags)

	return cmd
}

func runDoctorChecks(cfg config.RuntimeConfig, analyser engine.Analyser) []doctorCheck {
	checks := []doctorCheck{
		checkGoVersion(),
		checkEngineBinary(cfg.Engine, analyser),
		checkConfiguration(cfg),
	}
	checks = append(checks, checkInputs(cfg.Inputs)...)
	checks = append(checks, checkOutputDirectory(cfg.ResultsDir))
	return checks
}

func checkGoVersion() doctorCheck {
	return doctorCheck{
		Name:   "Go Runtime",
		Status: "✓",
		Detail: fmt.Sprintf("Version %s", runtime.Version()),
	}
}

func checkEngineBinary(command []string, analyser engine.Analyser) doctorCheck {
	if err := analyser.EnsureBinary(); err != nil {
		return doctorCheck{
			Name:   "Engine Binary",
			Status: "✗",
			Detail: "Not found in PATH",
			Error:  err,
		}
	}

	return doctorCheck{
		Name:   "Engine Binary",
		Status: "✓",
		Detail: strings.Join(command, " "),
	}
}

func checkConfiguration(cfg config.RuntimeConfig) doctorCheck {
	if err := cfg.ValidateEnvironment(); err != nil {
		return doctorCheck{
			Name:   "Configuration",
			Status: "✗",
			Detail: "Invalid configuration",
			Error:  err,
		}
	}

	return doctorCheck{
		Name:   "Configuration",
		Status: "✓",
		Detail: fmt.Sprintf("timeouts simple=%s full=%s, log=%s", cfg.SimpleTimeout, cfg.FullTimeout, cfg.LogLevel),
	}
}

func checkInputs(inputs []string) []doctorCheck {
	if len(inputs) == 0 {
		return []doctorCheck{{
			Name:   "Input Files",
			Status: "⊘",
			Detail: "Skipped (none configured)",
		}}
	}

	checks := make([]doctorCheck, 0, len(inputs))
	for _, input := range inputs {
		check := doctorCheck{Name: fmt.Sprintf("Input: %s", input)}
		records, err := config.ReadRegexes(input)
		if err != nil {
			check.Status = "✗"
			check.Detail = "Unreadable"
			check.Error = err
		} else {
			check.Status = "✓"
			check.Detail = fmt.Sprintf("%d regexes", len(records))
		}
		checks = append(checks, check)
	}
	return checks
}

func checkOutputDirectory(outputDir string) doctorCheck {
	err := ensureOutputDir(outputDir)
	if err != nil {
		return doctorCheck{
			Name:   "Results Directory",
			Status: "✗",
			Detail: outputDir,
			Error:  err,
		}
	}

	return doctorCheck{
		Name:   "Results Directory",
		Status: "✓",
		Detail: outputDir,
	}
}

func printDoctorReport(cmd *cobra.Command, checks []doctorCheck) {
	fmt.Fprintln(cmd.OutOrStdout(), "Running environment diagnostics...")

	for _, check := range checks {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %-30s %s\n", check.Status, check.Name+":", check.Detail)
		if check.Error != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "   Error: %v\n", check.Error)
		}
	}
}
