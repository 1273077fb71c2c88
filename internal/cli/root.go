package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/ambiguity-runner/internal/config"
)

// version is overridden at build time with -ldflags "-X".
var version = "dev"

// Execute builds the root command tree and runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	loader := &config.Loader{ConfigPath: config.DefaultConfigPath}
	rootOpts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "ambiguity-runner",
		Short:         "Two-phase regex ambiguity analysis around an external engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	rootCmd.SetVersionTemplate("ambiguity-runner version {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&rootOpts.ConfigPath, "config", config.DefaultConfigPath, "Path to ambiguity.config.yml (optional)")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if rootOpts.ConfigPath != "" {
			loader.ConfigPath = rootOpts.ConfigPath
		}
	}

	rootCmd.AddCommand(
		newInitCmd(loader),
		newRunCmd(loader),
		newDoctorCmd(loader),
		newReportCmd(),
	)

	return rootCmd
}

type rootOptions struct {
	ConfigPath string
}
