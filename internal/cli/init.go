package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/ambiguity-runner/internal/config"
)

func newInitCmd(loader *config.Loader) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := loader.ConfigPath
			if path == "" {
				path = config.DefaultConfigPath
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			data, err := config.StarterYAML()
			if err != nil {
				return err
			}

			if dir := filepath.Dir(path); dir != "." {
				if err := ensureOutputDir(dir); err != nil {
					return err
				}
			}

			if err := os.WriteFile(path, data, 0o644); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote starter config to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}
