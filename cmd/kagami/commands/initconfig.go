package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kagami/internal/config"
)

var initConfigForce bool

// NewInitConfigCmd creates the init-config command
func NewInitConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a config file with every default filled in",
		Long: `Write a YAML config populated with the built-in defaults. The path defaults
to the --config value. Existing files are kept unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runInitConfig,
	}
	cmd.Flags().BoolVar(&initConfigForce, "force", false, "overwrite an existing file")
	return cmd
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	path := configPath
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil && !initConfigForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
