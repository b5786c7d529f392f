package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kagami/internal/cli"
	"github.com/hyperjump/kagami/internal/models"
)

// NewStatsCmd creates the stats command
func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show vector store statistics",
		Long: `Load the persisted store and report its size, dimensionality, masked
rows, index type and disk usage. A missing store is reported as not_ready.`,
		Args: cobra.NoArgs,
		RunE: runStats,
	}
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	components, err := initializeComponents(cfg, logger, componentOptions{})
	if err != nil {
		return err
	}
	defer components.Close()

	if err := components.Service.Load(cfg.Storage.StorePath); err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	return cli.WriteStats(cmd.OutOrStdout(), components.Service.Stats(), format())
}
