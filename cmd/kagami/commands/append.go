package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewAppendCmd creates the append command
func NewAppendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append <image>",
		Short: "Add one image to an existing vector store",
		Long: `Embed a single image and append it as a new row of the persisted store.
Existing rows keep their positions.

Examples:
  kagami append ~/pictures/reference/cats/new-cat.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: runAppend,
	}
	return cmd
}

func runAppend(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	components, err := initializeComponents(cfg, logger, componentOptions{catalog: cfg.Storage.CatalogPath != ""})
	if err != nil {
		return err
	}
	defer components.Close()

	if err := components.Service.Load(cfg.Storage.StorePath); err != nil {
		return fmt.Errorf("loading store: %w", err)
	}
	row, err := components.Service.Append(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("appending %s: %w", args[0], err)
	}
	if components.Catalog != nil {
		store := components.Service.Store()
		if err := components.Catalog.Add(row, store.Source(row)); err != nil {
			return fmt.Errorf("updating catalog: %w", err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Appended %s as row %d\n", args[0], row)
	return nil
}
