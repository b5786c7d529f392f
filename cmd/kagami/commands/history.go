package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kagami/internal/cli"
	"github.com/hyperjump/kagami/internal/models"
	"github.com/hyperjump/kagami/internal/storage"
)

var historyLimit int

// NewHistoryCmd creates the history command
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "Show recent searches",
		Long: `List the most recent searches recorded in the history database, or show
one search in full by id. History is recorded only when storage.history_dsn
(or KAGAMI_HISTORY_DSN) is set.

Examples:
  kagami history
  kagami history --limit 50
  kagami history 3f1c2a9e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}

	cmd.Flags().IntVar(&historyLimit, "limit", storage.DefaultHistoryLimit, "maximum searches to list")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	if err := validatePositiveInt(historyLimit, "limit"); err != nil {
		return err
	}
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	history, err := storage.NewHistoryStore(cfg.Storage.HistoryDSN)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	if history == nil {
		return fmt.Errorf("search history is disabled (set storage.history_dsn)")
	}
	defer history.Close()

	if len(args) == 1 {
		record, err := history.GetSearch(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return cli.WriteHistory(cmd.OutOrStdout(), []*models.HistoryRecord{record}, format())
	}
	records, err := history.ListSearches(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	return cli.WriteHistory(cmd.OutOrStdout(), records, format())
}
