package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kagami/internal/cli"
	"github.com/hyperjump/kagami/internal/indexer"
)

var (
	ingestOut    string
	ingestReport string
	ingestQuiet  bool
)

// NewIngestCmd creates the ingest command
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [root]",
		Short: "Embed every image under a directory into the vector store",
		Long: `Walk a directory of reference images, embed each one, and write the
vector store (matrix plus manifest) to the configured store path.

The class of an image is the name of the folder that contains it. Images
that fail to decode or embed are listed in the report; the command exits
with status 2 when any image failed.

Examples:
  kagami ingest ~/pictures/reference
  kagami ingest --out ./embeddings --report ingest.xlsx ./images
  kagami ingest -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().StringVar(&ingestOut, "out", "", "store path (defaults to storage.store_path)")
	cmd.Flags().StringVar(&ingestReport, "report", "", "write the ingestion report to this file (.xlsx or .json)")
	cmd.Flags().BoolVarP(&ingestQuiet, "quiet", "q", false, "suppress progress output")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Collection.Root = args[0]
	}
	if ingestOut != "" {
		cfg.Storage.StorePath = ingestOut
	}
	reportPath := cfg.Ingest.ReportPath
	if ingestReport != "" {
		reportPath = ingestReport
	}

	components, err := initializeComponents(cfg, logger, componentOptions{})
	if err != nil {
		return err
	}
	defer components.Close()

	var extra []indexer.IndexerOption
	if !ingestQuiet && format() == cli.OutputText {
		errOut := cmd.ErrOrStderr()
		extra = append(extra, indexer.WithProgress(func(processed, total int) {
			fmt.Fprintf(errOut, "\rEmbedding %d/%d", processed, total)
			if processed == total {
				fmt.Fprintln(errOut)
			}
		}))
	}

	_, report, err := components.ingester(extra...).Ingest(cmd.Context(), cfg.Collection.Root)
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", cfg.Collection.Root, err)
	}

	if reportPath != "" {
		if err := writeReportFile(report, reportPath); err != nil {
			return err
		}
	}
	if err := cli.WriteReport(cmd.OutOrStdout(), report, format()); err != nil {
		return err
	}
	if report.PersistErr != nil {
		return fmt.Errorf("saving store: %w", report.PersistErr)
	}
	if !report.OK() {
		return &exitError{code: 2, err: fmt.Errorf("%d of %d images failed", len(report.Failed), report.Total)}
	}
	return nil
}

func writeReportFile(report *indexer.Report, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return report.WriteXLSX(path)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	if err := report.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
