// Package cli provides output helpers for the kagami command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/hyperjump/kagami/internal/catalog"
	"github.com/hyperjump/kagami/internal/indexer"
	"github.com/hyperjump/kagami/internal/models"
	"github.com/hyperjump/kagami/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json"; anything else is an error.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text or json)", s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms", response.Total, response.QueryTime)
	if response.Dropped > 0 {
		fmt.Fprintf(w, " (%d unavailable on this host)", response.Dropped)
	}
	fmt.Fprintln(w)
	if response.Degraded {
		fmt.Fprintln(w, "warning: service is degraded; similarity uses the fallback embedder")
	}
	if len(response.Results) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "RANK\tSIMILARITY\tDISTANCE\tCLASS\tFILE\n")
	for _, r := range response.Results {
		fmt.Fprintf(tw, "%d\t%.1f%%\t%.4f\t%s\t%s\n",
			r.Rank, r.SimilarityPercent, r.Distance, r.Class, utils.Truncate(r.ResolvedPath, 80))
	}
	return tw.Flush()
}

// PrintSearchResults prints search results to stdout in text format.
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

// WriteStats writes dataset statistics.
func WriteStats(w io.Writer, stats models.DatasetStats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "State:       %s\n", stats.State)
	if stats.Reason != "" {
		fmt.Fprintf(w, "Reason:      %s\n", stats.Reason)
	}
	fmt.Fprintf(w, "Vectors:     %d\n", stats.TotalVectors)
	fmt.Fprintf(w, "Dimensions:  %d\n", stats.Dimensions)
	if stats.MaskedRows > 0 {
		fmt.Fprintf(w, "Masked rows: %d\n", stats.MaskedRows)
	}
	if stats.IndexType != "" {
		fmt.Fprintf(w, "Index:       %s\n", stats.IndexType)
	}
	if stats.Embedder != "" {
		fmt.Fprintf(w, "Embedder:    %s\n", stats.Embedder)
	}
	if stats.DiskUsageBytes != nil {
		fmt.Fprintf(w, "Disk usage:  %s\n", utils.HumanBytes(*stats.DiskUsageBytes))
	}
	return nil
}

// WriteReport writes an ingestion report summary with every failed item.
func WriteReport(w io.Writer, report *indexer.Report, format OutputFormat) error {
	if format == OutputJSON {
		return report.WriteJSON(w)
	}
	fmt.Fprintf(w, "Ingested %d of %d images from %s in %s\n",
		report.Succeeded, report.Total, report.Root, report.Duration.Round(1e6))
	if report.Placeholders > 0 {
		fmt.Fprintf(w, "Placeholder rows: %d\n", report.Placeholders)
	}
	if report.StorePath != "" && report.PersistError == "" {
		fmt.Fprintf(w, "Saved to %s\n", report.StorePath)
	}
	if report.PersistError != "" {
		fmt.Fprintf(w, "Persist failed: %s\n", report.PersistError)
	}
	if len(report.Failed) > 0 {
		fmt.Fprintf(w, "Failed items: %d\n", len(report.Failed))
		for _, f := range report.Failed {
			fmt.Fprintf(w, "  %s: %s\n", f.Path, f.Reason)
		}
	}
	return nil
}

// WriteCatalog writes catalog lookup results.
func WriteCatalog(w io.Writer, entries []*catalog.Entry, format OutputFormat) error {
	if format == OutputJSON {
		if entries == nil {
			entries = []*catalog.Entry{}
		}
		return writeJSON(w, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No images found")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ROW\tCLASS\tFILE\n")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", e.Row, e.Class, e.Path)
	}
	return tw.Flush()
}

// WriteHistory writes recent searches.
func WriteHistory(w io.Writer, records []*models.HistoryRecord, format OutputFormat) error {
	if format == OutputJSON {
		if records == nil {
			records = []*models.HistoryRecord{}
		}
		return writeJSON(w, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No searches recorded")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "WHEN\tQUERY\tK\tRESULTS\tTOP MATCH\n")
	for _, r := range records {
		top := "-"
		if len(r.Results) > 0 {
			top = fmt.Sprintf("%s (%.1f%%)", r.Results[0].SourcePath, r.Results[0].SimilarityPercent)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"), utils.Truncate(r.QueryName, 40), r.K, r.ResultCount, top)
	}
	return tw.Flush()
}
