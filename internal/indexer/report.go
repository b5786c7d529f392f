package indexer

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// FailedItem is one image that could not be added to the store.
type FailedItem struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Report summarizes one ingestion run.
type Report struct {
	Root         string        `json:"root"`
	Total        int           `json:"total"`
	Succeeded    int           `json:"succeeded"`
	Placeholders int           `json:"placeholders,omitempty"`
	Failed       []FailedItem  `json:"failed"`
	Policy       FailurePolicy `json:"failure_policy"`
	StorePath    string        `json:"store_path,omitempty"`
	PersistError string        `json:"persist_error,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`

	PersistErr error `json:"-"`
}

// OK reports whether every file was embedded and the store was persisted.
func (r *Report) OK() bool {
	return len(r.Failed) == 0 && r.PersistErr == nil
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

const (
	summarySheet  = "Summary"
	failuresSheet = "Failures"
)

// WriteXLSX writes the report as a workbook with a summary sheet and one row per failed item.
func (r *Report) WriteXLSX(path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	summary := [][]any{
		{"root", r.Root},
		{"total", r.Total},
		{"succeeded", r.Succeeded},
		{"failed", len(r.Failed)},
		{"placeholders", r.Placeholders},
		{"failure_policy", string(r.Policy)},
		{"started_at", r.StartedAt.Format(time.RFC3339)},
		{"duration", r.Duration.String()},
	}
	if r.PersistError != "" {
		summary = append(summary, []any{"persist_error", r.PersistError})
	}
	if err := writeRows(f, summarySheet, summary); err != nil {
		return err
	}

	if _, err := f.NewSheet(failuresSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	rows := [][]any{{"path", "reason"}}
	for _, item := range r.Failed {
		rows = append(rows, []any{item.Path, item.Reason})
	}
	if err := writeRows(f, failuresSheet, rows); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}
