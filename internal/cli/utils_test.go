package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kagami/internal/catalog"
	"github.com/hyperjump/kagami/internal/indexer"
	"github.com/hyperjump/kagami/internal/models"
)

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Query:     "query.png",
		QueryTime: 42,
		K:         5,
		Total:     2,
		Dropped:   1,
		Results: []*models.SearchResult{
			{Rank: 1, Row: 3, SourcePath: "/data/cats/a.png", ResolvedPath: "/data/cats/a.png",
				Filename: "a.png", Class: "cats", Distance: 0.1, SimilarityPercent: 95},
			{Rank: 2, Row: 0, SourcePath: "/data/dogs/b.png", ResolvedPath: "/samples/b.png",
				Filename: "b.png", Class: "dogs", Distance: 0.9, SimilarityPercent: 55},
		},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.SearchResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Total != 2 || decoded.Dropped != 1 || len(decoded.Results) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Results[1].ResolvedPath != "/samples/b.png" {
		t.Errorf("resolved path = %q", decoded.Results[1].ResolvedPath)
	}
}

func TestWriteSearchResults_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Found 2 results in 42ms", "1 unavailable", "95.0%", "cats", "/samples/b.png"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSearchResults_textEmptyAndDegraded(t *testing.T) {
	var buf bytes.Buffer
	resp := &models.SearchResponse{Degraded: true}
	if err := WriteSearchResults(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Found 0 results") || !strings.Contains(buf.String(), "degraded") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestParseOutputFormat(t *testing.T) {
	if f, err := ParseOutputFormat(""); err != nil || f != OutputText {
		t.Errorf("empty: %v %v", f, err)
	}
	if f, err := ParseOutputFormat("json"); err != nil || f != OutputJSON {
		t.Errorf("json: %v %v", f, err)
	}
	if _, err := ParseOutputFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestWriteStats(t *testing.T) {
	size := int64(3 << 20)
	stats := models.DatasetStats{TotalVectors: 10, Dimensions: 512, IndexReady: true, State: "ready",
		IndexType: "flat", Embedder: "onnx", DiskUsageBytes: &size}
	var buf bytes.Buffer
	if err := WriteStats(&buf, stats, OutputText); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"ready", "10", "512", "flat", "3.0 MiB"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("stats output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestWriteReport(t *testing.T) {
	report := &indexer.Report{
		Root:      "/data",
		Total:     5,
		Succeeded: 4,
		Failed:    []indexer.FailedItem{{Path: "/data/broken.png", Reason: "image decode failure"}},
		Duration:  1500 * time.Millisecond,
	}
	var buf bytes.Buffer
	if err := WriteReport(&buf, report, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Ingested 4 of 5") || !strings.Contains(out, "Failed items: 1") || !strings.Contains(out, "/data/broken.png") {
		t.Errorf("unexpected report output:\n%s", out)
	}

	report.PersistErr = errors.New("disk full")
	report.PersistError = "disk full"
	buf.Reset()
	_ = WriteReport(&buf, report, OutputText)
	if !strings.Contains(buf.String(), "Persist failed: disk full") {
		t.Errorf("persist error not shown:\n%s", buf.String())
	}
}

func TestWriteCatalogAndHistory_JSONEmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCatalog(&buf, nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("catalog json = %q", buf.String())
	}
	buf.Reset()
	if err := WriteHistory(&buf, nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("history json = %q", buf.String())
	}
}

func TestWriteCatalog_text(t *testing.T) {
	var buf bytes.Buffer
	entries := []*catalog.Entry{{Row: 2, Path: "/data/cats/a.png", Filename: "a.png", Class: "cats"}}
	if err := WriteCatalog(&buf, entries, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "/data/cats/a.png") {
		t.Errorf("catalog output:\n%s", buf.String())
	}
}

func TestWriteHistory_text(t *testing.T) {
	var buf bytes.Buffer
	records := []*models.HistoryRecord{{
		QueryName: "q.png", K: 5, ResultCount: 1, CreatedAt: time.Now(),
		Results: []models.HistoryResult{{Rank: 1, SourcePath: "/data/a.png", SimilarityPercent: 88}},
	}}
	if err := WriteHistory(&buf, records, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "/data/a.png (88.0%)") {
		t.Errorf("history output:\n%s", buf.String())
	}
}
