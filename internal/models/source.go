// Package models defines core data structures for reference images, queries, and search results.
package models

import (
	"path/filepath"
	"strings"
	"time"
)

// UnknownClass is reported for images stored directly under the collection root.
const UnknownClass = "unknown"

// SourceRecord describes where the image behind one store row came from.
// Row index is the only join key between a record and its vector.
type SourceRecord struct {
	CanonicalPath string `json:"path"`
	// Placeholder marks a zero row written for an image that failed to embed.
	Placeholder bool `json:"placeholder,omitempty"`
	// DisplayCandidates are computed per resolve call and never persisted.
	DisplayCandidates []string `json:"-"`
}

// Filename returns the base name of the canonical path.
func (r SourceRecord) Filename() string {
	return filepath.Base(r.CanonicalPath)
}

// ClassName derives a class label from the folder the image sits in, relative to root.
// Images at the root (or outside it) are UnknownClass.
func ClassName(root, path string) string {
	if root == "" {
		return UnknownClass
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return UnknownClass
	}
	dir := filepath.Dir(rel)
	if dir == "." || dir == "" {
		return UnknownClass
	}
	return filepath.Base(dir)
}

// HistoryRecord is one persisted query and its top results.
type HistoryRecord struct {
	ID          string          `json:"id"`
	QueryName   string          `json:"query_name"`
	K           int             `json:"k"`
	ResultCount int             `json:"result_count"`
	QueryTimeMs int64           `json:"query_time_ms"`
	Degraded    bool            `json:"degraded,omitempty"`
	Results     []HistoryResult `json:"results,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// HistoryResult is a single ranked hit stored alongside a HistoryRecord.
type HistoryResult struct {
	Rank              int     `json:"rank"`
	SourcePath        string  `json:"source_path"`
	Distance          float32 `json:"distance"`
	SimilarityPercent float64 `json:"similarity_percent"`
}
