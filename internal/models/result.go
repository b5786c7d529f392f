package models

import "time"

// SearchHit is one raw index match: a row and its squared Euclidean distance.
type SearchHit struct {
	Row      int     `json:"row"`
	Distance float32 `json:"distance"`
}

// SearchResult is a resolved hit ready for display.
type SearchResult struct {
	Row        int    `json:"row"`
	SourcePath string `json:"source_path"`
	// ResolvedPath is the file that will actually be served; it may differ from
	// SourcePath when a fallback location was used.
	ResolvedPath      string  `json:"resolved_path,omitempty"`
	Filename          string  `json:"filename"`
	Class             string  `json:"class"`
	Distance          float32 `json:"distance"`
	SimilarityPercent float64 `json:"similarity_percent"`
	Rank              int     `json:"rank"`
}

// SearchResponse is the response for a similarity query.
type SearchResponse struct {
	Results []*SearchResult `json:"results"`
	Total   int             `json:"total"`
	K       int             `json:"k"`
	// Dropped counts hits whose image could not be resolved on disk.
	Dropped   int    `json:"dropped,omitempty"`
	QueryTime int64  `json:"query_time_ms"`
	Query     string `json:"query,omitempty"`
	// Degraded is set when the answer came from a service running on its fallback embedder.
	Degraded bool `json:"degraded,omitempty"`
}

// DatasetStats summarizes the loaded collection. Computed on each call.
type DatasetStats struct {
	TotalVectors   int        `json:"total_vectors"`
	Dimensions     int        `json:"dimensions"`
	IndexReady     bool       `json:"index_ready"`
	State          string     `json:"state"`
	Reason         string     `json:"reason,omitempty"`
	IndexType      string     `json:"index_type,omitempty"`
	MaskedRows     int        `json:"masked_rows"`
	Embedder       string     `json:"embedder,omitempty"`
	DiskUsageBytes *int64     `json:"disk_usage_bytes,omitempty"`
	LoadedAt       *time.Time `json:"loaded_at,omitempty"`
}
