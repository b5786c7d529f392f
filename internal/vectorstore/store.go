// Package vectorstore holds the embedding matrix of the reference collection and the
// parallel list of source records, and persists both as a pair of artifacts.
package vectorstore

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hyperjump/kagami/internal/models"
)

// Store is a dense row-major float32 matrix plus one SourceRecord per row.
// A Store is not safe for concurrent mutation. Readers that share a Store must
// treat it as immutable and mutate a Clone instead.
type Store struct {
	dim     int
	data    []float32
	sources []models.SourceRecord
	masked  *roaring.Bitmap
	// embedder names the model that produced the vectors; empty when unknown.
	embedder string
}

// New returns an empty store. A dim of 0 lets the first appended vector fix the dimension.
func New(dim int) *Store {
	if dim < 0 {
		dim = 0
	}
	return &Store{dim: dim, masked: roaring.New()}
}

// Len returns the number of rows.
func (s *Store) Len() int { return len(s.sources) }

// Dim returns the vector dimension, or 0 for an empty store with no fixed dimension.
func (s *Store) Dim() int { return s.dim }

// Data returns the underlying row-major matrix. Callers must not modify it.
func (s *Store) Data() []float32 { return s.data }

// Row returns a view of row i. Callers must not modify it.
func (s *Store) Row(i int) []float32 {
	return s.data[i*s.dim : (i+1)*s.dim]
}

// Source returns the record for row i.
func (s *Store) Source(i int) models.SourceRecord { return s.sources[i] }

// Sources returns all records in row order. Callers must not modify the slice.
func (s *Store) Sources() []models.SourceRecord { return s.sources }

// Embedder returns the name of the embedder that produced the vectors, or "".
func (s *Store) Embedder() string { return s.embedder }

// SetEmbedder records which embedder produced the vectors.
func (s *Store) SetEmbedder(name string) { s.embedder = name }

// Masked returns the rows that hold placeholder vectors and must never be returned by search.
func (s *Store) Masked() *roaring.Bitmap { return s.masked }

// Append adds one row. The store is unchanged when the vector length does not match.
func (s *Store) Append(vec []float32, rec models.SourceRecord) error {
	if len(vec) == 0 {
		return &models.DimensionMismatchError{Expected: s.dim, Actual: 0}
	}
	if s.dim == 0 && len(s.sources) == 0 {
		s.dim = len(vec)
	}
	if len(vec) != s.dim {
		return &models.DimensionMismatchError{Expected: s.dim, Actual: len(vec)}
	}
	rec.DisplayCandidates = nil
	if rec.Placeholder {
		s.masked.Add(uint32(len(s.sources)))
	}
	s.data = append(s.data, vec...)
	s.sources = append(s.sources, rec)
	return nil
}

// AppendPlaceholder adds a zero row for an image that could not be embedded.
// The row is masked out of search results.
func (s *Store) AppendPlaceholder(rec models.SourceRecord) error {
	if s.dim == 0 {
		return fmt.Errorf("placeholder for %s: store dimension not fixed", rec.CanonicalPath)
	}
	rec.Placeholder = true
	return s.Append(make([]float32, s.dim), rec)
}

// Clone returns a deep copy that can be mutated without affecting s.
func (s *Store) Clone() *Store {
	c := &Store{
		dim:      s.dim,
		data:     make([]float32, len(s.data)),
		sources:  make([]models.SourceRecord, len(s.sources)),
		masked:   s.masked.Clone(),
		embedder: s.embedder,
	}
	copy(c.data, s.data)
	copy(c.sources, s.sources)
	return c
}

// IndexOf returns the row holding path, or -1.
func (s *Store) IndexOf(path string) int {
	for i, rec := range s.sources {
		if rec.CanonicalPath == path {
			return i
		}
	}
	return -1
}
