package vector

import (
	"fmt"

	"github.com/hyperjump/kagami/internal/vectorstore"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeFlat is the pure Go brute-force index.
	IndexTypeFlat IndexType = "flat"
	// IndexTypeFAISS uses FAISS IndexFlatL2. Still exact; requires -tags=faiss and cgo.
	IndexTypeFAISS IndexType = "faiss"
)

// NewIndex builds an index of the given type over s.
// Supported types: "flat" (default), "faiss".
func NewIndex(indexType string, s *vectorstore.Store, opts ...Option) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeFlat, "":
		return NewFlatIndex(s, opts...), nil
	case IndexTypeFAISS:
		return NewFAISSIndex(s)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat, faiss)", indexType)
	}
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(vectorstore.New(1))
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
