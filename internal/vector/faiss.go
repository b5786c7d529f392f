//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hyperjump/kagami/internal/models"
	"github.com/hyperjump/kagami/internal/vectorstore"
)

// FAISSIndex delegates the exact scan to FAISS IndexFlatL2. FAISS labels are store rows
// because vectors are added in row order in a single batch.
type FAISSIndex struct {
	index      *C.FaissIndexFlatL2
	dimensions int
	rows       int
	masked     *roaring.Bitmap
	mu         sync.RWMutex
}

// NewFAISSIndex creates a FAISS L2 index holding every row of s.
func NewFAISSIndex(s *vectorstore.Store) (*FAISSIndex, error) {
	dim := s.Dim()
	if dim <= 0 {
		dim = 1
	}
	var index *C.FaissIndexFlatL2
	ret := C.faiss_IndexFlatL2_new_with(&index, C.idx_t(dim))
	if ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}
	f := &FAISSIndex{
		index:      index,
		dimensions: s.Dim(),
		rows:       s.Len(),
		masked:     s.Masked().Clone(),
	}
	if s.Len() > 0 {
		data := s.Data()
		ret = C.faiss_Index_add(f.index, C.idx_t(s.Len()), (*C.float)(unsafe.Pointer(&data[0])))
		if ret != 0 {
			C.faiss_Index_free(f.index)
			return nil, fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
		}
	}
	return f, nil
}

// faissLastError returns the last FAISS error message.
func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Search returns the k rows closest to query by squared L2, skipping masked rows.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]models.SearchHit, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.index == nil {
		return nil, fmt.Errorf("%w: FAISS index is closed", models.ErrServiceNotReady)
	}
	if f.dimensions > 0 && len(query) != f.dimensions {
		return nil, &models.DimensionMismatchError{Expected: f.dimensions, Actual: len(query)}
	}
	if f.rows == 0 || k <= 0 {
		return []models.SearchHit{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Over-fetch so masked rows can be dropped without returning fewer than k.
	fetch := k + int(f.masked.GetCardinality()) + 1
	if fetch > f.rows {
		fetch = f.rows
	}
	distances := make([]float32, fetch)
	labels := make([]int64, fetch)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(fetch),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}

	hits := make([]models.SearchHit, 0, fetch)
	for i := 0; i < fetch; i++ {
		if labels[i] < 0 || f.masked.Contains(uint32(labels[i])) {
			continue
		}
		hits = append(hits, models.SearchHit{Row: int(labels[i]), Distance: distances[i]})
	}
	sort.Slice(hits, func(i, j int) bool { return byDistanceThenRow(hits[i], hits[j]) })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Size returns the number of rows, masked rows included.
func (f *FAISSIndex) Size() int {
	return f.rows
}

// Dimensions returns the vector dimension.
func (f *FAISSIndex) Dimensions() int {
	return f.dimensions
}

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
