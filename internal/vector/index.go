// Package vector provides exact nearest-neighbour search over a vector store snapshot.
package vector

import (
	"context"

	"github.com/hyperjump/kagami/internal/models"
)

// Index answers k-nearest-neighbour queries by squared Euclidean distance.
// Results are ordered by ascending distance, ties broken by ascending row.
// An Index is read-only after construction and safe for concurrent Search calls.
type Index interface {
	Search(ctx context.Context, query []float32, k int) ([]models.SearchHit, error)
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// byDistanceThenRow orders hits for deterministic output.
func byDistanceThenRow(a, b models.SearchHit) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Row < b.Row
}
