package vector

import (
	"context"
	"math"
	"runtime"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hyperjump/kagami/internal/models"
	"github.com/hyperjump/kagami/internal/vectorstore"
	"golang.org/x/sync/errgroup"
)

// parallelScanRows is the store size above which Search scans shards concurrently.
const parallelScanRows = 16384

// FlatIndex is an exact brute-force index over a row-major matrix.
// It shares the matrix with the store it was built from; the store must not be mutated afterwards.
type FlatIndex struct {
	dimensions int
	rows       int
	data       []float32
	masked     *roaring.Bitmap
	workers    int
}

// NewFlatIndex builds an index over the current contents of s.
func NewFlatIndex(s *vectorstore.Store, opts ...Option) *FlatIndex {
	o := applyOptions(opts)
	return &FlatIndex{
		dimensions: s.Dim(),
		rows:       s.Len(),
		data:       s.Data(),
		masked:     s.Masked().Clone(),
		workers:    o.workers,
	}
}

// Type returns the index type identifier.
func (f *FlatIndex) Type() string {
	return string(IndexTypeFlat)
}

// Search returns the k rows closest to query. k <= 0 yields no results; k > Size() is clamped.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]models.SearchHit, error) {
	if f.dimensions > 0 && len(query) != f.dimensions {
		return nil, &models.DimensionMismatchError{Expected: f.dimensions, Actual: len(query)}
	}
	if f.rows == 0 || k <= 0 {
		return []models.SearchHit{}, nil
	}
	var hits []models.SearchHit
	if f.rows >= parallelScanRows && f.workers > 1 {
		var err error
		hits, err = f.scanParallel(ctx, query, k)
		if err != nil {
			return nil, err
		}
	} else {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hits = f.scan(query, 0, f.rows, k)
	}
	return hits, nil
}

// scan computes distances for rows [from, to) and returns the k best, ordered.
func (f *FlatIndex) scan(query []float32, from, to, k int) []models.SearchHit {
	hits := make([]models.SearchHit, 0, to-from)
	for row := from; row < to; row++ {
		if f.masked.Contains(uint32(row)) {
			continue
		}
		d := SquaredL2(query, f.data[row*f.dimensions:(row+1)*f.dimensions])
		if math.IsNaN(float64(d)) {
			d = float32(math.Inf(1))
		}
		hits = append(hits, models.SearchHit{Row: row, Distance: d})
	}
	sort.Slice(hits, func(i, j int) bool { return byDistanceThenRow(hits[i], hits[j]) })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}

// scanParallel splits the matrix into contiguous shards, keeps each shard's k best,
// and merges them with the same ordering as a sequential scan.
func (f *FlatIndex) scanParallel(ctx context.Context, query []float32, k int) ([]models.SearchHit, error) {
	shards := f.workers
	size := (f.rows + shards - 1) / shards
	partial := make([][]models.SearchHit, shards)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < shards; i++ {
		i := i
		from := i * size
		to := min(from+size, f.rows)
		if from >= to {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			partial[i] = f.scan(query, from, to, k)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	merged := make([]models.SearchHit, 0, shards*k)
	for _, p := range partial {
		merged = append(merged, p...)
	}
	sort.Slice(merged, func(i, j int) bool { return byDistanceThenRow(merged[i], merged[j]) })
	if k < len(merged) {
		merged = merged[:k]
	}
	return merged, nil
}

// Size returns the number of rows, masked rows included.
func (f *FlatIndex) Size() int {
	return f.rows
}

// Dimensions returns the vector dimension.
func (f *FlatIndex) Dimensions() int {
	return f.dimensions
}

// Close releases the matrix reference.
func (f *FlatIndex) Close() error {
	f.data = nil
	f.rows = 0
	return nil
}

type options struct {
	workers int
}

// Option configures index construction.
type Option func(*options)

// WithWorkers sets how many shards a large store is scanned in. Defaults to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
