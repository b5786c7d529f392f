package search

import (
	"os"
	"path/filepath"

	"github.com/hyperjump/kagami/internal/models"
	"github.com/hyperjump/kagami/internal/vectorstore"
	"github.com/hyperjump/kagami/pkg/utils"
)

// DefaultSimilarityScale maps a squared distance of 2 (orthogonal unit vectors) to 0%.
const DefaultSimilarityScale = 50

// FileChecker reports whether path names a file that can be served.
type FileChecker func(path string) bool

// RegularFileExists is the default FileChecker.
func RegularFileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Resolver turns raw index hits into presentable results.
// It never mutates the store it reads from.
type Resolver struct {
	root        string
	fallbackDir string
	scale       float64
	exists      FileChecker
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithFallbackDir sets the directory searched by basename when the canonical path is gone.
func WithFallbackDir(dir string) ResolverOption {
	return func(r *Resolver) { r.fallbackDir = dir }
}

// WithSimilarityScale sets the factor in 100 - distance*scale. Non-positive keeps the default.
func WithSimilarityScale(scale float64) ResolverOption {
	return func(r *Resolver) {
		if scale > 0 {
			r.scale = scale
		}
	}
}

// WithFileChecker replaces the existence check, mainly for tests.
func WithFileChecker(fn FileChecker) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.exists = fn
		}
	}
}

// NewResolver creates a resolver. root is the collection root used to derive class names.
func NewResolver(root string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		root:   root,
		scale:  DefaultSimilarityScale,
		exists: RegularFileExists,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Candidates returns a copy of rec with DisplayCandidates filled in resolution order:
// the canonical path, then the basename under the fallback directory.
func (r *Resolver) Candidates(rec models.SourceRecord) models.SourceRecord {
	out := rec
	out.DisplayCandidates = []string{rec.CanonicalPath}
	if r.fallbackDir != "" {
		fallback := filepath.Join(r.fallbackDir, filepath.Base(rec.CanonicalPath))
		if fallback != rec.CanonicalPath {
			out.DisplayCandidates = append(out.DisplayCandidates, fallback)
		}
	}
	return out
}

// ResolvePath returns the first candidate for rec that exists.
func (r *Resolver) ResolvePath(rec models.SourceRecord) (string, bool) {
	for _, p := range r.Candidates(rec).DisplayCandidates {
		if p != "" && r.exists(p) {
			return p, true
		}
	}
	return "", false
}

// Resolve maps hit to a result. ok is false when the row is out of range, is a
// placeholder, or no candidate path exists; such hits must be dropped.
func (r *Resolver) Resolve(hit models.SearchHit, store *vectorstore.Store) (*models.SearchResult, bool) {
	if hit.Row < 0 || hit.Row >= store.Len() {
		return nil, false
	}
	rec := store.Source(hit.Row)
	if rec.Placeholder {
		return nil, false
	}
	resolved, ok := r.ResolvePath(rec)
	if !ok {
		return nil, false
	}
	return &models.SearchResult{
		Row:               hit.Row,
		SourcePath:        rec.CanonicalPath,
		ResolvedPath:      resolved,
		Filename:          rec.Filename(),
		Class:             models.ClassName(r.root, rec.CanonicalPath),
		Distance:          hit.Distance,
		SimilarityPercent: r.SimilarityPercent(hit.Distance),
	}, true
}

// SimilarityPercent is a display heuristic, not a probability:
// clamp(0, 100, 100 - distance*scale). It is non-increasing in distance.
func (r *Resolver) SimilarityPercent(distance float32) float64 {
	return utils.Clamp(100-float64(distance)*r.scale, 0, 100)
}
