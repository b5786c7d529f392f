// Package indexer builds a vector store from a directory of reference images.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/kagami/internal/embedding"
	"github.com/hyperjump/kagami/internal/models"
	"github.com/hyperjump/kagami/internal/vectorstore"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultExtensions are the image types ingested when none are configured.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp"}

// ErrAlreadyIndexed is returned by AppendFile when the store already holds the path.
var ErrAlreadyIndexed = errors.New("already indexed")

// FailurePolicy decides what happens to an image that cannot be embedded.
type FailurePolicy string

const (
	// FailureExclude omits the image from the store. It is still listed as a failed item.
	FailureExclude FailurePolicy = "exclude"
	// FailurePlaceholder stores a masked zero row so row positions follow traversal order.
	FailurePlaceholder FailurePolicy = "placeholder"
)

// ParseFailurePolicy maps a config value to a FailurePolicy. Empty means exclude.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FailureExclude:
		return FailureExclude, nil
	case FailurePlaceholder:
		return FailurePlaceholder, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (use exclude or placeholder)", s)
	}
}

// ProgressFunc is called once per finished file with the running count and the total.
// Calls are serialized and processed increases by one each time.
type ProgressFunc func(processed, total int)

// Indexer embeds every image under a root directory into a vector store.
type Indexer struct {
	embedder   embedding.Embedder
	extensions []string
	workers    int
	policy     FailurePolicy
	limiter    *rate.Limiter
	storePath  string
	codec      vectorstore.Codec
	progress   ProgressFunc
	logger     *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for progress and failure output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithExtensions sets the allow-list of file extensions (case-insensitive, leading dot optional).
func WithExtensions(exts []string) IndexerOption {
	return func(idx *Indexer) {
		if len(exts) > 0 {
			idx.extensions = exts
		}
	}
}

// WithWorkers sets how many images are embedded concurrently.
func WithWorkers(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.workers = n
		}
	}
}

// WithFailurePolicy sets how embedding failures are represented in the store.
func WithFailurePolicy(p FailurePolicy) IndexerOption {
	return func(idx *Indexer) { idx.policy = p }
}

// WithRateLimit throttles embed calls. A nil limiter disables throttling.
func WithRateLimit(l *rate.Limiter) IndexerOption {
	return func(idx *Indexer) { idx.limiter = l }
}

// WithStorePath makes Ingest persist the finished store to path.
func WithStorePath(path string, codec vectorstore.Codec) IndexerOption {
	return func(idx *Indexer) {
		idx.storePath = path
		idx.codec = codec
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) IndexerOption {
	return func(idx *Indexer) { idx.progress = fn }
}

// NewIndexer creates an indexer using embedder for every image.
func NewIndexer(embedder embedding.Embedder, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		embedder:   embedder,
		extensions: DefaultExtensions,
		workers:    4,
		policy:     FailureExclude,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.logger == nil {
		idx.logger = zap.NewNop()
	}
	return idx
}

// Extensions returns the configured allow-list.
func (idx *Indexer) Extensions() []string {
	return idx.extensions
}

// embedResult is the outcome for one file, stored at its traversal position.
type embedResult struct {
	vec []float32
	err error
}

// Ingest walks root, embeds every allowed image, and returns the resulting store.
// Files are processed in lexicographic path order and rows follow that order regardless
// of worker count. Per-file failures are collected in the report, never returned as err.
// A persistence failure is recorded in Report.PersistErr and the in-memory store is still returned.
func (idx *Indexer) Ingest(ctx context.Context, root string) (*vectorstore.Store, *Report, error) {
	started := time.Now()
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, fmt.Errorf("absolute path: %w", err)
	}
	files, unreadable, err := idx.collect(absRoot)
	if err != nil {
		return nil, nil, err
	}
	idx.logger.Info("ingestion started",
		zap.String("root", absRoot),
		zap.Int("files", len(files)),
		zap.Int("workers", idx.workers),
		zap.String("failure_policy", string(idx.policy)))

	results, err := idx.embedAll(ctx, files)
	if err != nil {
		return nil, nil, err
	}

	store, report := idx.merge(absRoot, files, results)
	report.Failed = append(report.Failed, unreadable...)
	report.Duration = time.Since(started)
	report.StartedAt = started

	if idx.storePath != "" {
		if err := vectorstore.Save(store, idx.storePath, idx.codec); err != nil {
			report.PersistErr = err
			report.PersistError = err.Error()
			idx.logger.Error("store persist failed", zap.String("path", idx.storePath), zap.Error(err))
		} else {
			report.StorePath = idx.storePath
		}
	}
	idx.logger.Info("ingestion finished",
		zap.Int("rows", store.Len()),
		zap.Int("failed", len(report.Failed)),
		zap.Duration("duration", report.Duration))
	return store, report, nil
}

// collect walks root and returns the allowed regular files, sorted. Entries below
// root that cannot be read are returned as failed items and skipped.
func (idx *Indexer) collect(absRoot string) ([]string, []FailedItem, error) {
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("not a directory: %s", absRoot)
	}
	var (
		files      []string
		unreadable []FailedItem
	)
	err = filepath.WalkDir(absRoot, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == absRoot {
				return walkErr
			}
			idx.logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(walkErr))
			unreadable = append(unreadable, FailedItem{
				Path:   path,
				Reason: fmt.Sprintf("%v: %v", models.ErrIOFailure, walkErr),
			})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !extensionAllowed(filepath.Ext(path), idx.extensions) {
			return nil
		}
		// Resolve symlinks so we only ingest regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", absRoot, err)
	}
	sort.Strings(files)
	return files, unreadable, nil
}

// embedAll embeds files on a bounded pool. Only cancellation of ctx aborts the run.
func (idx *Indexer) embedAll(ctx context.Context, files []string) ([]embedResult, error) {
	results := make([]embedResult, len(files))
	var (
		mu        sync.Mutex
		processed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	for i, path := range files {
		i, path := i, path
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			vec, err := idx.embedFile(gctx, path)
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			results[i] = embedResult{vec: vec, err: err}
			if err != nil {
				idx.logger.Warn("image failed", zap.String("path", path), zap.Error(err))
			} else {
				idx.logger.Debug("image embedded", zap.String("path", path))
			}
			mu.Lock()
			processed++
			if idx.progress != nil {
				idx.progress(processed, len(files))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (idx *Indexer) embedFile(ctx context.Context, path string) ([]float32, error) {
	if idx.limiter != nil {
		if err := idx.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIOFailure, err)
	}
	return idx.embedder.Embed(ctx, data)
}

// merge is the single writer: it appends results to a new store in traversal order.
func (idx *Indexer) merge(absRoot string, files []string, results []embedResult) (*vectorstore.Store, *Report) {
	report := &Report{Root: absRoot, Total: len(files), Policy: idx.policy}

	dim := 0
	for _, r := range results {
		if r.err == nil && len(r.vec) > 0 {
			dim = len(r.vec)
			break
		}
	}
	if dim == 0 {
		dim = idx.embedder.Dimensions()
	}
	store := vectorstore.New(dim)
	store.SetEmbedder(idx.embedder.Name())

	for i, path := range files {
		rec := models.SourceRecord{CanonicalPath: path}
		r := results[i]
		if r.err == nil {
			r.err = store.Append(r.vec, rec)
		}
		if r.err == nil {
			report.Succeeded++
			continue
		}
		report.Failed = append(report.Failed, FailedItem{Path: path, Reason: r.err.Error()})
		if idx.policy == FailurePlaceholder {
			if err := store.AppendPlaceholder(rec); err != nil {
				idx.logger.Warn("placeholder not written", zap.String("path", path), zap.Error(err))
				continue
			}
			report.Placeholders++
		}
	}
	return store, report
}

// AppendFile embeds a single image and returns a copy of store with it appended.
// store itself is not modified.
func (idx *Indexer) AppendFile(ctx context.Context, store *vectorstore.Store, path string) (*vectorstore.Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	if !extensionAllowed(filepath.Ext(absPath), idx.extensions) {
		return nil, fmt.Errorf("extension %q not in allowed list", filepath.Ext(absPath))
	}
	info, err := os.Stat(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, absPath)
	}
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	if name := store.Embedder(); name != "" && name != idx.embedder.Name() {
		return nil, &models.EmbedderMismatchError{Store: name, Embedder: idx.embedder.Name()}
	}
	if store.IndexOf(absPath) >= 0 {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyIndexed, absPath)
	}
	vec, err := idx.embedFile(ctx, absPath)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", absPath, err)
	}
	next := store.Clone()
	next.SetEmbedder(idx.embedder.Name())
	if err := next.Append(vec, models.SourceRecord{CanonicalPath: absPath}); err != nil {
		return nil, fmt.Errorf("append %s: %w", absPath, err)
	}
	idx.logger.Debug("image appended", zap.String("path", absPath), zap.Int("row", next.Len()-1))
	return next, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	if extNorm == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
