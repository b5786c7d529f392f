// Package search answers image similarity queries against the loaded reference collection.
package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/kagami/internal/embedding"
	"github.com/hyperjump/kagami/internal/models"
	"github.com/hyperjump/kagami/internal/storage"
	"github.com/hyperjump/kagami/internal/vector"
	"github.com/hyperjump/kagami/internal/vectorstore"
	"go.uber.org/zap"
)

// DefaultEmbedTimeout bounds a single query embedding when none is configured.
const DefaultEmbedTimeout = 10 * time.Second

// Appender produces a new store with one more image. *indexer.Indexer implements it.
type Appender interface {
	AppendFile(ctx context.Context, store *vectorstore.Store, path string) (*vectorstore.Store, error)
}

// Service embeds a query image, searches the current snapshot, and resolves hits.
// Queries read the snapshot without locking; Load, Swap and Append replace it atomically.
type Service struct {
	embedder     embedding.Embedder
	resolver     *Resolver
	indexType    string
	indexOpts    []vector.Option
	defaultK     int
	maxK         int
	embedTimeout time.Duration
	policy       DegradedPolicy
	degraded     string
	storePath    string
	codec        vectorstore.Codec
	appender     Appender
	history      storage.HistoryStore
	logger       *zap.Logger

	snap atomic.Pointer[snapshot]
	// mu serializes writers; readers never take it.
	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIndexType selects the index implementation built for each snapshot.
func WithIndexType(t string, opts ...vector.Option) Option {
	return func(s *Service) {
		s.indexType = t
		s.indexOpts = opts
	}
}

// WithLimits sets the default and maximum k.
func WithLimits(defaultK, maxK int) Option {
	return func(s *Service) {
		if defaultK > 0 {
			s.defaultK = defaultK
		}
		if maxK > 0 {
			s.maxK = maxK
		}
	}
}

// WithEmbedTimeout bounds each query embedding.
func WithEmbedTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.embedTimeout = d
		}
	}
}

// WithDegraded marks the service degraded from the start, for example when the
// configured model could not be loaded and a fallback embedder is in use.
func WithDegraded(reason string, policy DegradedPolicy) Option {
	return func(s *Service) {
		s.degraded = reason
		if policy != "" {
			s.policy = policy
		}
	}
}

// WithPersistence saves the store to path after every Append.
func WithPersistence(path string, codec vectorstore.Codec) Option {
	return func(s *Service) {
		s.storePath = path
		s.codec = codec
	}
}

// WithAppender enables Append.
func WithAppender(a Appender) Option {
	return func(s *Service) { s.appender = a }
}

// WithHistory records every successful query.
func WithHistory(h storage.HistoryStore) Option {
	return func(s *Service) { s.history = h }
}

// NewService creates a service in the NotReady state.
func NewService(embedder embedding.Embedder, resolver *Resolver, opts ...Option) *Service {
	s := &Service{
		embedder:     embedder,
		resolver:     resolver,
		indexType:    string(vector.IndexTypeFlat),
		defaultK:     models.DefaultK,
		maxK:         50,
		embedTimeout: DefaultEmbedTimeout,
		policy:       DegradedServe,
		codec:        vectorstore.CodecZSTD,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports readiness. Callers switch on State rather than probing for a nil index.
func (s *Service) State() ServiceState {
	return s.stateOf(s.snap.Load())
}

func (s *Service) stateOf(snap *snapshot) ServiceState {
	if snap == nil {
		return ServiceState{State: StateNotReady}
	}
	if s.degraded != "" {
		return ServiceState{State: StateDegraded, Reason: s.degraded}
	}
	return ServiceState{State: StateReady}
}

// Resolver returns the resolver used for results.
func (s *Service) Resolver() *Resolver { return s.resolver }

// Store returns the store of the current snapshot, or nil when not ready.
// The returned store must be treated as read-only.
func (s *Service) Store() *vectorstore.Store {
	if snap := s.snap.Load(); snap != nil {
		return snap.store
	}
	return nil
}

// Load reads a persisted store from base and swaps it in. On failure the current
// snapshot, if any, keeps serving.
func (s *Service) Load(base string) error {
	store, err := vectorstore.Load(base)
	if err != nil {
		return err
	}
	return s.Swap(store)
}

// Swap builds an index over store and makes it the current snapshot.
// store must not be mutated afterwards.
func (s *Service) Swap(store *vectorstore.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swapLocked(store)
}

func (s *Service) swapLocked(store *vectorstore.Store) error {
	if dim := s.embedder.Dimensions(); store.Len() > 0 && dim > 0 && store.Dim() != dim {
		return fmt.Errorf("store does not match embedder %s: %w", s.embedder.Name(),
			&models.DimensionMismatchError{Expected: dim, Actual: store.Dim()})
	}
	if name := store.Embedder(); name != "" && name != s.embedder.Name() {
		return &models.EmbedderMismatchError{Store: name, Embedder: s.embedder.Name()}
	}
	idx, err := vector.NewIndex(s.indexType, store, s.indexOpts...)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	// The previous snapshot is not closed: in-flight queries may still be reading it.
	s.snap.Store(&snapshot{store: store, index: idx, loadedAt: time.Now()})
	s.logger.Info("index ready",
		zap.Int("vectors", store.Len()),
		zap.Int("dimensions", store.Dim()),
		zap.String("index", idx.Type()),
	)
	return nil
}

// Append embeds the image at path, appends it to a copy of the current store, swaps
// the copy in, and persists it when a store path is set. A persist failure is
// returned wrapped in ErrIOFailure but the new snapshot stays in service.
func (s *Service) Append(ctx context.Context, path string) (int, error) {
	if s.appender == nil {
		return -1, fmt.Errorf("append is not enabled")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	if cur == nil {
		return -1, models.ErrServiceNotReady
	}
	next, err := s.appender.AppendFile(ctx, cur.store, path)
	if err != nil {
		return -1, err
	}
	if err := s.swapLocked(next); err != nil {
		return -1, err
	}
	row := next.Len() - 1
	if s.storePath != "" {
		if err := vectorstore.Save(next, s.storePath, s.codec); err != nil {
			s.logger.Error("failed to persist store after append", zap.String("path", s.storePath), zap.Error(err))
			return row, err
		}
	}
	return row, nil
}

// Query embeds image and returns up to k resolved results. k of 0 uses the default.
func (s *Service) Query(ctx context.Context, image []byte, k int) (*models.SearchResponse, error) {
	return s.Search(ctx, &models.SearchQuery{Image: image, K: k})
}

// QueryFile reads the query image from path. A missing file is ErrNotFound.
func (s *Service) QueryFile(ctx context.Context, path string, k int) (*models.SearchResponse, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("query image %s: %w", path, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read query image: %w", err)
	}
	return s.Search(ctx, &models.SearchQuery{Name: filepath.Base(path), Image: data, K: k})
}

// Search runs a similarity query. The result list holds only resolvable images, so it
// may be shorter than k; Dropped counts the rest.
func (s *Service) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if len(q.Image) == 0 {
		return nil, fmt.Errorf("query image is empty: %w", models.ErrNotFound)
	}
	if q.K == 0 {
		q.K = s.defaultK
	}
	if err := q.Validate(s.maxK); err != nil {
		return nil, err
	}

	snap := s.snap.Load()
	state := s.stateOf(snap)
	switch state.State {
	case StateNotReady:
		return nil, models.ErrServiceNotReady
	case StateDegraded:
		if s.policy == DegradedReject {
			return nil, fmt.Errorf("%w: %s", models.ErrServiceDegraded, state.Reason)
		}
	}

	vec, err := s.embed(ctx, q.Image)
	if err != nil {
		return nil, err
	}
	hits, err := snap.index.Search(ctx, vec, q.K)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	response := &models.SearchResponse{
		Results:  make([]*models.SearchResult, 0, len(hits)),
		K:        q.K,
		Query:    q.Name,
		Degraded: state.State == StateDegraded,
	}
	for _, hit := range hits {
		result, ok := s.resolver.Resolve(hit, snap.store)
		if !ok {
			response.Dropped++
			s.logger.Debug("dropping unresolvable hit",
				zap.Int("row", hit.Row),
				zap.String("path", snap.store.Source(hit.Row).CanonicalPath),
			)
			continue
		}
		result.Rank = len(response.Results) + 1
		response.Results = append(response.Results, result)
	}
	response.Total = len(response.Results)
	response.QueryTime = time.Since(startTime).Milliseconds()

	s.record(ctx, response)
	return response, nil
}

// embed runs the embedder under the configured timeout. The embedder runs in its own
// goroutine so an implementation that ignores ctx still cannot block the caller.
func (s *Service) embed(ctx context.Context, image []byte) ([]float32, error) {
	ectx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()

	type embedResult struct {
		vec []float32
		err error
	}
	done := make(chan embedResult, 1)
	go func() {
		vec, err := s.embedder.Embed(ectx, image)
		done <- embedResult{vec, err}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			if !vector.IsUnit(r.vec) {
				s.logger.Debug("query embedding is not unit length",
					zap.String("embedder", s.embedder.Name()),
					zap.Float64("norm", vector.L2Norm(r.vec)))
			}
			return r.vec, nil
		}
		switch {
		case errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil:
			return nil, fmt.Errorf("%w after %s", models.ErrEmbeddingTimeout, s.embedTimeout)
		case errors.Is(r.err, context.Canceled), errors.Is(r.err, models.ErrDecodeFailure),
			errors.Is(r.err, models.ErrModelFailure):
			return nil, r.err
		default:
			return nil, fmt.Errorf("%w: %v", models.ErrModelFailure, r.err)
		}
	case <-ectx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w after %s", models.ErrEmbeddingTimeout, s.embedTimeout)
	}
}

func (s *Service) record(ctx context.Context, resp *models.SearchResponse) {
	if s.history == nil {
		return
	}
	rec := &models.HistoryRecord{
		QueryName:   resp.Query,
		K:           resp.K,
		ResultCount: resp.Total,
		QueryTimeMs: resp.QueryTime,
		Degraded:    resp.Degraded,
		Results:     make([]models.HistoryResult, 0, len(resp.Results)),
	}
	for _, r := range resp.Results {
		rec.Results = append(rec.Results, models.HistoryResult{
			Rank:              r.Rank,
			SourcePath:        r.SourcePath,
			Distance:          r.Distance,
			SimilarityPercent: r.SimilarityPercent,
		})
	}
	if err := s.history.RecordSearch(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("failed to record search history", zap.Error(err))
	}
}

// Stats summarizes the current snapshot. It is computed on every call.
func (s *Service) Stats() models.DatasetStats {
	snap := s.snap.Load()
	state := s.stateOf(snap)
	stats := models.DatasetStats{
		State:      state.State.String(),
		Reason:     state.Reason,
		IndexReady: state.State != StateNotReady,
		Embedder:   s.embedder.Name(),
	}
	if snap != nil {
		stats.TotalVectors = snap.store.Len()
		stats.Dimensions = snap.store.Dim()
		stats.IndexType = snap.index.Type()
		stats.MaskedRows = int(snap.store.Masked().GetCardinality())
		loadedAt := snap.loadedAt
		stats.LoadedAt = &loadedAt
	}
	if s.storePath != "" {
		if n, err := storage.DiskUsageBytes(vectorstore.Artifacts(s.storePath)...); err == nil {
			stats.DiskUsageBytes = &n
		}
	}
	return stats
}

// Close releases the current index.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap := s.snap.Swap(nil); snap != nil {
		return snap.index.Close()
	}
	return nil
}
