package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a persisted store or a query image does not exist.
	ErrNotFound = errors.New("not found")
	// ErrCorruptFormat is returned when persisted artifacts fail validation.
	ErrCorruptFormat = errors.New("corrupt format")
	// ErrDimensionMismatch is matched by every *DimensionMismatchError.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrEmbeddingTimeout  = errors.New("embedding timeout")
	ErrModelFailure      = errors.New("model failure")
	ErrDecodeFailure     = errors.New("image decode failure")
	ErrIOFailure         = errors.New("io failure")
	ErrServiceNotReady   = errors.New("service not ready")
	ErrServiceDegraded   = errors.New("service degraded")
	ErrInvalidK          = errors.New("invalid k")
)

// DimensionMismatchError reports a vector whose length differs from the store or index dimension.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// EmbedderMismatchError reports a store whose vectors were produced by a different
// embedder than the one answering queries. Distances across models are meaningless.
type EmbedderMismatchError struct {
	Store    string
	Embedder string
}

func (e *EmbedderMismatchError) Error() string {
	return fmt.Sprintf("store was built by embedder %q, service uses %q", e.Store, e.Embedder)
}

func (e *EmbedderMismatchError) Unwrap() error { return ErrCorruptFormat }

// InvalidKError reports a result count outside the accepted range.
type InvalidKError struct {
	K   int
	Max int
}

func (e *InvalidKError) Error() string {
	return fmt.Sprintf("invalid k %d: must be between 1 and %d", e.K, e.Max)
}

func (e *InvalidKError) Unwrap() error { return ErrInvalidK }
