// Package storage persists query history and reports disk usage of stored artifacts.
package storage

import (
	"context"

	"github.com/hyperjump/kagami/internal/models"
)

// DefaultHistoryLimit is used by ListSearches when limit is not positive.
const DefaultHistoryLimit = 20

// HistoryStore records similarity queries and their top results.
type HistoryStore interface {
	// RecordSearch stores rec. An empty ID is filled with a new UUID and a zero
	// CreatedAt with the current time.
	RecordSearch(ctx context.Context, rec *models.HistoryRecord) error
	// GetSearch returns the record with id, or an error wrapping models.ErrNotFound.
	GetSearch(ctx context.Context, id string) (*models.HistoryRecord, error)
	// ListSearches returns the most recent records first.
	ListSearches(ctx context.Context, limit int) ([]*models.HistoryRecord, error)
	CountSearches(ctx context.Context) (int64, error)
	Close() error
}
