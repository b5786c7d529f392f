package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kagami/internal/models"
)

// dialect holds the statements that differ between database backends.
type dialect struct {
	schema string
	insert string
	get    string
	list   string
	count  string
}

// sqlHistory implements HistoryStore over database/sql for any dialect.
type sqlHistory struct {
	db *sql.DB
	d  dialect
}

func (s *sqlHistory) RecordSearch(ctx context.Context, rec *models.HistoryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	results, err := json.Marshal(rec.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.d.insert,
		rec.ID, rec.QueryName, rec.K, rec.ResultCount, rec.QueryTimeMs, rec.Degraded,
		string(results), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record search: %w", err)
	}
	return nil
}

func (s *sqlHistory) GetSearch(ctx context.Context, id string) (*models.HistoryRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, s.d.get, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("search %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *sqlHistory) ListSearches(ctx context.Context, limit int) ([]*models.HistoryRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, s.d.list, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}
	defer rows.Close()

	var out []*models.HistoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqlHistory) CountSearches(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, s.d.count).Scan(&n)
	return n, err
}

func (s *sqlHistory) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.HistoryRecord, error) {
	var rec models.HistoryRecord
	var results string
	err := row.Scan(&rec.ID, &rec.QueryName, &rec.K, &rec.ResultCount, &rec.QueryTimeMs,
		&rec.Degraded, &results, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if results != "" {
		if err := json.Unmarshal([]byte(results), &rec.Results); err != nil {
			return nil, fmt.Errorf("failed to unmarshal results: %w", err)
		}
	}
	return &rec, nil
}
