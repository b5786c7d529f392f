package storage

import (
	"fmt"
	"strings"
)

// NewHistoryStore opens a history store based on the DSN.
//   - postgres:// or postgresql://: PostgreSQL
//   - anything else: SQLite at the given path
//
// An empty DSN returns a nil store; query history is then disabled.
func NewHistoryStore(dsn string) (HistoryStore, error) {
	if dsn == "" {
		return nil, nil
	}
	if IsPostgresDSN(dsn) {
		hs, err := NewPostgresHistory(dsn)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return hs, nil
	}
	return NewSQLiteHistory(dsn)
}

// IsPostgresDSN reports whether dsn selects the PostgreSQL backend.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
