package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var postgresDialect = dialect{
	schema: `
	CREATE TABLE IF NOT EXISTS searches (
		id TEXT PRIMARY KEY,
		query_name TEXT NOT NULL DEFAULT '',
		k INTEGER NOT NULL,
		result_count INTEGER NOT NULL,
		query_time_ms BIGINT NOT NULL,
		degraded BOOLEAN NOT NULL DEFAULT FALSE,
		results TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_searches_created_at ON searches(created_at);
	`,
	insert: `INSERT INTO searches (id, query_name, k, result_count, query_time_ms, degraded, results, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	get: `SELECT id, query_name, k, result_count, query_time_ms, degraded, results, created_at
		FROM searches WHERE id = $1`,
	list: `SELECT id, query_name, k, result_count, query_time_ms, degraded, results, created_at
		FROM searches ORDER BY created_at DESC, id DESC LIMIT $1`,
	count: `SELECT COUNT(*) FROM searches`,
}

// NewPostgresHistory connects to PostgreSQL and creates the schema if needed.
func NewPostgresHistory(dsn string) (HistoryStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresDialect.schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &sqlHistory{db: db, d: postgresDialect}, nil
}
