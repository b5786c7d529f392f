package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

var sqliteDialect = dialect{
	schema: `
	CREATE TABLE IF NOT EXISTS searches (
		id TEXT PRIMARY KEY,
		query_name TEXT NOT NULL DEFAULT '',
		k INTEGER NOT NULL,
		result_count INTEGER NOT NULL,
		query_time_ms INTEGER NOT NULL,
		degraded BOOLEAN NOT NULL DEFAULT 0,
		results TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_searches_created_at ON searches(created_at);
	`,
	insert: `INSERT INTO searches (id, query_name, k, result_count, query_time_ms, degraded, results, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	get: `SELECT id, query_name, k, result_count, query_time_ms, degraded, results, created_at
		FROM searches WHERE id = ?`,
	list: `SELECT id, query_name, k, result_count, query_time_ms, degraded, results, created_at
		FROM searches ORDER BY created_at DESC, id DESC LIMIT ?`,
	count: `SELECT COUNT(*) FROM searches`,
}

// NewSQLiteHistory opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteHistory(dbPath string) (HistoryStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec(sqliteDialect.schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &sqlHistory{db: db, d: sqliteDialect}, nil
}
