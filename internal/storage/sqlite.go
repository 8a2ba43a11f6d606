package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := checkLocalFilesystem(path, detectFilesystemType); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Pragmas are per-connection; a single connection also serializes writers.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(pctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS inspection_record (
  id                   TEXT PRIMARY KEY,
  inspection_id        TEXT NOT NULL UNIQUE,
  tag_id               TEXT NOT NULL,
  description          TEXT NOT NULL DEFAULT '',
  inspection_type      TEXT,
  installation_code    TEXT,
  robot_name           TEXT,
  isar_id              TEXT,
  raw_data_path        TEXT,
  visualized_data_path TEXT,
  inspected_at         TEXT,
  created_at           TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS tag_analysis (
  id              INTEGER PRIMARY KEY AUTOINCREMENT,
  tag             TEXT NOT NULL,
  tag_key         TEXT NOT NULL,
  description     TEXT NOT NULL DEFAULT '',
  description_key TEXT NOT NULL DEFAULT '',
  analyses        JSON NOT NULL DEFAULT '[]',
  updated_at      TEXT NOT NULL,
  UNIQUE(tag_key, description_key)
);`,
		`CREATE INDEX IF NOT EXISTS inspection_record_tag_idx ON inspection_record(tag_id);`,
		`CREATE INDEX IF NOT EXISTS inspection_record_created_at_idx ON inspection_record(created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
