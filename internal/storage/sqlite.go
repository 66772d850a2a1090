package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS scans (
		id             TEXT PRIMARY KEY,
		extracted_text TEXT NOT NULL DEFAULT '',
		confidence     REAL NOT NULL DEFAULT 0,
		created_at     TIMESTAMP NOT NULL,
		detected_drugs TEXT NOT NULL DEFAULT '[]',
		raw            TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_scans_created_at ON scans (created_at);`

var sqliteQueries = sqlQueries{
	upsert: `
		INSERT INTO scans (id, extracted_text, confidence, created_at, detected_drugs, raw)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			extracted_text = excluded.extracted_text,
			confidence = excluded.confidence,
			created_at = excluded.created_at,
			detected_drugs = excluded.detected_drugs,
			raw = COALESCE(excluded.raw, scans.raw)`,
	get: `
		SELECT id, extracted_text, confidence, created_at, detected_drugs, raw
		FROM scans WHERE id = ?`,
	list: `
		SELECT id, extracted_text, confidence, created_at, detected_drugs, raw
		FROM scans ORDER BY created_at DESC, id`,
	delete: `DELETE FROM scans WHERE id = ?`,
}

// SQLiteRepository stores scans in a local SQLite database
type SQLiteRepository struct {
	*sqlRepository
	path string
}

// NewSQLiteRepository opens (creating if needed) the database at path.
// ":memory:" gives a private in-memory database.
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create scans table: %w", err)
	}

	return &SQLiteRepository{
		sqlRepository: &sqlRepository{db: db, queries: sqliteQueries},
		path:          path,
	}, nil
}

// Path returns the database file location
func (s *SQLiteRepository) Path() string {
	return s.path
}
