/**
 * PostgreSQL Scan Repository for PharmaScan
 *
 * Stores scan results in a single table keyed by scan id. Saving is an
 * UPSERT so a job retried by the queue overwrites its earlier record.
 */

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// DefaultPostgresTable holds scan results when no table is configured
const DefaultPostgresTable = "pharmascan_scans"

// PostgresRepository stores scans in PostgreSQL
type PostgresRepository struct {
	*sqlRepository
	table string
}

// NewPostgresRepository connects to databaseURL and ensures the scan table exists
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	return NewPostgresRepositoryWithTable(ctx, databaseURL, DefaultPostgresTable)
}

// NewPostgresRepositoryWithTable is NewPostgresRepository with a custom table name
func NewPostgresRepositoryWithTable(ctx context.Context, databaseURL, table string) (*PostgresRepository, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	if table == "" {
		table = DefaultPostgresTable
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	quoted := pq.QuoteIdentifier(table)
	if _, err := db.ExecContext(pingCtx, postgresSchema(quoted)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create %s: %w", table, err)
	}

	return &PostgresRepository{
		sqlRepository: &sqlRepository{
			db:        db,
			queries:   postgresQueries(quoted),
			cleanJSON: sanitizeJSONForPostgres,
			cleanText: stripNUL,
		},
		table: table,
	}, nil
}

// Table returns the table scans are stored in
func (p *PostgresRepository) Table() string {
	return p.table
}

func postgresSchema(table string) string {
	return `
		CREATE TABLE IF NOT EXISTS ` + table + ` (
			id             TEXT PRIMARY KEY,
			extracted_text TEXT NOT NULL DEFAULT '',
			confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			detected_drugs JSONB NOT NULL DEFAULT '[]'::jsonb,
			raw            JSONB,
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
}

func postgresQueries(table string) sqlQueries {
	return sqlQueries{
		upsert: `
			INSERT INTO ` + table + ` (
				id, extracted_text, confidence, created_at, detected_drugs, raw, updated_at
			) VALUES (
				$1, $2, $3, $4, $5::jsonb, $6::jsonb, NOW()
			)
			ON CONFLICT (id) DO UPDATE SET
				extracted_text = EXCLUDED.extracted_text,
				confidence = EXCLUDED.confidence,
				created_at = EXCLUDED.created_at,
				detected_drugs = EXCLUDED.detected_drugs,
				raw = COALESCE(EXCLUDED.raw, ` + table + `.raw),
				updated_at = NOW()`,
		get: `
			SELECT id, extracted_text, confidence, created_at, detected_drugs, raw
			FROM ` + table + `
			WHERE id = $1`,
		list: `
			SELECT id, extracted_text, confidence, created_at, detected_drugs, raw
			FROM ` + table + `
			ORDER BY created_at DESC, id`,
		delete: `DELETE FROM ` + table + ` WHERE id = $1`,
	}
}
