package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adverant/nexus/pharmascan/internal/models"
)

// sqlQueries holds the dialect-specific statements of a SQL repository
type sqlQueries struct {
	upsert string
	get    string
	list   string
	delete string
}

// sqlRepository implements Repository over database/sql. Drug lists and raw
// metadata are stored as JSON documents next to the scalar columns.
type sqlRepository struct {
	db        *sql.DB
	queries   sqlQueries
	cleanJSON func([]byte) []byte
	cleanText func(string) string
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *sqlRepository) Save(ctx context.Context, result *models.ScanResult) error {
	if result == nil || result.ID == "" {
		return fmt.Errorf("scan ID is required")
	}

	clean := sanitizeResult(result)

	drugsJSON, err := json.Marshal(clean.DetectedDrugs)
	if err != nil {
		return fmt.Errorf("failed to marshal detected drugs: %w", err)
	}
	var rawJSON []byte
	if clean.Raw != nil {
		if rawJSON, err = json.Marshal(clean.Raw); err != nil {
			return fmt.Errorf("failed to marshal raw metadata: %w", err)
		}
	}

	text := clean.ExtractedText
	if r.cleanText != nil {
		text = r.cleanText(text)
	}
	if r.cleanJSON != nil {
		drugsJSON = r.cleanJSON(drugsJSON)
		if rawJSON != nil {
			rawJSON = r.cleanJSON(rawJSON)
		}
	}

	_, err = r.db.ExecContext(ctx, r.queries.upsert,
		clean.ID,
		text,
		clean.Confidence,
		clean.CreatedAt,
		string(drugsJSON),
		nullableJSON(rawJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save scan (id=%s, drugs=%d): %w",
			clean.ID, len(clean.DetectedDrugs), err)
	}
	return nil
}

func (r *sqlRepository) Get(ctx context.Context, id string) (*models.ScanResult, error) {
	result, err := scanResultRow(r.db.QueryRowContext(ctx, r.queries.get, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan %s: %w", id, err)
	}
	return result, nil
}

func (r *sqlRepository) List(ctx context.Context) ([]*models.ScanResult, error) {
	rows, err := r.db.QueryContext(ctx, r.queries.list)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	results := make([]*models.ScanResult, 0)
	for rows.Next() {
		result, err := scanResultRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read scan row: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	// SQLite compares timestamps as text, so fix the order here
	sortNewestFirst(results)
	return results, nil
}

func (r *sqlRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.queries.delete, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete scan %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete scan %s: %w", id, err)
	}
	return n > 0, nil
}

// Ping checks database connectivity
func (r *sqlRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection
func (r *sqlRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// GetStats returns database connection pool statistics
func (r *sqlRepository) GetStats() sql.DBStats {
	return r.db.Stats()
}

func scanResultRow(row rowScanner) (*models.ScanResult, error) {
	var (
		result    models.ScanResult
		createdAt time.Time
		drugsJSON []byte
		rawJSON   []byte
	)
	if err := row.Scan(&result.ID, &result.ExtractedText, &result.Confidence, &createdAt, &drugsJSON, &rawJSON); err != nil {
		return nil, err
	}
	result.CreatedAt = createdAt.UTC()

	result.DetectedDrugs = make([]models.DrugMatch, 0)
	if len(drugsJSON) > 0 {
		if err := json.Unmarshal(drugsJSON, &result.DetectedDrugs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal detected drugs: %w", err)
		}
	}
	if len(rawJSON) > 0 {
		result.Raw = &models.ScanRaw{}
		if err := json.Unmarshal(rawJSON, result.Raw); err != nil {
			return nil, fmt.Errorf("failed to unmarshal raw metadata: %w", err)
		}
	}
	return &result, nil
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
