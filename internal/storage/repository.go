/**
 * Scan Repositories for PharmaScan
 *
 * Stores finished scan results for the history endpoints. Three backends
 * share one contract:
 * - PostgreSQL (upsert, JSONB drug list)
 * - SQLite (WAL journal, JSON text columns)
 * - JSON file (single scan-db.json document)
 */

package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"

	"github.com/adverant/nexus/pharmascan/internal/config"
	"github.com/adverant/nexus/pharmascan/internal/logging"
	"github.com/adverant/nexus/pharmascan/internal/models"
)

// ErrNotFound is returned by Get when no scan has the requested id
var ErrNotFound = errors.New("scan not found")

// Repository persists scan results
type Repository interface {
	// Save stores a result, replacing any earlier record with the same id
	Save(ctx context.Context, result *models.ScanResult) error
	Get(ctx context.Context, id string) (*models.ScanResult, error)
	// List returns every stored result, newest first
	List(ctx context.Context) ([]*models.ScanResult, error)
	// Delete reports whether a record was removed
	Delete(ctx context.Context, id string) (bool, error)
	Close() error
}

// Open creates the repository selected by cfg.RepositoryBackend
func Open(ctx context.Context, cfg *config.Config, logger *logging.Logger) (Repository, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	switch cfg.RepositoryBackend {
	case config.BackendPostgres:
		repo, err := NewPostgresRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL repository: %w", err)
		}
		logger.Info("Scan repository ready", "backend", cfg.RepositoryBackend)
		return repo, nil

	case config.BackendSQLite:
		repo, err := NewSQLiteRepository(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		logger.Info("Scan repository ready", "backend", cfg.RepositoryBackend, "path", cfg.SQLitePath)
		return repo, nil

	case config.BackendJSONFile:
		repo, err := NewJSONFileRepository(cfg.ScanDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize JSON file repository: %w", err)
		}
		logger.Info("Scan repository ready", "backend", cfg.RepositoryBackend, "path", cfg.ScanDBPath)
		return repo, nil
	}

	return nil, fmt.Errorf("unknown repository backend %q", cfg.RepositoryBackend)
}

// sanitizeConfidence rounds a [0,1] match confidence to 4 decimal places.
// Float64 values like 0.9632000000000001 otherwise leak into stored JSON.
func sanitizeConfidence(confidence float64) float64 {
	return sanitizeBounded(confidence, 1, 10000)
}

// sanitizePercent rounds a [0,100] OCR confidence to 2 decimal places
func sanitizePercent(confidence float64) float64 {
	return sanitizeBounded(confidence, 100, 100)
}

func sanitizeBounded(v, max, scale float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return math.Round(v*scale) / scale
}

// sanitizeResult returns a copy of result with bounded confidences
func sanitizeResult(result *models.ScanResult) *models.ScanResult {
	clean := *result
	clean.Confidence = sanitizePercent(result.Confidence)
	clean.CreatedAt = result.CreatedAt.UTC()
	clean.DetectedDrugs = make([]models.DrugMatch, len(result.DetectedDrugs))
	for i, d := range result.DetectedDrugs {
		d.Confidence = sanitizeConfidence(d.Confidence)
		clean.DetectedDrugs[i] = d
	}
	return &clean
}

var (
	jsonNullEscape    = regexp.MustCompile(`\\u0000`)
	jsonControlEscape = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeJSONForPostgres removes Unicode escapes that PostgreSQL JSONB
// rejects. OCR output occasionally contains NUL and other control runes.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := jsonNullEscape.ReplaceAll(jsonBytes, []byte{})
	return jsonControlEscape.ReplaceAll(result, []byte(" "))
}

// sortNewestFirst orders results by creation time descending, ties by id
func sortNewestFirst(results []*models.ScanResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
