package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adverant/nexus/pharmascan/internal/models"
)

// JSONFileRepository keeps every scan in one JSON array on disk. All access
// goes through mu, so concurrent scans never interleave a read-modify-write.
type JSONFileRepository struct {
	path string
	mu   sync.Mutex
}

// NewJSONFileRepository uses the file at path, creating its directory
func NewJSONFileRepository(path string) (*JSONFileRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("scan db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}
	return &JSONFileRepository{path: path}, nil
}

// Path returns the backing file location
func (j *JSONFileRepository) Path() string {
	return j.path
}

func (j *JSONFileRepository) Save(ctx context.Context, result *models.ScanResult) error {
	if result == nil || result.ID == "" {
		return fmt.Errorf("scan ID is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	records, err := j.read()
	if err != nil {
		return err
	}

	clean := sanitizeResult(result)
	replaced := false
	for i, r := range records {
		if r.ID == clean.ID {
			records[i] = clean
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, clean)
	}
	return j.write(records)
}

func (j *JSONFileRepository) Get(ctx context.Context, id string) (*models.ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	records, err := j.read()
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (j *JSONFileRepository) List(ctx context.Context) ([]*models.ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	j.mu.Lock()
	records, err := j.read()
	j.mu.Unlock()
	if err != nil {
		return nil, err
	}

	sortNewestFirst(records)
	return records, nil
}

func (j *JSONFileRepository) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	records, err := j.read()
	if err != nil {
		return false, err
	}
	for i, r := range records {
		if r.ID == id {
			records = append(records[:i], records[i+1:]...)
			return true, j.write(records)
		}
	}
	return false, nil
}

func (j *JSONFileRepository) Close() error {
	return nil
}

// read loads the array. A missing or empty file is an empty history.
func (j *JSONFileRepository) read() ([]*models.ScanResult, error) {
	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return make([]*models.ScanResult, 0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", j.path, err)
	}
	records := make([]*models.ScanResult, 0)
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", j.path, err)
	}
	return records, nil
}

// write replaces the file atomically via a temp file and rename
func (j *JSONFileRepository) write(records []*models.ScanResult) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal scan history: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(j.path), filepath.Base(j.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write scan history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write scan history: %w", err)
	}
	if err := os.Rename(tmp.Name(), j.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", j.path, err)
	}
	return nil
}
