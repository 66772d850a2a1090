package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/adverant/nexus/pharmascan/internal/ocr"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "WORKER_CONCURRENCY", "SCAN_TIMEOUT_MS", "REPOSITORY_BACKEND", "OCR_LANGUAGES", "TUNING_FILE", "QUEUE_BACKEND"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.HTTPAddr != ":10000" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.ScanTimeout != 60*time.Second {
		t.Errorf("ScanTimeout = %v", cfg.ScanTimeout)
	}
	if cfg.RepositoryBackend != BackendJSONFile {
		t.Errorf("RepositoryBackend = %q", cfg.RepositoryBackend)
	}
	if cfg.Tuning == nil || cfg.Tuning.OCR.HighConfidenceCutoff != 85 {
		t.Errorf("Tuning = %+v", cfg.Tuning)
	}
	if !reflect.DeepEqual(cfg.Tuning.OCR.Languages, []string{"eng"}) {
		t.Errorf("OCR languages = %v", cfg.Tuning.OCR.Languages)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("TUNING_FILE", "")
	t.Setenv("SCAN_TIMEOUT_MS", "2500")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("OCR_LANGUAGES", "eng+hin")
	t.Setenv("DICTIONARY_CACHE_TTL", "24h")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.ScanTimeout != 2500*time.Millisecond {
		t.Errorf("ScanTimeout = %v", cfg.ScanTimeout)
	}
	if cfg.WorkerConcurrency != 8 {
		t.Errorf("WorkerConcurrency = %d", cfg.WorkerConcurrency)
	}
	if !reflect.DeepEqual(cfg.OCRLanguages, []string{"eng", "hin"}) {
		t.Errorf("OCRLanguages = %v", cfg.OCRLanguages)
	}
	if cfg.DictionaryCacheTTL != 24*time.Hour {
		t.Errorf("DictionaryCacheTTL = %v", cfg.DictionaryCacheTTL)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			WorkerConcurrency: 4,
			MaxUploadBytes:    10 * 1024 * 1024,
			MaxImagePixels:    40_000_000,
			ScanTimeout:       time.Minute,
			DictionaryURL:     DefaultDictionaryURL,
			RepositoryBackend: BackendJSONFile,
			ScanDBPath:        "scan-db.json",
			QueueBackend:      QueueList,
			Tuning:            DefaultTuning(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "concurrency too high", mutate: func(c *Config) { c.WorkerConcurrency = 101 }, wantErr: true},
		{name: "upload limit too small", mutate: func(c *Config) { c.MaxUploadBytes = 10 }, wantErr: true},
		{name: "pixel budget too large", mutate: func(c *Config) { c.MaxImagePixels = 1 << 40 }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.ScanTimeout = 0 }, wantErr: true},
		{name: "no dictionary", mutate: func(c *Config) { c.DictionaryURL = "" }, wantErr: true},
		{name: "dictionary file only", mutate: func(c *Config) { c.DictionaryURL = ""; c.DictionaryFile = "bundle.json" }},
		{name: "postgres without url", mutate: func(c *Config) { c.RepositoryBackend = BackendPostgres }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.RepositoryBackend = "mongo" }, wantErr: true},
		{name: "unknown queue", mutate: func(c *Config) { c.QueueBackend = "kafka" }, wantErr: true},
		{name: "bad tuning", mutate: func(c *Config) { c.Tuning.Matcher.MinConfidence = 2 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadTuningOverridesSubset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	content := `
ocr:
  high_confidence_cutoff: 90
  strategies: [grayscale, threshold, invert]
matcher:
  min_confidence: 0.9
  extra_stop_words: [ayurvedic]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	tuning, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("LoadTuning() error = %v", err)
	}
	if err := tuning.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if tuning.OCR.HighConfidenceCutoff != 90 {
		t.Errorf("cutoff = %v", tuning.OCR.HighConfidenceCutoff)
	}
	wantStrategies := []ocr.StrategyKind{ocr.StrategyGrayscale, ocr.StrategyThreshold, ocr.StrategyInvert}
	if !reflect.DeepEqual(tuning.OCR.Strategies, wantStrategies) {
		t.Errorf("strategies = %v", tuning.OCR.Strategies)
	}
	if tuning.OCR.TermBonus != 5 {
		t.Errorf("untouched TermBonus = %v, want default", tuning.OCR.TermBonus)
	}
	if tuning.Matcher.MinConfidence != 0.9 || tuning.Matcher.MinTokenLength != 5 {
		t.Errorf("matcher = %+v", tuning.Matcher)
	}
	if !reflect.DeepEqual(tuning.Matcher.ExtraStopWords, []string{"ayurvedic"}) {
		t.Errorf("extra stop words = %v", tuning.Matcher.ExtraStopWords)
	}
}

func TestLoadTuningErrors(t *testing.T) {
	if _, err := LoadTuning(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("ocr: [not, a, map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTuning(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}
