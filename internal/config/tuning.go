package config

import (
	"fmt"
	"os"

	"github.com/adverant/nexus/pharmascan/internal/dictionary"
	"github.com/adverant/nexus/pharmascan/internal/matcher"
	"github.com/adverant/nexus/pharmascan/internal/ocr"
	"gopkg.in/yaml.v3"
)

// Tuning holds the recognition and matching thresholds. Every field has a
// production default; a YAML file may override any subset.
type Tuning struct {
	OCR        ocr.Options             `yaml:"ocr"`
	Matcher    matcher.Options         `yaml:"matcher"`
	Dictionary dictionary.IndexOptions `yaml:"dictionary"`
}

// DefaultTuning returns the production thresholds
func DefaultTuning() *Tuning {
	return &Tuning{
		OCR:        ocr.DefaultOptions(),
		Matcher:    matcher.DefaultOptions(),
		Dictionary: dictionary.DefaultIndexOptions(),
	}
}

// LoadTuning returns the defaults overlaid with the YAML file at path.
// An empty path means defaults only.
func LoadTuning(path string) (*Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("failed to parse tuning file %s: %w", path, err)
	}
	return t, nil
}

// Validate checks every section
func (t *Tuning) Validate() error {
	if err := t.OCR.Validate(); err != nil {
		return err
	}
	if err := t.Matcher.Validate(); err != nil {
		return err
	}
	if t.Dictionary.CanonicalWeight <= 0 || t.Dictionary.AlternateWeight <= 0 {
		return fmt.Errorf("dictionary weights must be positive")
	}
	if t.Dictionary.AlternateWeight > t.Dictionary.CanonicalWeight {
		return fmt.Errorf("dictionary alternate_weight must not exceed canonical_weight")
	}
	if t.Dictionary.SlugWeight < 0 {
		return fmt.Errorf("dictionary slug_weight must not be negative")
	}
	if t.Dictionary.MinMatchLength < 1 {
		return fmt.Errorf("dictionary min_match_length must be positive")
	}
	return nil
}
