/**
 * OCR ensemble types
 *
 * A label photograph is run through an ordered list of preprocessing
 * strategies. Each result is scored and the best one wins; a result above
 * the high-confidence cutoff stops the run early.
 */

package ocr

import (
	"fmt"
	"time"
)

// StrategyKind names a preprocessing transform
type StrategyKind string

// Strategies, least destructive first
const (
	StrategyGrayscale StrategyKind = "grayscale"
	StrategyNormalize StrategyKind = "normalize"
	StrategyThreshold StrategyKind = "threshold"
	StrategyDenoise   StrategyKind = "denoise"
	StrategyGamma     StrategyKind = "gamma"
	StrategyInvert    StrategyKind = "invert"
)

// DefaultStrategyOrder is the priority order used when none is configured
var DefaultStrategyOrder = []StrategyKind{
	StrategyGrayscale,
	StrategyNormalize,
	StrategyThreshold,
	StrategyDenoise,
	StrategyGamma,
	StrategyInvert,
}

// DefaultWhitelist covers label text: letters, digits, punctuation and unit symbols
const DefaultWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789 .,:;-/%()+&'µ"

// Tesseract page segmentation mode for sparse text
const PageSegSparseText = 11

// RawImage is the uploaded image as received
type RawImage struct {
	Data     []byte
	Filename string
}

// Candidate is the scored output of one strategy
type Candidate struct {
	Text          string
	RawConfidence float64
	Confidence    float64
	Strategy      StrategyKind
	TermMatches   int
}

// Failure records a strategy that produced nothing usable
type Failure struct {
	Strategy StrategyKind
	Err      error
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: %v", f.Strategy, f.Err)
}

// Result is the ensemble's pick. Confidence is in [0,100]; Text is empty
// only when every attempted strategy failed.
type Result struct {
	Text          string
	Confidence    float64
	RawConfidence float64
	Strategy      StrategyKind
	Attempts      int
	Failures      []Failure
	Accepted      bool
	TimedOut      bool
	Duration      time.Duration
}

// FailureStrings renders failures for storage
func (r Result) FailureStrings() []string {
	if len(r.Failures) == 0 {
		return nil
	}
	out := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.String()
	}
	return out
}

// Recognition is what the engine reports for one image
type Recognition struct {
	Text string
	// Confidence is the engine's mean word confidence, 0..100
	Confidence float64
}

// SessionOptions configures an engine session
type SessionOptions struct {
	Languages   []string
	PageSegMode int
	Whitelist   string
}

// Engine opens OCR sessions
type Engine interface {
	NewSession(opts SessionOptions) (Session, error)
}

// Session is a configured engine instance. It is not safe for concurrent
// use; the ensemble drives one session per scan, sequentially.
type Session interface {
	Recognize(image []byte) (Recognition, error)
	Close() error
}

// Options are the ensemble's tunables
type Options struct {
	Strategies           []StrategyKind `yaml:"strategies"`
	HighConfidenceCutoff float64        `yaml:"high_confidence_cutoff"`
	TermBonus            float64        `yaml:"term_bonus"`
	MaxTermBonus         float64        `yaml:"max_term_bonus"`
	PageSegMode          int            `yaml:"page_seg_mode"`
	Whitelist            string         `yaml:"whitelist"`
	Languages            []string       `yaml:"languages"`
	// MinDimension upscales images whose longer side is smaller than this
	MinDimension int `yaml:"min_dimension"`
	// MaxDimension downscales images whose longer side is larger than this
	MaxDimension int `yaml:"max_dimension"`
}

// DefaultOptions returns production settings
func DefaultOptions() Options {
	strategies := make([]StrategyKind, len(DefaultStrategyOrder))
	copy(strategies, DefaultStrategyOrder)
	return Options{
		Strategies:           strategies,
		HighConfidenceCutoff: 85,
		TermBonus:            5,
		MaxTermBonus:         30,
		PageSegMode:          PageSegSparseText,
		Whitelist:            DefaultWhitelist,
		MinDimension:         1000,
		MaxDimension:         4000,
	}
}

// Validate checks option ranges and strategy names
func (o Options) Validate() error {
	if len(o.Strategies) == 0 {
		return fmt.Errorf("ocr strategies must not be empty")
	}
	seen := make(map[StrategyKind]bool, len(o.Strategies))
	for _, s := range o.Strategies {
		if _, ok := transforms[s]; !ok {
			return fmt.Errorf("unknown ocr strategy %q", s)
		}
		if seen[s] {
			return fmt.Errorf("ocr strategy %q listed twice", s)
		}
		seen[s] = true
	}
	if o.HighConfidenceCutoff <= 0 || o.HighConfidenceCutoff > 100 {
		return fmt.Errorf("ocr high_confidence_cutoff must be in (0,100], got %v", o.HighConfidenceCutoff)
	}
	if o.TermBonus < 0 || o.MaxTermBonus < 0 || o.MaxTermBonus > 100 {
		return fmt.Errorf("ocr term bonus must be in [0,100]")
	}
	if o.PageSegMode < 0 || o.PageSegMode > 13 {
		return fmt.Errorf("ocr page_seg_mode must be between 0 and 13, got %d", o.PageSegMode)
	}
	if o.MinDimension < 0 || o.MinDimension > 8000 {
		return fmt.Errorf("ocr min_dimension must be between 0 and 8000, got %d", o.MinDimension)
	}
	if o.MaxDimension < 0 || o.MaxDimension > 10000 {
		return fmt.Errorf("ocr max_dimension must be between 0 and 10000, got %d", o.MaxDimension)
	}
	if o.MaxDimension > 0 && o.MaxDimension < o.MinDimension {
		return fmt.Errorf("ocr max_dimension %d is below min_dimension %d", o.MaxDimension, o.MinDimension)
	}
	return nil
}
