/**
 * Scan Processor for PharmaScan
 *
 * Orchestrates one scan end to end:
 * - image loading (upload buffer or URL) and format validation
 * - OCR ensemble under a per-scan deadline
 * - text cleaning and normalization
 * - dictionary matching against the shared vocabulary
 * - result assembly and hand-off to the scan repository
 *
 * Only an unusable image fails a scan. Every later problem degrades the
 * result instead.
 */

package processor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/adverant/nexus/pharmascan/internal/dictionary"
	"github.com/adverant/nexus/pharmascan/internal/errors"
	"github.com/adverant/nexus/pharmascan/internal/logging"
	"github.com/adverant/nexus/pharmascan/internal/matcher"
	"github.com/adverant/nexus/pharmascan/internal/models"
	"github.com/adverant/nexus/pharmascan/internal/ocr"
	"github.com/adverant/nexus/pharmascan/internal/textnorm"
	"github.com/google/uuid"
)

// ScanProcessorInterface defines the interface for scan processing
type ScanProcessorInterface interface {
	ProcessScan(ctx context.Context, req *ScanRequest) (*models.ScanResult, error)
}

// Recognizer is the OCR stage
type Recognizer interface {
	Recognize(ctx context.Context, img ocr.RawImage) ocr.Result
}

// ResultSaver receives finished scans
type ResultSaver interface {
	Save(ctx context.Context, result *models.ScanResult) error
}

// ProcessorConfig holds processor dependencies
type ProcessorConfig struct {
	Recognizer Recognizer
	Dictionary *dictionary.Store
	Matcher    *matcher.Matcher
	// Repository is optional; nil skips persistence
	Repository ResultSaver

	ScanTimeout    time.Duration
	SaveTimeout    time.Duration
	MaxImageBytes  int64
	// MaxImagePixels bounds width*height as declared in the image header
	MaxImagePixels int64
	Logger         *logging.Logger
}

// DefaultMaxImagePixels admits an 8000x5000 photo
const DefaultMaxImagePixels = 40_000_000

// ScanRequest represents one image to scan
type ScanRequest struct {
	// ScanID is assigned when empty
	ScanID   string
	Filename string
	Image    []byte
	// ImageURL is downloaded when Image is empty
	ImageURL string
	Metadata map[string]interface{}
}

// ScanProcessor runs the scan pipeline. It is safe for concurrent use; scans
// share only the read-only dictionary.
type ScanProcessor struct {
	config     *ProcessorConfig
	recognizer Recognizer
	dictionary *dictionary.Store
	matcher    *matcher.Matcher
	repository ResultSaver
	downloader *Downloader
	logger     *logging.Logger

	now   func() time.Time
	newID func() string
}

// NewScanProcessor creates a new scan processor
func NewScanProcessor(cfg *ProcessorConfig) (*ScanProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Recognizer == nil {
		return nil, fmt.Errorf("recognizer is required")
	}
	if cfg.Dictionary == nil {
		return nil, fmt.Errorf("dictionary store is required")
	}
	if cfg.Matcher == nil {
		cfg.Matcher = matcher.New(matcher.DefaultOptions())
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = 60 * time.Second
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 10 * time.Second
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 10 * 1024 * 1024
	}
	if cfg.MaxImagePixels <= 0 {
		cfg.MaxImagePixels = DefaultMaxImagePixels
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &ScanProcessor{
		config:     cfg,
		recognizer: cfg.Recognizer,
		dictionary: cfg.Dictionary,
		matcher:    cfg.Matcher,
		repository: cfg.Repository,
		downloader: NewDownloader(cfg.MaxImageBytes, logger.Named("downloader")),
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

// ProcessScan runs one scan. It returns INVALID_IMAGE for rejected input and
// IMAGE_UNAVAILABLE when an image URL cannot be fetched; OCR, dictionary and
// storage problems produce a degraded result instead.
func (p *ScanProcessor) ProcessScan(ctx context.Context, req *ScanRequest) (*models.ScanResult, error) {
	start := p.now()

	if req == nil {
		return nil, errors.NewInvalidImageError("no scan request")
	}
	scanID := req.ScanID
	if scanID == "" {
		scanID = p.newID()
	}
	log := p.logger.With("scan_id", scanID)

	// Step 1: Load and validate the image
	data, err := p.loadImage(ctx, req, log)
	if err != nil {
		return nil, withScanID(err, scanID)
	}
	info, err := p.validateImage(data)
	if err != nil {
		log.Warn("Rejected image", "filename", req.Filename, "error", err)
		return nil, withScanID(err, scanID)
	}
	log.Info("Starting scan",
		"filename", req.Filename,
		"format", info.Format,
		"width", info.Width,
		"height", info.Height,
		"bytes", len(data),
	)

	// Step 2: OCR ensemble under the scan deadline
	scanCtx, cancel := context.WithTimeout(ctx, p.config.ScanTimeout)
	defer cancel()

	ocrResult := p.recognizer.Recognize(scanCtx, ocr.RawImage{Data: data, Filename: req.Filename})
	if ocrResult.TimedOut {
		log.Warn("OCR cut short by scan deadline",
			"error", errors.NewScanTimeoutError(scanID, p.config.ScanTimeout, scanCtx.Err()),
			"attempts", ocrResult.Attempts,
		)
	}

	// Step 3: Normalize text
	cleaned := textnorm.Clean(ocrResult.Text)
	normalized := textnorm.Normalize(cleaned)

	// Step 4: Match against the dictionary
	index := p.dictionary.Load(ctx)
	if !p.dictionary.Ready() {
		log.Warn("Dictionary not loaded, scan will report no drugs",
			"error", p.dictionary.LastError(),
		)
	}
	candidates := p.matcher.Candidates(normalized)
	drugs := p.matcher.MatchCandidates(candidates, index)

	// Step 5: Assemble
	result := &models.ScanResult{
		ID:            scanID,
		ExtractedText: cleaned,
		Confidence:    math.Round(ocrResult.Confidence*100) / 100,
		CreatedAt:     p.now().UTC(),
		DetectedDrugs: drugs,
		Raw: &models.ScanRaw{
			OCR: &models.RawOCR{
				Strategy:      string(ocrResult.Strategy),
				RawConfidence: ocrResult.RawConfidence,
				Attempts:      ocrResult.Attempts,
				Failures:      ocrResult.FailureStrings(),
				Accepted:      ocrResult.Accepted,
				TimedOut:      ocrResult.TimedOut,
			},
			Image: &models.RawImage{
				Format:    info.Format,
				Width:     info.Width,
				Height:    info.Height,
				SizeBytes: len(data),
			},
			Metadata: p.buildMetadata(req, normalized, len(candidates), start),
		},
	}

	// Step 6: Persist
	p.persist(ctx, result, log)

	log.Info("Scan complete",
		"confidence", result.Confidence,
		"drugs", len(result.DetectedDrugs),
		"strategy", ocrResult.Strategy,
		"duration_ms", p.now().Sub(start).Milliseconds(),
	)

	return result, nil
}

func (p *ScanProcessor) buildMetadata(req *ScanRequest, normalized string, candidates int, start time.Time) map[string]interface{} {
	meta := make(map[string]interface{}, len(req.Metadata)+4)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	if req.Filename != "" {
		meta["filename"] = req.Filename
	}
	meta["normalizedText"] = normalized
	meta["candidateCount"] = candidates
	meta["durationMs"] = p.now().Sub(start).Milliseconds()
	return meta
}

// persist hands the result to the repository. Failures are logged and never
// fail the scan.
func (p *ScanProcessor) persist(ctx context.Context, result *models.ScanResult, log *logging.Logger) {
	if p.repository == nil {
		return
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config.SaveTimeout)
	defer cancel()

	if err := p.repository.Save(saveCtx, result); err != nil {
		log.Error("Failed to save scan result",
			"error", errors.NewStorageFailedError(result.ID, err),
		)
	}
}

func withScanID(err error, scanID string) error {
	if se, ok := err.(*errors.ScanError); ok && se.ScanID == "" {
		se.ScanID = scanID
	}
	return err
}
