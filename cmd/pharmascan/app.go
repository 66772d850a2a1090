package main

import (
	"context"
	"fmt"

	"github.com/adverant/nexus/pharmascan/internal/config"
	"github.com/adverant/nexus/pharmascan/internal/dictionary"
	"github.com/adverant/nexus/pharmascan/internal/logging"
	"github.com/adverant/nexus/pharmascan/internal/matcher"
	"github.com/adverant/nexus/pharmascan/internal/ocr"
	"github.com/adverant/nexus/pharmascan/internal/ocr/tesseract"
	"github.com/adverant/nexus/pharmascan/internal/processor"
	"github.com/adverant/nexus/pharmascan/internal/storage"
	"github.com/redis/go-redis/v9"
)

// dictionaryCacheKey holds the raw bundle when DICTIONARY_CACHE_TTL is set
const dictionaryCacheKey = "pharmascan:dictionary:bundle"

// app is the wired scan pipeline shared by every command
type app struct {
	cfg        *config.Config
	logger     *logging.Logger
	dictionary *dictionary.Store
	processor  *processor.ScanProcessor
	repository storage.Repository
	redis      *redis.Client
}

// newApp wires the pipeline. withRepository=false skips persistence, for
// one-shot scans.
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger, withRepository bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	source, err := a.dictionarySource()
	if err != nil {
		return nil, err
	}
	a.dictionary = dictionary.NewStore(source, dictionary.StoreConfig{
		Index:         cfg.Tuning.Dictionary,
		RetryInterval: cfg.DictionaryRetryInterval,
		Logger:        logger.Named("dictionary"),
	})

	ensemble, err := ocr.NewEnsemble(tesseract.NewEngine(cfg.TessdataPrefix), cfg.Tuning.OCR, logger.Named("ocr"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize OCR ensemble: %w", err)
	}
	logger.Info("OCR engine ready",
		"tesseract", tesseract.Version(),
		"languages", cfg.Tuning.OCR.Languages,
		"strategies", cfg.Tuning.OCR.Strategies,
	)

	var saver processor.ResultSaver
	if withRepository {
		repo, err := storage.Open(ctx, cfg, logger.Named("storage"))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.repository = repo
		saver = repo
	}

	a.processor, err = processor.NewScanProcessor(&processor.ProcessorConfig{
		Recognizer:     ensemble,
		Dictionary:     a.dictionary,
		Matcher:        matcher.New(cfg.Tuning.Matcher),
		Repository:     saver,
		ScanTimeout:    cfg.ScanTimeout,
		MaxImageBytes:  cfg.MaxUploadBytes,
		MaxImagePixels: cfg.MaxImagePixels,
		Logger:         logger.Named("processor"),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize scan processor: %w", err)
	}

	return a, nil
}

// dictionarySource picks the local bundle when configured, otherwise the
// published one, optionally behind the Redis cache
func (a *app) dictionarySource() (dictionary.Source, error) {
	if a.cfg.DictionaryFile != "" {
		return dictionary.FileSource{Path: a.cfg.DictionaryFile}, nil
	}

	var source dictionary.Source = dictionary.NewHTTPSource(a.cfg.DictionaryURL, a.logger.Named("dictionary"))
	if a.cfg.DictionaryCacheTTL <= 0 {
		return source, nil
	}

	opt, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	a.redis = redis.NewClient(opt)
	return dictionary.NewRedisCachedSource(a.redis, dictionaryCacheKey, a.cfg.DictionaryCacheTTL, source, a.logger.Named("dictionary")), nil
}

// warmDictionary loads the vocabulary up front so the first scan does not
// pay for the download
func (a *app) warmDictionary(ctx context.Context) {
	a.dictionary.Load(ctx)
	if a.dictionary.Ready() {
		a.logger.Info("Dictionary loaded", "entries", a.dictionary.Size())
		return
	}
	a.logger.Warn("Dictionary unavailable, scans will report no drugs until it loads",
		"error", a.dictionary.LastError(),
	)
}

func (a *app) Close() {
	if a.repository != nil {
		if err := a.repository.Close(); err != nil {
			a.logger.Warn("Error closing repository", "error", err)
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
}
