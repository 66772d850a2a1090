package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/adverant/nexus/pharmascan/internal/logging"
)

type foldState int

const (
	stateNoResult foldState = iota
	stateHasResult
	stateAccepted
)

// Ensemble runs the configured strategies through one engine session per
// scan. It holds no per-scan state and is safe for concurrent use as long
// as the engine hands out independent sessions.
type Ensemble struct {
	engine Engine
	opts   Options
	logger *logging.Logger

	// apply turns the prepared image into engine input for one strategy
	apply func(StrategyKind, *image.Gray) ([]byte, error)
}

// NewEnsemble validates opts and returns an ensemble over engine
func NewEnsemble(engine Engine, opts Options, logger *logging.Logger) (*Ensemble, error) {
	if engine == nil {
		return nil, fmt.Errorf("ocr engine is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Ensemble{
		engine: engine,
		opts:   opts,
		logger: logger,
		apply:  Apply,
	}, nil
}

// Recognize returns the best text found in img. It never fails: when no
// strategy yields text the result is empty with confidence 0. If ctx ends
// between strategies, the best result so far is returned with TimedOut set.
func (e *Ensemble) Recognize(ctx context.Context, img RawImage) Result {
	start := time.Now()
	res := Result{}

	decoded, err := Decode(img.Data)
	if err != nil {
		e.logger.Warn("Image could not be decoded", "filename", img.Filename, "error", err)
		res.Failures = append(res.Failures, Failure{Strategy: "decode", Err: err})
		res.Duration = time.Since(start)
		return res
	}
	base := Prepare(decoded, e.opts.MinDimension, e.opts.MaxDimension)

	session, err := e.engine.NewSession(SessionOptions{
		Languages:   e.opts.Languages,
		PageSegMode: e.opts.PageSegMode,
		Whitelist:   e.opts.Whitelist,
	})
	if err != nil {
		e.logger.Error("Failed to open OCR session", "error", err)
		res.Failures = append(res.Failures, Failure{Strategy: "session", Err: err})
		res.Duration = time.Since(start)
		return res
	}
	defer session.Close()

	state := stateNoResult
	var best Candidate

	for _, kind := range e.opts.Strategies {
		if state == stateAccepted {
			break
		}
		if ctx.Err() != nil {
			res.TimedOut = true
			e.logger.Warn("Scan deadline reached, returning best result so far",
				"attempts", res.Attempts,
				"best_strategy", best.Strategy,
			)
			break
		}

		res.Attempts++
		cand, err := e.attempt(session, kind, base)
		if err != nil {
			res.Failures = append(res.Failures, Failure{Strategy: kind, Err: err})
			e.logger.Warn("OCR strategy failed", "strategy", kind, "error", err)
			continue
		}

		e.logger.Debug("OCR strategy complete",
			"strategy", kind,
			"raw_confidence", cand.RawConfidence,
			"confidence", cand.Confidence,
			"terms", cand.TermMatches,
		)

		if state == stateNoResult || cand.Confidence > best.Confidence {
			best = cand
			state = stateHasResult
		}
		if best.Confidence > e.opts.HighConfidenceCutoff {
			state = stateAccepted
		}
	}

	if state != stateNoResult {
		res.Text = best.Text
		res.Confidence = best.Confidence
		res.RawConfidence = best.RawConfidence
		res.Strategy = best.Strategy
		res.Accepted = state == stateAccepted
	}
	res.Duration = time.Since(start)

	e.logger.Info("OCR ensemble complete",
		"strategy", res.Strategy,
		"confidence", res.Confidence,
		"attempts", res.Attempts,
		"failures", len(res.Failures),
		"accepted", res.Accepted,
		"duration", res.Duration,
	)
	return res
}

// attempt runs a single strategy. Panics from the engine binding are
// converted to errors so one bad strategy cannot abort the scan.
func (e *Ensemble) attempt(session Session, kind StrategyKind, base *image.Gray) (cand Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", kind, r)
		}
	}()

	input, err := e.apply(kind, base)
	if err != nil {
		return Candidate{}, err
	}

	rec, err := session.Recognize(input)
	if err != nil {
		return Candidate{}, err
	}

	text := strings.TrimSpace(rec.Text)
	if text == "" {
		return Candidate{}, fmt.Errorf("no text recognized")
	}

	terms := countTerms(text)
	return Candidate{
		Text:          text,
		RawConfidence: clamp(rec.Confidence, 0, 100),
		Confidence:    e.opts.score(rec.Confidence, terms),
		Strategy:      kind,
		TermMatches:   terms,
	}, nil
}
