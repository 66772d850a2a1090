// Package matcher extracts drug mentions from normalized label text.
//
// Matching is precision-first: packaging text is mostly boilerplate, so
// candidates are filtered hard before they reach the dictionary and only
// near-exact hits on specific substances survive.
package matcher

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/adverant/nexus/pharmascan/internal/dictionary"
	"github.com/adverant/nexus/pharmascan/internal/models"
	"github.com/adverant/nexus/pharmascan/internal/textnorm"
)

// Options are the matcher's tunable thresholds
type Options struct {
	MinTokenLength          int      `yaml:"min_token_length"`
	MaxNgram                int      `yaml:"max_ngram"`
	ScoreThreshold          float64  `yaml:"score_threshold"`
	MinConfidence           float64  `yaml:"min_confidence"`
	MinClassificationLength int      `yaml:"min_classification_length"`
	ExtraStopWords          []string `yaml:"extra_stop_words"`
}

// DefaultOptions returns the production thresholds
func DefaultOptions() Options {
	return Options{
		MinTokenLength:          5,
		MaxNgram:                3,
		ScoreThreshold:          0.1,
		MinConfidence:           0.85,
		MinClassificationLength: 5,
	}
}

// Validate checks option ranges
func (o Options) Validate() error {
	if o.MinTokenLength < 1 {
		return fmt.Errorf("matcher min_token_length must be positive, got %d", o.MinTokenLength)
	}
	if o.MaxNgram < 1 || o.MaxNgram > 5 {
		return fmt.Errorf("matcher max_ngram must be between 1 and 5, got %d", o.MaxNgram)
	}
	if o.ScoreThreshold < 0 || o.ScoreThreshold > 1 {
		return fmt.Errorf("matcher score_threshold must be in [0,1], got %v", o.ScoreThreshold)
	}
	if o.MinConfidence < 0 || o.MinConfidence > 1 {
		return fmt.Errorf("matcher min_confidence must be in [0,1], got %v", o.MinConfidence)
	}
	if o.MinClassificationLength < 0 {
		return fmt.Errorf("matcher min_classification_length must not be negative")
	}
	return nil
}

// Searcher is the part of the dictionary index the matcher needs
type Searcher interface {
	Search(phrase string, opts dictionary.SearchOptions) []dictionary.Hit
	Len() int
}

// Matcher detects drugs in normalized text. It holds no per-scan state and
// is safe for concurrent use.
type Matcher struct {
	opts Options
	stop map[string]struct{}
}

// New creates a matcher with the default stop words plus opts.ExtraStopWords
func New(opts Options) *Matcher {
	stop := make(map[string]struct{}, len(DefaultStopWords)+len(opts.ExtraStopWords))
	for _, w := range DefaultStopWords {
		stop[w] = struct{}{}
	}
	for _, w := range opts.ExtraStopWords {
		stop[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return &Matcher{opts: opts, stop: stop}
}

// Candidates returns the phrases that will be looked up for normalized text:
// every surviving token, then adjacent n-grams of the unfiltered token
// sequence that contain at least one surviving token. Each phrase appears once.
func (m *Matcher) Candidates(normalized string) []string {
	tokens := textnorm.Tokens(normalized)
	keep := make([]bool, len(tokens))
	for i, t := range tokens {
		keep[i] = m.keepToken(t)
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for i, t := range tokens {
		if keep[i] {
			add(t)
		}
	}

	for n := 2; n <= m.opts.MaxNgram; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			anchored := false
			for j := i; j < i+n; j++ {
				if keep[j] {
					anchored = true
					break
				}
			}
			if anchored {
				add(strings.Join(tokens[i:i+n], " "))
			}
		}
	}

	return out
}

// Detect returns the drugs found in normalized text, best first. An empty or
// nil index yields an empty result.
func (m *Matcher) Detect(normalized string, index Searcher) []models.DrugMatch {
	return m.MatchCandidates(m.Candidates(normalized), index)
}

// MatchCandidates looks up phrases produced by Candidates. Callers that also
// need the phrases use it to avoid tokenizing twice.
func (m *Matcher) MatchCandidates(phrases []string, index Searcher) []models.DrugMatch {
	matches := make([]models.DrugMatch, 0)
	if index == nil || index.Len() == 0 {
		return matches
	}

	best := make(map[string]*models.DrugMatch)
	for _, phrase := range phrases {
		hits := index.Search(phrase, dictionary.SearchOptions{
			Limit:     1,
			Threshold: m.opts.ScoreThreshold,
		})
		if len(hits) == 0 {
			continue
		}
		hit := hits[0]

		code := hit.Entry.ClassificationCode
		if len(code) < m.opts.MinClassificationLength || code == "" {
			continue
		}

		conf := confidence(hit.Score)
		if conf < m.opts.MinConfidence {
			continue
		}

		candidate := models.DrugMatch{
			Slug:        hit.Entry.Slug,
			Name:        hit.Entry.CanonicalName,
			Confidence:  conf,
			ATC:         code,
			MatchedText: phrase,
		}

		existing, ok := best[candidate.Slug]
		if !ok {
			best[candidate.Slug] = &candidate
			continue
		}
		if candidate.Confidence > existing.Confidence ||
			(candidate.Confidence == existing.Confidence && len(candidate.ATC) > len(existing.ATC)) {
			*existing = candidate
		}
	}

	for _, dm := range best {
		matches = append(matches, *dm)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].Slug < matches[j].Slug
	})
	return matches
}

func (m *Matcher) keepToken(t string) bool {
	if len(t) < m.opts.MinTokenLength {
		return false
	}
	if _, stop := m.stop[t]; stop {
		return false
	}
	return strings.ContainsFunc(t, func(r rune) bool { return r >= 'a' && r <= 'z' })
}

// confidence maps a distance score onto [0,1], rounded to three places
func confidence(score float64) float64 {
	c := math.Round((1-score)*1000) / 1000
	return math.Max(0, math.Min(1, c))
}
