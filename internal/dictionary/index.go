package dictionary

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/adverant/nexus/pharmascan/internal/textnorm"
	"github.com/agnivade/levenshtein"
)

// IndexOptions controls how names are weighted when scoring
type IndexOptions struct {
	CanonicalWeight float64 `yaml:"canonical_weight"`
	AlternateWeight float64 `yaml:"alternate_weight"`
	// SlugWeight applies to slug keys, which only lookup searches
	SlugWeight      float64 `yaml:"slug_weight"`
	MinMatchLength  int     `yaml:"min_match_length"`
}

// DefaultIndexOptions weights canonical names twice as heavily as alternates
// and four times as heavily as slugs
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{
		CanonicalWeight: 2,
		AlternateWeight: 1,
		SlugWeight:      0.5,
		MinMatchLength:  4,
	}
}

// SearchOptions bounds a single query
type SearchOptions struct {
	// Limit caps the number of hits; 0 means no limit.
	Limit int
	// Threshold is the worst score (0 = exact, 1 = unrelated) still returned.
	Threshold float64
	// AllowPrefix scores names that start with the query as close matches.
	// Used by interactive lookup, never by scan matching.
	AllowPrefix bool
	// MinLength overrides the index's minimum query length when positive.
	MinLength int
	// IncludeSlugs also matches entry slugs. Scan matching leaves it off.
	IncludeSlugs bool
}

// Hit is one ranked search result
type Hit struct {
	Entry      Entry
	Score      float64
	MatchedKey string
	Canonical  bool
}

type indexKey struct {
	text      string
	runes     int
	entry     int
	canonical bool
	slug      bool
}

// Index is an immutable fuzzy-search structure over the vocabulary
type Index struct {
	entries []Entry
	keys    []indexKey
	bySlug  map[string]int
	opts    IndexOptions
}

// NewIndex builds an index over entries. Duplicate slugs keep the first entry.
func NewIndex(entries []Entry, opts IndexOptions) *Index {
	if opts.CanonicalWeight <= 0 {
		opts.CanonicalWeight = 1
	}
	if opts.AlternateWeight <= 0 {
		opts.AlternateWeight = opts.CanonicalWeight
	}
	if opts.SlugWeight <= 0 {
		opts.SlugWeight = opts.AlternateWeight / 2
	}

	ix := &Index{
		entries: make([]Entry, 0, len(entries)),
		bySlug:  make(map[string]int, len(entries)),
		opts:    opts,
	}

	for _, e := range entries {
		if e.Slug == "" {
			continue
		}
		if _, dup := ix.bySlug[e.Slug]; dup {
			continue
		}
		pos := len(ix.entries)
		ix.entries = append(ix.entries, e)
		ix.bySlug[e.Slug] = pos

		seen := make(map[string]struct{}, len(e.AlternateNames)+1)
		canonical := textnorm.Canonical(e.CanonicalName)
		if canonical != "" {
			seen[canonical] = struct{}{}
			ix.keys = append(ix.keys, indexKey{text: canonical, runes: utf8.RuneCountInString(canonical), entry: pos, canonical: true})
		}
		for _, name := range e.AlternateNames {
			k := textnorm.Canonical(name)
			if k == "" {
				continue
			}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			ix.keys = append(ix.keys, indexKey{text: k, runes: utf8.RuneCountInString(k), entry: pos})
		}
		if k := textnorm.Canonical(e.Slug); k != "" {
			if _, ok := seen[k]; !ok {
				ix.keys = append(ix.keys, indexKey{text: k, runes: utf8.RuneCountInString(k), entry: pos, slug: true})
			}
		}
	}

	return ix
}

// Len returns the number of entries in the index
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.entries)
}

// Get returns the entry with the given slug
func (ix *Index) Get(slug string) (Entry, bool) {
	if ix == nil {
		return Entry{}, false
	}
	pos, ok := ix.bySlug[slug]
	if !ok {
		return Entry{}, false
	}
	return ix.entries[pos], true
}

// Entries returns the indexed entries in load order. Callers must not modify it.
func (ix *Index) Entries() []Entry {
	if ix == nil {
		return nil
	}
	return ix.entries
}

// Search returns entries whose names approximately match phrase, best first.
// Score is the normalized edit distance scaled by the key weight, so an
// imperfect match on an alternate name ranks below the same match on a
// canonical name. Each entry appears at most once.
func (ix *Index) Search(phrase string, opts SearchOptions) []Hit {
	if ix == nil || len(ix.keys) == 0 {
		return nil
	}

	q := textnorm.Canonical(phrase)
	qn := utf8.RuneCountInString(q)
	minLen := ix.opts.MinMatchLength
	if opts.MinLength > 0 {
		minLen = opts.MinLength
	}
	if qn == 0 || qn < minLen {
		return nil
	}

	best := make(map[int]Hit)
	for _, k := range ix.keys {
		if k.slug && !opts.IncludeSlugs {
			continue
		}
		factor := ix.opts.CanonicalWeight / ix.opts.AlternateWeight
		switch {
		case k.canonical:
			factor = 1
		case k.slug:
			factor = ix.opts.CanonicalWeight / ix.opts.SlugWeight
		}

		score, ok := ix.score(q, qn, k, factor, opts)
		if !ok {
			continue
		}

		prev, seen := best[k.entry]
		if !seen || score < prev.Score || (score == prev.Score && k.canonical && !prev.Canonical) {
			best[k.entry] = Hit{
				Entry:      ix.entries[k.entry],
				Score:      score,
				MatchedKey: k.text,
				Canonical:  k.canonical,
			}
		}
	}

	hits := make([]Hit, 0, len(best))
	for _, h := range best {
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score < hits[j].Score
		}
		if hits[i].Canonical != hits[j].Canonical {
			return hits[i].Canonical
		}
		return hits[i].Entry.Slug < hits[j].Entry.Slug
	})

	if opts.Limit > 0 && len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits
}

func (ix *Index) score(q string, qn int, k indexKey, factor float64, opts SearchOptions) (float64, bool) {
	maxLen := qn
	if k.runes > maxLen {
		maxLen = k.runes
	}

	prefixScore := 2.0
	if opts.AllowPrefix && k.runes > qn && hasWordPrefix(k.text, q) {
		prefixScore = 0.5 * (1 - float64(qn)/float64(k.runes)) * factor
	}

	// Edit distance is at least the length difference, so most keys are
	// rejected without running the full computation.
	diff := qn - k.runes
	if diff < 0 {
		diff = -diff
	}
	if float64(diff)/float64(maxLen)*factor > opts.Threshold {
		if prefixScore <= opts.Threshold {
			return prefixScore, true
		}
		return 0, false
	}

	d := levenshtein.ComputeDistance(q, k.text)
	score := float64(d) / float64(maxLen) * factor
	if prefixScore < score {
		score = prefixScore
	}
	if score > 1 {
		score = 1
	}
	if score > opts.Threshold {
		return 0, false
	}
	return score, true
}

func hasWordPrefix(key, q string) bool {
	if strings.HasPrefix(key, q) {
		return true
	}
	for _, w := range strings.Fields(key) {
		if strings.HasPrefix(w, q) {
			return true
		}
	}
	return false
}
