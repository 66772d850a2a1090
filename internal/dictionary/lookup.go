package dictionary

import (
	"context"
	"math"
	"strings"
)

// Lookup defaults
const (
	DefaultSearchLimit   = 20
	DefaultCategoryLimit = 50
	LookupThreshold      = 0.3
)

// ATCCategory is an anatomical main group of the ATC classification
type ATCCategory struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// ATCMainGroups are the level-1 anatomical groups
var ATCMainGroups = []ATCCategory{
	{Code: "A", Name: "Alimentary tract and metabolism", Level: 1},
	{Code: "B", Name: "Blood and blood forming organs", Level: 1},
	{Code: "C", Name: "Cardiovascular system", Level: 1},
	{Code: "D", Name: "Dermatologicals", Level: 1},
	{Code: "G", Name: "Genito-urinary system and sex hormones", Level: 1},
	{Code: "H", Name: "Systemic hormonal preparations", Level: 1},
	{Code: "J", Name: "Antiinfectives for systemic use", Level: 1},
	{Code: "L", Name: "Antineoplastic and immunomodulating agents", Level: 1},
	{Code: "M", Name: "Musculo-skeletal system", Level: 1},
	{Code: "N", Name: "Nervous system", Level: 1},
	{Code: "P", Name: "Antiparasitic products", Level: 1},
	{Code: "R", Name: "Respiratory system", Level: 1},
	{Code: "S", Name: "Sensory organs", Level: 1},
	{Code: "V", Name: "Various", Level: 1},
}

// CategoryName returns the main-group name for an ATC code, or "" if unknown
func CategoryName(code string) string {
	if code == "" {
		return ""
	}
	for _, g := range ATCMainGroups {
		if strings.HasPrefix(code, g.Code) {
			return g.Name
		}
	}
	return ""
}

// Medicine is the lookup view of an entry
type Medicine struct {
	Slug           string   `json:"slug"`
	Name           string   `json:"name"`
	AlternateNames []string `json:"alternateNames"`
	ATC            string   `json:"atc"`
	ATCCategory    string   `json:"atcCategory,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty"`
}

func toMedicine(e Entry) Medicine {
	alternates := make([]string, 0, len(e.AlternateNames))
	for _, n := range e.AlternateNames {
		if n != e.CanonicalName {
			alternates = append(alternates, n)
		}
	}
	return Medicine{
		Slug:           e.Slug,
		Name:           e.CanonicalName,
		AlternateNames: alternates,
		ATC:            e.ClassificationCode,
		ATCCategory:    CategoryName(e.ClassificationCode),
	}
}

// Lookup is the lenient interactive search: prefix matches count and the
// score threshold is looser than scan matching.
func (s *Store) Lookup(ctx context.Context, query string, limit int) []Medicine {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	hits := s.Load(ctx).Search(query, SearchOptions{
		Limit:        limit,
		Threshold:    LookupThreshold,
		AllowPrefix:  true,
		MinLength:    2,
		IncludeSlugs: true,
	})

	out := make([]Medicine, 0, len(hits))
	for _, h := range hits {
		m := toMedicine(h.Entry)
		conf := math.Round((1-h.Score)*1000) / 1000
		m.Confidence = &conf
		out = append(out, m)
	}
	return out
}

// BySlug returns the entry with the given slug
func (s *Store) BySlug(ctx context.Context, slug string) (*Medicine, bool) {
	e, ok := s.Load(ctx).Get(slug)
	if !ok {
		return nil, false
	}
	m := toMedicine(e)
	return &m, true
}

// ByCategory lists entries whose code starts with prefix, in load order
func (s *Store) ByCategory(ctx context.Context, prefix string, limit int) []Medicine {
	if limit <= 0 {
		limit = DefaultCategoryLimit
	}
	prefix = strings.ToUpper(strings.TrimSpace(prefix))

	out := make([]Medicine, 0)
	if prefix == "" {
		return out
	}
	for _, e := range s.Load(ctx).Entries() {
		if e.ClassificationCode == "" || !strings.HasPrefix(e.ClassificationCode, prefix) {
			continue
		}
		out = append(out, toMedicine(e))
		if len(out) == limit {
			break
		}
	}
	return out
}
