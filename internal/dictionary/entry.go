// Package dictionary holds the controlled vocabulary of known substances and
// the fuzzy index the matcher queries. The vocabulary is loaded once per
// process through a Store and is read-only afterwards.
package dictionary

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Entry is one known substance in the vocabulary bundle
type Entry struct {
	Slug               string   `json:"slug"`
	CanonicalName      string   `json:"canonical"`
	AlternateNames     []string `json:"names"`
	ClassificationCode string   `json:"atc"`
}

// DecodeBundle reads the vocabulary bundle: a JSON array of entries.
// Entries without a slug or canonical name are dropped.
func DecodeBundle(r io.Reader) ([]Entry, error) {
	var raw []Entry
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode dictionary bundle: %w", err)
	}

	entries := raw[:0]
	for _, e := range raw {
		e.Slug = strings.TrimSpace(e.Slug)
		e.CanonicalName = strings.TrimSpace(e.CanonicalName)
		e.ClassificationCode = strings.TrimSpace(e.ClassificationCode)
		if e.Slug == "" || e.CanonicalName == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
