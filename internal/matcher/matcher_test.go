package matcher

import (
	"reflect"
	"testing"

	"github.com/adverant/nexus/pharmascan/internal/dictionary"
)

func testIndex() *dictionary.Index {
	return dictionary.NewIndex([]dictionary.Entry{
		{Slug: "paracetamol-500", CanonicalName: "Paracetamol", AlternateNames: []string{"Acetaminophen"}, ClassificationCode: "N02BE01"},
		{Slug: "ibuprofen", CanonicalName: "Ibuprofen", AlternateNames: []string{"Brufen"}, ClassificationCode: "M01AE01"},
		{Slug: "analgesics", CanonicalName: "Analgesics", ClassificationCode: "N"},
		{Slug: "vitamins", CanonicalName: "Vitamins"},
		{Slug: "amoxicillin-clavulanate", CanonicalName: "Amoxicillin Clavulanate", ClassificationCode: "J01CR02"},
	}, dictionary.DefaultIndexOptions())
}

func TestDetect(t *testing.T) {
	m := New(DefaultOptions())
	ix := testIndex()

	tests := []struct {
		name      string
		text      string
		wantSlugs []string
	}{
		{
			name:      "paracetamol label",
			text:      "paracetamol 500 mg tablet ip batch 123 exp 12 24",
			wantSlugs: []string{"paracetamol-500"},
		},
		{
			name:      "category entries never match",
			text:      "analgesics for pain",
			wantSlugs: []string{},
		},
		{
			name:      "entries without a code never match",
			text:      "vitamins",
			wantSlugs: []string{},
		},
		{
			name:      "stop words only",
			text:      "tablet capsule dosage warning store cool dry place",
			wantSlugs: []string{},
		},
		{
			name:      "same substance under two names",
			text:      "paracetamol acetaminophen paracetamol",
			wantSlugs: []string{"paracetamol-500"},
		},
		{
			name:      "multi-word substance from a bigram",
			text:      "amoxicillin clavulanate 625 mg",
			wantSlugs: []string{"amoxicillin-clavulanate"},
		},
		{
			name:      "exact match ranks above typo",
			text:      "paracetamal ibuprofen",
			wantSlugs: []string{"ibuprofen", "paracetamol-500"},
		},
		{
			name:      "empty text",
			text:      "",
			wantSlugs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Detect(tt.text, ix)

			slugs := make([]string, 0, len(got))
			for _, d := range got {
				slugs = append(slugs, d.Slug)
			}
			if !reflect.DeepEqual(slugs, tt.wantSlugs) {
				t.Fatalf("Detect(%q) slugs = %v, want %v", tt.text, slugs, tt.wantSlugs)
			}

			for i, d := range got {
				if d.Confidence < 0.85 || d.Confidence > 1 {
					t.Errorf("%s confidence %v outside [0.85, 1]", d.Slug, d.Confidence)
				}
				if len(d.ATC) < 5 {
					t.Errorf("%s returned with category code %q", d.Slug, d.ATC)
				}
				if i > 0 && d.Confidence > got[i-1].Confidence {
					t.Errorf("results not ordered by confidence at %d", i)
				}
			}
		})
	}
}

func TestDetectParacetamolFields(t *testing.T) {
	got := New(DefaultOptions()).Detect("paracetamol 500 mg tablet ip batch 123 exp 12 24", testIndex())
	if len(got) != 1 {
		t.Fatalf("got %d matches, want 1", len(got))
	}
	d := got[0]
	if d.Slug != "paracetamol-500" || d.Name != "Paracetamol" || d.ATC != "N02BE01" {
		t.Errorf("match = %+v", d)
	}
	if d.Confidence != 1 {
		t.Errorf("exact match confidence = %v, want 1", d.Confidence)
	}
	if d.MatchedText != "paracetamol" {
		t.Errorf("MatchedText = %q", d.MatchedText)
	}
}

func TestDetectTypoConfidence(t *testing.T) {
	got := New(DefaultOptions()).Detect("paracetamal", testIndex())
	if len(got) != 1 {
		t.Fatalf("got %d matches, want 1", len(got))
	}
	// one edit over eleven characters
	if got[0].Confidence != 0.909 {
		t.Errorf("confidence = %v, want 0.909", got[0].Confidence)
	}
}

func TestDetectWithoutDictionary(t *testing.T) {
	m := New(DefaultOptions())

	var nilIndex *dictionary.Index
	for name, ix := range map[string]Searcher{
		"nil interface": nil,
		"nil index":     nilIndex,
		"empty index":   dictionary.NewIndex(nil, dictionary.DefaultIndexOptions()),
	} {
		t.Run(name, func(t *testing.T) {
			got := m.Detect("paracetamol", ix)
			if got == nil || len(got) != 0 {
				t.Errorf("Detect() = %#v, want empty non-nil slice", got)
			}
		})
	}
}

func TestDetectExtraStopWords(t *testing.T) {
	opts := DefaultOptions()
	opts.ExtraStopWords = []string{"Ibuprofen"}

	if got := New(opts).Detect("ibuprofen", testIndex()); len(got) != 0 {
		t.Errorf("extra stop word still matched: %+v", got)
	}
}

func TestMatchCandidatesAgreesWithDetect(t *testing.T) {
	m := New(DefaultOptions())
	ix := testIndex()
	text := "amoxicillin clavulanate 625 mg with paracetamol"

	want := m.Detect(text, ix)
	got := m.MatchCandidates(m.Candidates(text), ix)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MatchCandidates() = %+v, want %+v", got, want)
	}
	if len(got) != 2 {
		t.Errorf("matched %d drugs, want 2", len(got))
	}
}

func TestCandidates(t *testing.T) {
	m := New(DefaultOptions())

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "n-grams anchored on a surviving token",
			text: "paracetamol 500 mg",
			want: []string{"paracetamol", "paracetamol 500", "paracetamol 500 mg"},
		},
		{
			name: "stop word inside a multi-word name",
			text: "sodium with chloride",
			want: []string{"sodium", "chloride", "sodium with", "with chloride", "sodium with chloride"},
		},
		{
			name: "numbers and short tokens alone produce nothing",
			text: "12345 mg ip 10",
			want: nil,
		},
		{
			name: "repeated tokens are looked up once",
			text: "ibuprofen ibuprofen",
			want: []string{"ibuprofen", "ibuprofen ibuprofen"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Candidates(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Candidates(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Fatalf("default options invalid: %v", err)
	}

	bad := DefaultOptions()
	bad.MinConfidence = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("expected error for min_confidence > 1")
	}

	bad = DefaultOptions()
	bad.MaxNgram = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for max_ngram 0")
	}
}
