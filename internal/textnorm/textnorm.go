// Package textnorm turns raw OCR output into the canonical token stream used
// for dictionary matching. Every function here is pure and total.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// confusions maps glyphs Tesseract commonly emits for label text onto the
// characters that were printed.
var confusions = strings.NewReplacer(
	"|", "I",
	"¦", "I",
	" ", " ",
	"‘", "'",
	"’", "'",
	"“", "\"",
	"”", "\"",
	"–", "-",
	"—", "-",
	"ﬁ", "fi",
	"ﬂ", "fl",
	"µ", "mc",
	"μ", "mc",
)

var (
	nonAlnum      = regexp.MustCompile(`[^a-z0-9\s]+`)
	digitLetter   = regexp.MustCompile(`([0-9])([a-z])`)
	letterDigit   = regexp.MustCompile(`([a-z])([0-9])`)
	dosageFormSet = toSet(DosageForms)
)

// DosageForms are packaging tokens that name the form of the product rather
// than its substance. Normalize drops them.
var DosageForms = []string{
	"tablet", "tablets", "tab", "tabs",
	"capsule", "capsules", "cap", "caps",
	"syrup", "suspension", "injection", "injectable",
	"cream", "gel", "ointment", "lotion", "drops",
	"solution", "powder", "patch", "spray", "sachet",
	"strip", "strips", "softgel", "softgels",
}

// Clean fixes OCR character confusions, collapses line breaks and repeated
// whitespace, and trims the result.
func Clean(raw string) string {
	s := confusions.Replace(raw)
	return strings.Join(strings.Fields(s), " ")
}

// Canonical folds s to lowercase ASCII letters, digits and single spaces,
// splitting digit/letter boundaries ("500mg" becomes "500 mg"). Unlike
// Normalize it keeps dosage-form tokens, which is what dictionary keys need.
func Canonical(s string) string {
	s = foldAccents(s)
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, " ")
	// Applied twice so alternating runs like "a1b2" split fully.
	for i := 0; i < 2; i++ {
		s = digitLetter.ReplaceAllString(s, "$1 $2")
		s = letterDigit.ReplaceAllString(s, "$1 $2")
	}
	return strings.Join(strings.Fields(s), " ")
}

// Normalize produces the matching form of cleaned text: Canonical followed
// by removal of dosage-form tokens. Normalize(Normalize(x)) == Normalize(x).
func Normalize(clean string) string {
	tokens := strings.Fields(Canonical(clean))
	kept := tokens[:0]
	for _, t := range tokens {
		if _, drop := dosageFormSet[t]; drop {
			continue
		}
		kept = append(kept, t)
	}
	return strings.Join(kept, " ")
}

// Tokens splits normalized text on whitespace.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

// foldAccents decomposes s and drops combining marks so "Paracétamol"
// matches "paracetamol".
func foldAccents(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
