package ocr

import (
	"math"
	"strings"

	"github.com/adverant/nexus/pharmascan/internal/textnorm"
)

// pharmaTerms are words whose presence suggests the engine read real label
// text rather than noise.
var pharmaTerms = map[string]struct{}{}

func init() {
	for _, t := range []string{
		// dosage forms
		"tablet", "tablets", "capsule", "capsules", "syrup", "suspension",
		"injection", "cream", "ointment", "drops", "gel", "lotion",
		// units
		"mg", "mcg", "ml", "gm", "iu",
		// regulatory and label boilerplate
		"ip", "bp", "usp", "rx", "mfg", "exp", "batch", "lot", "mrp",
		"schedule", "composition", "contains", "each", "dosage",
		"store", "pharma", "pharmaceuticals", "laboratories",
	} {
		pharmaTerms[t] = struct{}{}
	}
}

// countTerms returns how many distinct pharmaceutical terms occur in text
func countTerms(text string) int {
	seen := make(map[string]struct{})
	for _, tok := range strings.Fields(textnorm.Canonical(text)) {
		if _, ok := pharmaTerms[tok]; ok {
			seen[tok] = struct{}{}
		}
	}
	return len(seen)
}

// score adds the bounded term bonus to the engine confidence and clamps the
// result to [0,100].
func (o Options) score(rawConfidence float64, terms int) float64 {
	bonus := float64(terms) * o.TermBonus
	if bonus > o.MaxTermBonus {
		bonus = o.MaxTermBonus
	}
	return clamp(clamp(rawConfidence, 0, 100)+bonus, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
