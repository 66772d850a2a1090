package matcher

// DefaultStopWords is packaging boilerplate that never names a substance
var DefaultStopWords = []string{
	// label text
	"tablet", "tablets", "capsule", "capsules", "syrup", "injection", "cream", "gel",
	"ointment", "drops", "solution", "suspension", "powder", "patch", "spray",

	// dosage and usage
	"dosage", "dose", "daily", "twice", "thrice", "times", "before", "after", "meals",
	"morning", "evening", "night", "hours", "days", "weeks", "months", "oral", "topical",

	// warnings and instructions
	"warning", "warnings", "caution", "keep", "away", "children", "store", "cool", "dry",
	"place", "protect", "light", "moisture", "shake", "well", "use",
	"consult", "doctor", "physician", "pharmacist", "pregnant", "nursing", "allergic",
	"side", "effects", "discontinue", "occurs", "seek", "medical", "advice", "immediately",

	// manufacturing
	"manufactured", "marketed", "distributed", "india", "limited", "pvt", "ltd",
	"batch", "mfg", "exp", "date", "price", "mrp", "inclusive", "taxes", "pack",

	// common non-drug words
	"each", "film", "coated", "contains", "active", "inactive", "ingredients",
	"excipients", "listed", "below", "schedule", "prescription", "only", "medicine",
	"drug", "pharmaceutical", "formulation", "composition", "strength", "storage",
	"this", "that", "with", "from", "have", "been", "will", "would", "could", "should",
	"take", "taken", "taking", "used", "using", "treatment", "treat", "therapy",

	// units
	"mg", "mcg", "ml", "gm", "kg", "iu", "unit", "units",
}
