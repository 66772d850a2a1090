package models

import "time"

// DrugMatch is one recognized substance in a scan
type DrugMatch struct {
	Slug       string  `json:"slug"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	ATC        string  `json:"atc"`

	// MatchedText is the candidate phrase that produced the match
	MatchedText string `json:"-"`
}

// ScanResult is the record produced by one scan. It is immutable once
// assembled and stored as-is by the repository.
type ScanResult struct {
	ID            string      `json:"id"`
	ExtractedText string      `json:"extractedText"`
	Confidence    float64     `json:"confidence"`
	CreatedAt     time.Time   `json:"createdAt"`
	DetectedDrugs []DrugMatch `json:"detectedDrugs"`
	Raw           *ScanRaw    `json:"raw,omitempty"`
}

// ScanRaw keeps diagnostic detail about how a result was produced
type ScanRaw struct {
	OCR      *RawOCR                `json:"ocr,omitempty"`
	Image    *RawImage              `json:"image,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// RawOCR describes the winning OCR attempt
type RawOCR struct {
	Strategy      string   `json:"strategy,omitempty"`
	RawConfidence float64  `json:"rawConfidence"`
	Attempts      int      `json:"attempts"`
	Failures      []string `json:"failures,omitempty"`
	Accepted      bool     `json:"accepted"`
	TimedOut      bool     `json:"timedOut,omitempty"`
}

// RawImage describes the uploaded image
type RawImage struct {
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	SizeBytes int    `json:"sizeBytes"`
}
