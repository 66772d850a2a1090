// Package tesseract adapts gosseract to the ocr.Engine interface. It is the
// only package that links libtesseract.
package tesseract

import (
	"fmt"
	"strings"

	"github.com/adverant/nexus/pharmascan/internal/ocr"
	"github.com/otiai10/gosseract/v2"
)

// Engine opens gosseract clients
type Engine struct {
	tessdataPrefix string
	clientFactory  func() *gosseract.Client
}

// NewEngine creates an engine. tessdataPrefix may be empty to use the
// library default.
func NewEngine(tessdataPrefix string) *Engine {
	return &Engine{
		tessdataPrefix: tessdataPrefix,
		clientFactory:  gosseract.NewClient,
	}
}

// Version reports the linked Tesseract version
func Version() string {
	return gosseract.Version()
}

// NewSession opens a configured client. The caller must Close it.
func (e *Engine) NewSession(opts ocr.SessionOptions) (ocr.Session, error) {
	c := e.clientFactory()

	if e.tessdataPrefix != "" {
		if err := c.SetTessdataPrefix(e.tessdataPrefix); err != nil {
			c.Close()
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if len(opts.Languages) > 0 {
		if err := c.SetLanguage(opts.Languages...); err != nil {
			c.Close()
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetPageSegMode(gosseract.PageSegMode(opts.PageSegMode)); err != nil {
		c.Close()
		return nil, fmt.Errorf("set page segmentation mode: %w", err)
	}
	if opts.Whitelist != "" {
		if err := c.SetWhitelist(opts.Whitelist); err != nil {
			c.Close()
			return nil, fmt.Errorf("set whitelist: %w", err)
		}
	}

	return &session{client: c}, nil
}

type session struct {
	client *gosseract.Client
}

func (s *session) Recognize(image []byte) (ocr.Recognition, error) {
	if err := s.client.SetImageFromBytes(image); err != nil {
		return ocr.Recognition{}, fmt.Errorf("set image: %w", err)
	}

	text, err := s.client.Text()
	if err != nil {
		return ocr.Recognition{}, fmt.Errorf("recognize text: %w", err)
	}

	return ocr.Recognition{
		Text:       strings.TrimSpace(text),
		Confidence: meanWordConfidence(s.client),
	}, nil
}

func (s *session) Close() error {
	return s.client.Close()
}

// meanWordConfidence averages Tesseract's per-word confidence (0..100)
func meanWordConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes))
}
