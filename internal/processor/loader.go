package processor

import (
	"bytes"
	stderrors "errors"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/adverant/nexus/pharmascan/internal/errors"
	"github.com/adverant/nexus/pharmascan/internal/logging"
	"github.com/adverant/nexus/pharmascan/internal/ocr"
)

// loadImage returns the request's image bytes, downloading them if only a
// URL was given.
func (p *ScanProcessor) loadImage(ctx context.Context, req *ScanRequest, log *logging.Logger) ([]byte, error) {
	if len(req.Image) > 0 {
		log.Debug("Using image buffer", "bytes", len(req.Image))
		return req.Image, nil
	}

	if req.ImageURL != "" {
		log.Info("Downloading image", "url", req.ImageURL)
		data, err := p.downloader.Download(ctx, req.ImageURL)
		var tooLarge *sizeError
		switch {
		case stderrors.As(err, &tooLarge):
			invalid := errors.NewInvalidImageError(tooLarge.Error())
			invalid.Cause = err
			return nil, invalid
		case err != nil:
			return nil, errors.NewImageUnavailableError(req.ImageURL, err)
		}
		return data, nil
	}

	return nil, errors.NewInvalidImageError("no image provided")
}

// validateImage checks size, format and pixel count before any pixels are
// decoded
func (p *ScanProcessor) validateImage(data []byte) (ocr.ImageInfo, error) {
	if int64(len(data)) > p.config.MaxImageBytes {
		return ocr.ImageInfo{}, errors.NewInvalidImageError(
			fmt.Sprintf("image exceeds %d bytes", p.config.MaxImageBytes))
	}

	mime := detectImageType(data)
	if mime == "" {
		return ocr.ImageInfo{}, errors.NewInvalidImageError("unsupported image format")
	}

	info, err := ocr.Inspect(data)
	if err != nil {
		invalid := errors.NewInvalidImageError(fmt.Sprintf("corrupt %s image", mime))
		invalid.Cause = err
		return ocr.ImageInfo{}, invalid
	}
	if info.Width == 0 || info.Height == 0 {
		return ocr.ImageInfo{}, errors.NewInvalidImageError("image has no pixels")
	}
	if pixels := int64(info.Width) * int64(info.Height); pixels > p.config.MaxImagePixels {
		return ocr.ImageInfo{}, errors.NewInvalidImageError(
			fmt.Sprintf("image is %dx%d, over the %d pixel limit", info.Width, info.Height, p.config.MaxImagePixels))
	}
	return info, nil
}

// detectImageType detects the image MIME type from magic bytes
func detectImageType(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	// PNG: 0x89 'P' 'N' 'G' 0x0D 0x0A 0x1A 0x0A
	if len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}) {
		return "image/png"
	}

	// JPEG: 0xFF 0xD8 0xFF
	if bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}) {
		return "image/jpeg"
	}

	// GIF: 'G' 'I' 'F' '8' ('7' or '9') 'a'
	if bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")) {
		return "image/gif"
	}

	// WebP: 'R' 'I' 'F' 'F' .... 'W' 'E' 'B' 'P'
	if len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP" {
		return "image/webp"
	}

	// TIFF: 'I' 'I' 0x2A 0x00 (little-endian) or 'M' 'M' 0x00 0x2A (big-endian)
	if bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}) {
		return "image/tiff"
	}

	// BMP: 'B' 'M'
	if bytes.HasPrefix(data, []byte("BM")) {
		return "image/bmp"
	}

	return ""
}

// Downloader fetches images by URL with retry and a size cap
type Downloader struct {
	client         *http.Client
	maxBytes       int64
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *logging.Logger
}

// NewDownloader creates a downloader that refuses bodies over maxBytes
func NewDownloader(maxBytes int64, logger *logging.Logger) *Downloader {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Downloader{
		client:         &http.Client{Timeout: 60 * time.Second},
		maxBytes:       maxBytes,
		maxRetries:     3,
		initialBackoff: time.Second,
		maxBackoff:     8 * time.Second,
		logger:         logger,
	}
}

// Download fetches url, retrying transport errors and non-2xx responses
// with exponential backoff.
func (d *Downloader) Download(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		data, err := d.fetch(ctx, url)
		if err == nil {
			d.logger.Info("Download successful", "url", url, "attempt", attempt, "bytes", len(data))
			return data, nil
		}
		var tooLarge *sizeError
		if stderrors.As(err, &tooLarge) {
			return nil, err
		}
		lastErr = err
		d.logger.Warn("Download attempt failed", "url", url, "attempt", attempt, "error", err)

		if attempt < d.maxRetries {
			backoff := time.Duration(float64(d.initialBackoff) * math.Pow(2, float64(attempt-1)))
			if backoff > d.maxBackoff {
				backoff = d.maxBackoff
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			}
		}
	}

	return nil, fmt.Errorf("failed to download image after %d attempts: %w", d.maxRetries, lastErr)
}

type sizeError struct {
	limit int64
}

func (e *sizeError) Error() string {
	return fmt.Sprintf("image exceeds maximum size of %d bytes", e.limit)
}

func (d *Downloader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	if resp.ContentLength > d.maxBytes {
		return nil, &sizeError{limit: d.maxBytes}
	}

	// one extra byte distinguishes "exactly at the limit" from "over"
	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > d.maxBytes {
		return nil, &sizeError{limit: d.maxBytes}
	}
	return data, nil
}
