package dictionary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/adverant/nexus/pharmascan/internal/logging"
	"github.com/redis/go-redis/v9"
)

// Source fetches the full vocabulary
type Source interface {
	Fetch(ctx context.Context) ([]Entry, error)
	Name() string
}

// HTTPSource downloads the vocabulary bundle over HTTP
type HTTPSource struct {
	url        string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *logging.Logger
}

// NewHTTPSource creates a source for the bundle at url
func NewHTTPSource(url string, logger *logging.Logger) *HTTPSource {
	if logger == nil {
		logger = logging.Discard()
	}
	return &HTTPSource{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
		backoff:    time.Second,
		logger:     logger,
	}
}

// Name identifies the source in logs
func (s *HTTPSource) Name() string { return s.url }

// Fetch downloads the bundle, retrying with exponential backoff
func (s *HTTPSource) Fetch(ctx context.Context) ([]Entry, error) {
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(s.backoff) * math.Pow(2, float64(attempt-1)))
			s.logger.Warn("Retrying dictionary download",
				"url", s.url,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, retryable, err := s.download(ctx)
		if err == nil {
			entries, err := DecodeBundle(bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			s.logger.Info("Dictionary downloaded", "url", s.url, "entries", len(entries), "bytes", len(body))
			return entries, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	return nil, fmt.Errorf("dictionary download failed after %d attempts: %w", s.maxRetries+1, lastErr)
}

func (s *HTTPSource) download(ctx context.Context) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create dictionary request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("dictionary request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read dictionary response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// 4xx other than 429 will not improve on retry
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retryable, fmt.Errorf("dictionary source returned status %d", resp.StatusCode)
	}

	return body, false, nil
}

// FileSource reads the vocabulary bundle from a local file
type FileSource struct {
	Path string
}

// Name identifies the source in logs
func (s FileSource) Name() string { return s.Path }

// Fetch reads and decodes the bundle file
func (s FileSource) Fetch(ctx context.Context) ([]Entry, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dictionary file: %w", err)
	}
	defer f.Close()
	return DecodeBundle(f)
}

// RedisCachedSource keeps a copy of the decoded vocabulary in Redis so
// restarts and sibling workers skip the remote download.
type RedisCachedSource struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	next   Source
	logger *logging.Logger
}

// NewRedisCachedSource wraps next with a Redis cache under key
func NewRedisCachedSource(client *redis.Client, key string, ttl time.Duration, next Source, logger *logging.Logger) *RedisCachedSource {
	if logger == nil {
		logger = logging.Discard()
	}
	return &RedisCachedSource{
		client: client,
		key:    key,
		ttl:    ttl,
		next:   next,
		logger: logger,
	}
}

// Name identifies the source in logs
func (s *RedisCachedSource) Name() string {
	return fmt.Sprintf("redis:%s -> %s", s.key, s.next.Name())
}

// Fetch returns the cached vocabulary, falling back to the wrapped source on
// a miss. Cache errors are logged and never fail the fetch.
func (s *RedisCachedSource) Fetch(ctx context.Context) ([]Entry, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	switch {
	case err == nil:
		entries, decodeErr := DecodeBundle(bytes.NewReader(data))
		if decodeErr == nil && len(entries) > 0 {
			s.logger.Debug("Dictionary served from cache", "key", s.key, "entries", len(entries))
			return entries, nil
		}
		s.logger.Warn("Discarding unreadable dictionary cache", "key", s.key, "error", decodeErr)
	case err != redis.Nil:
		s.logger.Warn("Dictionary cache unavailable", "key", s.key, "error", err)
	}

	entries, err := s.next.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		s.logger.Warn("Failed to encode dictionary for cache", "error", err)
		return entries, nil
	}
	if err := s.client.Set(ctx, s.key, payload, s.ttl).Err(); err != nil {
		s.logger.Warn("Failed to cache dictionary", "key", s.key, "error", err)
	}
	return entries, nil
}
