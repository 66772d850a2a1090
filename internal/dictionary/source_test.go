package dictionary

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testBundle = `[{"slug":"paracetamol-500","canonical":"Paracetamol","names":["Acetaminophen"],"atc":"N02BE01"}]`

func TestHTTPSourceFetch(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		status    int
		wantErr   bool
		wantCalls int32
	}{
		{name: "first attempt succeeds", wantCalls: 1},
		{name: "recovers after server errors", failures: 2, status: http.StatusBadGateway, wantCalls: 3},
		{name: "not found is not retried", failures: 10, status: http.StatusNotFound, wantErr: true, wantCalls: 1},
		{name: "gives up after max retries", failures: 10, status: http.StatusServiceUnavailable, wantErr: true, wantCalls: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				if n <= tt.failures {
					w.WriteHeader(tt.status)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(testBundle))
			}))
			defer srv.Close()

			src := NewHTTPSource(srv.URL, nil)
			src.backoff = time.Millisecond

			entries, err := src.Fetch(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Fetch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (len(entries) != 1 || entries[0].Slug != "paracetamol-500") {
				t.Errorf("Fetch() = %+v", entries)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("server called %d times, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestFileSourceFetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dictionary.bundle.json")
	if err := os.WriteFile(path, []byte(testBundle), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := FileSource{Path: path}.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(entries) != 1 || entries[0].ClassificationCode != "N02BE01" {
		t.Errorf("Fetch() = %+v", entries)
	}

	if _, err := (FileSource{Path: filepath.Join(t.TempDir(), "missing.json")}).Fetch(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRedisCachedSourceFetch(t *testing.T) {
	const key = "pharmascan:dictionary:bundle"
	remote := []Entry{{Slug: "ibuprofen", CanonicalName: "Ibuprofen", ClassificationCode: "M01AE01"}}

	tests := []struct {
		name      string
		cached    string
		nextErr   error
		wantSlug  string
		wantCalls int
		wantErr   bool
		wantCache bool
	}{
		{name: "miss fetches and fills cache", wantSlug: "ibuprofen", wantCalls: 1, wantCache: true},
		{name: "hit skips the wrapped source", cached: testBundle, wantSlug: "paracetamol-500", wantCalls: 0, wantCache: true},
		{name: "corrupt cache falls back", cached: "{oops", wantSlug: "ibuprofen", wantCalls: 1, wantCache: true},
		{name: "empty cached bundle falls back", cached: "[]", wantSlug: "ibuprofen", wantCalls: 1, wantCache: true},
		{name: "miss with failing source", nextErr: errors.New("offline"), wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			defer client.Close()

			if tt.cached != "" {
				if err := mr.Set(key, tt.cached); err != nil {
					t.Fatal(err)
				}
			}

			next := &countingSource{entries: remote, err: tt.nextErr}
			src := NewRedisCachedSource(client, key, time.Hour, next, nil)

			entries, err := src.Fetch(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Fetch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := int(next.calls.Load()); got != tt.wantCalls {
				t.Errorf("wrapped source called %d times, want %d", got, tt.wantCalls)
			}
			if !tt.wantErr && (len(entries) != 1 || entries[0].Slug != tt.wantSlug) {
				t.Errorf("Fetch() = %+v, want %s", entries, tt.wantSlug)
			}

			if mr.Exists(key) != tt.wantCache {
				t.Errorf("cache present = %v, want %v", mr.Exists(key), tt.wantCache)
			}
			if tt.wantCache && tt.cached == "" {
				if ttl := mr.TTL(key); ttl != time.Hour {
					t.Errorf("cache ttl = %v, want 1h", ttl)
				}
			}
		})
	}
}

func TestRedisCachedSourceSurvivesRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	next := &countingSource{entries: []Entry{{Slug: "aspirin", CanonicalName: "Aspirin", ClassificationCode: "N02BA01"}}}
	src := NewRedisCachedSource(client, "pharmascan:dictionary:bundle", 0, next, nil)

	entries, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(entries) != 1 || next.calls.Load() != 1 {
		t.Errorf("Fetch() = %+v after %d calls", entries, next.calls.Load())
	}
}
