package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adverant/nexus/pharmascan/internal/processor"
)

// TaskTypeScan is the asynq task type for scan jobs
const TaskTypeScan = "scan:process"

// ScanJobPayload describes one image to scan
type ScanJobPayload struct {
	ScanID   string `json:"scanId"`
	Filename string `json:"filename,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	// ImageBuffer is set by UnmarshalJSON from "imageBuffer"
	ImageBuffer []byte                 `json:"-"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts imageBuffer either as a base64 string or as a
// Node.js Buffer object ({"type":"Buffer","data":[...]}).
func (p *ScanJobPayload) UnmarshalJSON(data []byte) error {
	type Alias ScanJobPayload
	aux := &struct {
		ImageBuffer interface{} `json:"imageBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal ScanJobPayload: %w", err)
	}

	if aux.ImageBuffer == nil {
		return nil
	}

	switch v := aux.ImageBuffer.(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 imageBuffer: %w", err)
		}
		p.ImageBuffer = decoded

	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		p.ImageBuffer = make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok || byteVal < 0 || byteVal > 255 || byteVal != float64(int(byteVal)) {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			p.ImageBuffer[i] = byte(byteVal)
		}

	default:
		return fmt.Errorf("imageBuffer must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

// MarshalJSON writes imageBuffer as a base64 string
func (p ScanJobPayload) MarshalJSON() ([]byte, error) {
	type Alias ScanJobPayload
	return json.Marshal(&struct {
		ImageBuffer []byte `json:"imageBuffer,omitempty"`
		*Alias
	}{
		ImageBuffer: p.ImageBuffer,
		Alias:       (*Alias)(&p),
	})
}

// Request converts the payload into a processor request
func (p *ScanJobPayload) Request() *processor.ScanRequest {
	return &processor.ScanRequest{
		ScanID:   p.ScanID,
		Filename: p.Filename,
		Image:    p.ImageBuffer,
		ImageURL: p.ImageURL,
		Metadata: p.Metadata,
	}
}

// RedisJobData is the envelope stored in the "<queue>:data" hash
type RedisJobData struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Payload    ScanJobPayload `json:"payload"`
	CreatedAt  time.Time      `json:"createdAt"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"maxRetries"`
}

// Job status values written to Redis
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// JobEvent is published on "<queue>:events"
type JobEvent struct {
	Event     string `json:"event"`
	JobID     string `json:"jobId"`
	ScanID    string `json:"scanId,omitempty"`
	Timestamp string `json:"timestamp"`
}

func newJobEvent(status, jobID, scanID string, now time.Time) JobEvent {
	return JobEvent{
		Event:     "job:" + status,
		JobID:     jobID,
		ScanID:    scanID,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}
