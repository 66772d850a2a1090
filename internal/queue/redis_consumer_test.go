package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/adverant/nexus/pharmascan/internal/errors"
	"github.com/adverant/nexus/pharmascan/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testQueue = "pharmascan:jobs"

func newTestRedisConsumer(t *testing.T, stub *stubProcessor) (*RedisConsumer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	c := newRedisConsumer(client, &RedisConsumerConfig{
		QueueName:         testQueue,
		Concurrency:       1,
		Processor:         stub,
		ProcessingTimeout: time.Second,
	})
	t.Cleanup(c.cancel)
	return c, mr
}

func pushJob(t *testing.T, mr *miniredis.Miniredis, job RedisJobData) {
	t.Helper()
	data, err := json.Marshal(job)
	if err != nil {
		t.Fatal(err)
	}
	keys := keysFor(testQueue)
	mr.HSet(keys.data, job.ID, string(data))
	if _, err := mr.Lpush(keys.list, job.ID); err != nil {
		t.Fatal(err)
	}
}

func TestRedisConsumerProcessNextJob(t *testing.T) {
	keys := keysFor(testQueue)
	ok := &models.ScanResult{ID: "scan-1", ExtractedText: "Paracetamol", DetectedDrugs: []models.DrugMatch{}}

	tests := []struct {
		name          string
		attempts      int
		maxRetries    int
		result        *models.ScanResult
		err           error
		wantRequeued  bool
		wantCompleted bool
		wantFailed    bool
		wantCode      string
		wantAttempts  int
	}{
		{
			name:          "success stores result",
			result:        ok,
			wantCompleted: true,
		},
		{
			name:         "transient failure is re-queued",
			maxRetries:   3,
			err:          errors.NewImageUnavailableError("https://cdn.test/strip.jpg", stderrors.New("connection reset")),
			wantRequeued: true,
			wantAttempts: 1,
		},
		{
			name:         "last attempt fails the job",
			attempts:     2,
			maxRetries:   3,
			err:          errors.NewImageUnavailableError("https://cdn.test/strip.jpg", stderrors.New("connection reset")),
			wantFailed:   true,
			wantCode:     "IMAGE_UNAVAILABLE",
			wantAttempts: 3,
		},
		{
			name:         "invalid image fails immediately",
			maxRetries:   3,
			err:          errors.NewInvalidImageError("unsupported image format"),
			wantFailed:   true,
			wantCode:     "INVALID_IMAGE",
			wantAttempts: 1,
		},
		{
			name:         "missing maxRetries uses default",
			err:          stderrors.New("engine crashed"),
			wantRequeued: true,
			wantAttempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubProcessor{result: tt.result, err: tt.err}
			c, mr := newTestRedisConsumer(t, stub)

			pushJob(t, mr, RedisJobData{
				ID:         "job-1",
				Type:       TaskTypeScan,
				Payload:    ScanJobPayload{ScanID: "scan-1", Filename: "strip.png", ImageBuffer: []byte{0x89, 0x50}},
				Attempts:   tt.attempts,
				MaxRetries: tt.maxRetries,
			})

			if err := c.processNextJob(); err != nil {
				t.Fatalf("processNextJob() error = %v", err)
			}
			if stub.got == nil || stub.got.ScanID != "scan-1" || len(stub.got.Image) != 2 {
				t.Fatalf("processor request = %+v", stub.got)
			}

			if ok, _ := mr.SIsMember(keys.processing, "job-1"); ok {
				t.Error("job left in processing set")
			}

			queued, _ := mr.List(keys.list)
			if tt.wantRequeued != (len(queued) == 1) {
				t.Errorf("queue = %v, want re-queued %v", queued, tt.wantRequeued)
			}
			if tt.wantRequeued {
				var job RedisJobData
				if err := json.Unmarshal([]byte(mr.HGet(keys.data, "job-1")), &job); err != nil {
					t.Fatal(err)
				}
				if job.Attempts != tt.wantAttempts {
					t.Errorf("stored attempts = %d, want %d", job.Attempts, tt.wantAttempts)
				}
				if len(job.Payload.ImageBuffer) != 2 {
					t.Error("image lost on re-queue")
				}
			}

			if ok, _ := mr.SIsMember(keys.completed, "job-1"); ok != tt.wantCompleted {
				t.Errorf("completed = %v, want %v", ok, tt.wantCompleted)
			}
			if tt.wantCompleted {
				var got models.ScanResult
				if err := json.Unmarshal([]byte(mr.HGet(keys.results, "job-1")), &got); err != nil {
					t.Fatalf("results hash: %v", err)
				}
				if got.ExtractedText != "Paracetamol" {
					t.Errorf("stored result = %+v", got)
				}
			}

			if ok, _ := mr.SIsMember(keys.failed, "job-1"); ok != tt.wantFailed {
				t.Errorf("failed = %v, want %v", ok, tt.wantFailed)
			}
			if tt.wantFailed {
				var details map[string]interface{}
				if err := json.Unmarshal([]byte(mr.HGet(keys.errors, "job-1")), &details); err != nil {
					t.Fatalf("errors hash: %v", err)
				}
				if details["error_code"] != tt.wantCode {
					t.Errorf("error_code = %v, want %s", details["error_code"], tt.wantCode)
				}
				if details["attempts"] != float64(tt.wantAttempts) {
					t.Errorf("attempts = %v, want %d", details["attempts"], tt.wantAttempts)
				}
			}
		})
	}
}

func TestRedisConsumerCorruptEnvelope(t *testing.T) {
	c, mr := newTestRedisConsumer(t, &stubProcessor{})
	keys := keysFor(testQueue)

	mr.HSet(keys.data, "job-bad", "{not json")
	if _, err := mr.Lpush(keys.list, "job-bad"); err != nil {
		t.Fatal(err)
	}

	if err := c.processNextJob(); errors.CodeOf(err) != errors.ErrorQueueFailed {
		t.Fatalf("error = %v, want QUEUE_FAILED", err)
	}
	if ok, _ := mr.SIsMember(keys.failed, "job-bad"); !ok {
		t.Error("corrupt job not marked failed")
	}
}

func TestListProducerFeedsConsumer(t *testing.T) {
	stub := &stubProcessor{result: &models.ScanResult{ID: "scan-9", DetectedDrugs: []models.DrugMatch{}}}
	c, mr := newTestRedisConsumer(t, stub)

	producer, err := NewListProducer("redis://"+mr.Addr(), testQueue)
	if err != nil {
		t.Fatal(err)
	}
	defer producer.Close()

	ctx := context.Background()
	jobID, err := producer.Enqueue(ctx, &ScanJobPayload{ScanID: "scan-9", Filename: "strip.png", ImageBuffer: []byte("img")})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	stats, err := producer.Stats(ctx)
	if err != nil || stats["waiting"] != 1 {
		t.Fatalf("Stats() = %v, %v", stats, err)
	}

	if err := c.processNextJob(); err != nil {
		t.Fatalf("processNextJob() error = %v", err)
	}
	if string(stub.got.Image) != "img" {
		t.Errorf("image = %q", stub.got.Image)
	}

	stats, err = c.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]int64{"waiting": 0, "processing": 0, "completed": 1, "failed": 0}
	for k, v := range want {
		if stats[k] != v {
			t.Errorf("stats[%s] = %d, want %d", k, stats[k], v)
		}
	}
	if ok, _ := mr.SIsMember(keysFor(testQueue).completed, jobID); !ok {
		t.Errorf("job %s not completed", jobID)
	}
}
