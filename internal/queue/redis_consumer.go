/**
 * Redis List Queue Consumer for PharmaScan
 *
 * Consumes scan jobs pushed by a Node.js producer using plain Redis LIST
 * operations:
 * - job ids are BRPOP'd from <queue>
 * - job envelopes live in the <queue>:data hash
 * - results and errors go to <queue>:results / <queue>:errors
 * - status changes are published on <queue>:events
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/adverant/nexus/pharmascan/internal/errors"
	"github.com/adverant/nexus/pharmascan/internal/logging"
	"github.com/adverant/nexus/pharmascan/internal/processor"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultMaxRetries applies when a job envelope carries no maxRetries
const DefaultMaxRetries = 3

// RedisConsumer handles job consumption from a Redis list
type RedisConsumer struct {
	client    *redis.Client
	processor processor.ScanProcessorInterface
	config    *RedisConsumerConfig
	logger    *logging.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	now       func() time.Time
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.ScanProcessorInterface
	ProcessingTimeout time.Duration
	Logger            *logging.Logger
}

// queueKeys derives every Redis key used for one queue
type queueKeys struct {
	list       string
	data       string
	processing string
	completed  string
	failed     string
	results    string
	errors     string
	events     string
}

func keysFor(queue string) queueKeys {
	return queueKeys{
		list:       queue,
		data:       queue + ":data",
		processing: queue + ":processing",
		completed:  queue + ":completed",
		failed:     queue + ":failed",
		results:    queue + ":results",
		errors:     queue + ":errors",
		events:     queue + ":events",
	}
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "pharmascan:jobs"
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisConsumer(client, cfg), nil
}

func newRedisConsumer(client *redis.Client, cfg *RedisConsumerConfig) *RedisConsumer {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	consumerCtx, cancel := context.WithCancel(context.Background())
	return &RedisConsumer{
		client:    client,
		processor: cfg.Processor,
		config:    cfg,
		logger:    logger,
		ctx:       consumerCtx,
		cancel:    cancel,
		now:       time.Now,
	}
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting Redis queue consumer",
		"concurrency", c.config.Concurrency,
		"queue", c.config.QueueName,
	)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
	return nil
}

// Stop gracefully stops the consumer, letting in-flight scans finish
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping queue consumer")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

var errNoJobs = fmt.Errorf("no jobs available")

func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	log := c.logger.With("worker", id)
	log.Debug("Worker started")

	for {
		select {
		case <-c.ctx.Done():
			log.Debug("Worker stopping")
			return
		default:
		}

		if err := c.processNextJob(); err != nil {
			if err == errNoJobs || c.ctx.Err() != nil {
				continue
			}
			log.Error("Worker error", "error", err)
			select {
			case <-time.After(time.Second):
			case <-c.ctx.Done():
			}
		}
	}
}

// processNextJob fetches and processes the next job from the queue
func (c *RedisConsumer) processNextJob() error {
	keys := keysFor(c.config.QueueName)

	result, err := c.client.BRPop(c.ctx, 5*time.Second, keys.list).Result()
	if err != nil {
		if err == redis.Nil {
			return errNoJobs
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}
	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}
	jobID := result[1]

	// The scan itself is not tied to the consumer context so Stop drains it
	ctx := context.WithoutCancel(c.ctx)

	jobData, err := c.client.HGet(ctx, keys.data, jobID).Result()
	if err != nil {
		return errors.NewQueueFailedError(jobID, fmt.Errorf("failed to get job data: %w", err))
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		c.updateJobStatus(ctx, jobID, "", StatusFailed, errorDetails(err, 0))
		return errors.NewQueueFailedError(jobID, fmt.Errorf("failed to unmarshal job: %w", err))
	}
	if job.ID == "" {
		job.ID = jobID
	}
	if job.Payload.ScanID == "" {
		job.Payload.ScanID = uuid.NewString()
	}
	if job.MaxRetries <= 0 {
		job.MaxRetries = DefaultMaxRetries
	}

	c.updateJobStatus(ctx, job.ID, job.Payload.ScanID, StatusProcessing, nil)
	c.logger.Info("Processing scan job", "job_id", job.ID, "scan_id", job.Payload.ScanID, "filename", job.Payload.Filename)

	scan, err := runScan(ctx, c.processor, &job.Payload, c.config.ProcessingTimeout, c.logger)
	if err == nil {
		c.updateJobStatus(ctx, job.ID, job.Payload.ScanID, StatusCompleted, scan)
		return nil
	}

	job.Attempts++
	c.logger.Warn("Scan job failed", "job_id", job.ID, "attempt", job.Attempts, "error", err)

	if retryable(err) && job.Attempts < job.MaxRetries {
		updated, marshalErr := json.Marshal(job)
		if marshalErr != nil {
			return errors.NewQueueFailedError(job.ID, marshalErr)
		}
		pipe := c.client.TxPipeline()
		pipe.HSet(ctx, keys.data, job.ID, updated)
		pipe.SRem(ctx, keys.processing, job.ID)
		pipe.LPush(ctx, keys.list, job.ID)
		if _, err := pipe.Exec(ctx); err != nil {
			return errors.NewQueueFailedError(job.ID, fmt.Errorf("failed to re-queue job: %w", err))
		}
		c.logger.Info("Scan job re-queued", "job_id", job.ID, "attempt", job.Attempts, "max_retries", job.MaxRetries)
		return nil
	}

	c.updateJobStatus(ctx, job.ID, job.Payload.ScanID, StatusFailed, errorDetails(err, job.Attempts))
	return nil
}

// updateJobStatus records status in Redis and publishes an event. Redis
// errors here are logged only; the scan outcome is already decided.
func (c *RedisConsumer) updateJobStatus(ctx context.Context, jobID, scanID, status string, result interface{}) {
	keys := keysFor(c.config.QueueName)
	pipe := c.client.TxPipeline()

	switch status {
	case StatusProcessing:
		pipe.SAdd(ctx, keys.processing, jobID)
	case StatusCompleted:
		pipe.SRem(ctx, keys.processing, jobID)
		pipe.SAdd(ctx, keys.completed, jobID)
		if result != nil {
			if data, err := json.Marshal(result); err == nil {
				pipe.HSet(ctx, keys.results, jobID, data)
			}
		}
	case StatusFailed:
		pipe.SRem(ctx, keys.processing, jobID)
		pipe.SAdd(ctx, keys.failed, jobID)
		if result != nil {
			if data, err := json.Marshal(result); err == nil {
				pipe.HSet(ctx, keys.errors, jobID, data)
			}
		}
	}

	if eventData, err := json.Marshal(newJobEvent(status, jobID, scanID, c.now())); err == nil {
		pipe.Publish(ctx, keys.events, eventData)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("Failed to record job status", "job_id", jobID, "status", status, "error", err)
	}
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	return queueStats(ctx, c.client, c.config.QueueName)
}

func queueStats(ctx context.Context, client *redis.Client, queue string) (map[string]int64, error) {
	keys := keysFor(queue)
	pipe := client.Pipeline()
	waiting := pipe.LLen(ctx, keys.list)
	processing := pipe.SCard(ctx, keys.processing)
	completed := pipe.SCard(ctx, keys.completed)
	failed := pipe.SCard(ctx, keys.failed)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return map[string]int64{
		"waiting":    waiting.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}

// ListProducer enqueues scan jobs in the list format RedisConsumer reads
type ListProducer struct {
	client     *redis.Client
	queue      string
	maxRetries int
}

// NewListProducer connects to redisURL
func NewListProducer(redisURL, queue string) (*ListProducer, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if queue == "" {
		queue = "pharmascan:jobs"
	}
	return &ListProducer{client: redis.NewClient(opt), queue: queue, maxRetries: DefaultMaxRetries}, nil
}

// Enqueue stores the envelope and pushes its id. It returns the job id.
func (p *ListProducer) Enqueue(ctx context.Context, payload *ScanJobPayload) (string, error) {
	if payload.ScanID == "" {
		payload.ScanID = uuid.NewString()
	}
	job := RedisJobData{
		ID:         uuid.NewString(),
		Type:       TaskTypeScan,
		Payload:    *payload,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: p.maxRetries,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", errors.NewQueueFailedError(job.ID, err)
	}

	keys := keysFor(p.queue)
	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, keys.data, job.ID, data)
	pipe.LPush(ctx, keys.list, job.ID)
	if eventData, err := json.Marshal(newJobEvent(StatusQueued, job.ID, payload.ScanID, job.CreatedAt)); err == nil {
		pipe.Publish(ctx, keys.events, eventData)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", errors.NewQueueFailedError(job.ID, err)
	}
	return job.ID, nil
}

// Stats returns queue statistics
func (p *ListProducer) Stats(ctx context.Context) (map[string]int64, error) {
	return queueStats(ctx, p.client, p.queue)
}

// Close closes the Redis connection
func (p *ListProducer) Close() error {
	return p.client.Close()
}
