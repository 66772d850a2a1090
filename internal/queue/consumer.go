/**
 * Asynq Queue Consumer for PharmaScan
 *
 * Processes "scan:process" tasks with asynq. Retries and backoff are
 * handled by asynq; rejected images skip retry entirely.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/adverant/nexus/pharmascan/internal/errors"
	"github.com/adverant/nexus/pharmascan/internal/logging"
	"github.com/adverant/nexus/pharmascan/internal/processor"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Consumer handles scan tasks from an asynq queue
type Consumer struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor processor.ScanProcessorInterface
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.ScanProcessorInterface
	ProcessingTimeout time.Duration
	Logger            *logging.Logger
}

// NewConsumer creates a new asynq consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// Exponential backoff: 5s, 10s, 20s, capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error",
					"type", task.Type(),
					"error_code", errors.CodeOf(err),
					"error", err,
				)
			}),
			Logger:   &asynqLogger{logger: logger.Named("asynq")},
			LogLevel: asynq.WarnLevel,
		},
	)

	consumer := &Consumer{
		server:    server,
		mux:       asynq.NewServeMux(),
		processor: cfg.Processor,
		config:    cfg,
		logger:    logger,
	}
	consumer.mux.HandleFunc(TaskTypeScan, consumer.handleScan)

	return consumer, nil
}

// Start starts the asynq server without blocking
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting asynq consumer",
		"concurrency", c.config.Concurrency,
		"queue", c.config.QueueName,
	)
	if err := c.server.Start(c.mux); err != nil {
		return errors.NewQueueFailedError("", err)
	}
	return nil
}

// Stop waits for active tasks and shuts the server down
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping asynq consumer")
	c.server.Shutdown()
	return nil
}

func (c *Consumer) handleScan(ctx context.Context, task *asynq.Task) error {
	var payload ScanJobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal scan payload: %v: %w", err, asynq.SkipRetry)
	}
	return c.process(ctx, &payload, task.ResultWriter())
}

// resultWriter is the part of asynq.ResultWriter the handler needs
type resultWriter interface {
	Write(data []byte) (int, error)
}

func (c *Consumer) process(ctx context.Context, payload *ScanJobPayload, w resultWriter) error {
	if payload.ScanID == "" {
		if id, ok := asynq.GetTaskID(ctx); ok {
			payload.ScanID = id
		}
	}

	result, err := runScan(ctx, c.processor, payload, c.config.ProcessingTimeout, c.logger)
	if err != nil {
		if !retryable(err) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	if w != nil {
		data, err := json.Marshal(result)
		if err == nil {
			_, err = w.Write(data)
		}
		if err != nil {
			c.logger.Warn("Failed to write task result", "scan_id", result.ID, "error", err)
		}
	}
	return nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}
}

// Producer submits scan tasks to asynq
type Producer struct {
	client      *asynq.Client
	queue       string
	maxRetry    int
	taskTimeout time.Duration
}

// NewProducer creates a producer for queue
func NewProducer(redisURL, queue string, taskTimeout time.Duration) (*Producer, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if queue == "" {
		queue = "pharmascan:jobs"
	}
	if taskTimeout <= 0 {
		taskTimeout = DefaultProcessingTimeout
	}
	return &Producer{
		client:      asynq.NewClient(redisOpt),
		queue:       queue,
		maxRetry:    DefaultMaxRetries,
		taskTimeout: taskTimeout,
	}, nil
}

// NewScanTask builds the asynq task for payload, assigning a scan id if needed
func NewScanTask(payload *ScanJobPayload) (*asynq.Task, error) {
	if payload.ScanID == "" {
		payload.ScanID = uuid.NewString()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scan payload: %w", err)
	}
	return asynq.NewTask(TaskTypeScan, data), nil
}

// Enqueue submits payload and returns the task id, which is also the scan id
func (p *Producer) Enqueue(ctx context.Context, payload *ScanJobPayload) (string, error) {
	task, err := NewScanTask(payload)
	if err != nil {
		return "", err
	}
	info, err := p.client.EnqueueContext(ctx, task,
		asynq.Queue(p.queue),
		asynq.TaskID(payload.ScanID),
		asynq.MaxRetry(p.maxRetry),
		asynq.Timeout(p.taskTimeout),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return "", errors.NewQueueFailedError(payload.ScanID, err)
	}
	return info.ID, nil
}

// TaskTimeout is the deadline asynq enforces on each submitted task
func (p *Producer) TaskTimeout() time.Duration {
	return p.taskTimeout
}

// Close closes the asynq client
func (p *Producer) Close() error {
	return p.client.Close()
}

// asynqLogger routes asynq's internal logging through our logger
type asynqLogger struct {
	logger *logging.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
