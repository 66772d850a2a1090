package main

import (
	"context"
	"fmt"
	"time"

	"github.com/adverant/nexus/pharmascan/internal/config"
	"github.com/adverant/nexus/pharmascan/internal/queue"
	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume scan jobs from Redis",
		Long: `Starts a queue consumer that scans images submitted by other services.

QUEUE_BACKEND=list reads job ids pushed onto a Redis list (Node.js producer
compatible). QUEUE_BACKEND=asynq processes "scan:process" asynq tasks.
Results are stored in the configured repository.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if concurrency > 0 {
				cfg.WorkerConcurrency = concurrency
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger, true)
			if err != nil {
				return err
			}
			defer a.Close()

			a.warmDictionary(ctx)

			stop, err := startConsumer(ctx, cfg, a, jobTimeout(cfg))
			if err != nil {
				return err
			}

			logger.Info("Worker ready",
				"queue", cfg.QueueName,
				"backend", cfg.QueueBackend,
				"concurrency", cfg.WorkerConcurrency,
				"repository", cfg.RepositoryBackend,
			)

			<-ctx.Done()
			logger.Info("Shutdown signal received, draining in-flight scans")
			if err := stop(); err != nil {
				logger.Error("Error stopping queue consumer", "error", err)
			}
			logger.Info("Shutdown complete")
			return nil
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "Concurrent scans (overrides WORKER_CONCURRENCY)")

	return cmd
}

// jobTimeout bounds one queued scan. It leaves room for the image download
// and is shared by producers and consumers so asynq never cancels first.
func jobTimeout(cfg *config.Config) time.Duration {
	return cfg.ScanTimeout + time.Minute
}

func startConsumer(ctx context.Context, cfg *config.Config, a *app, timeout time.Duration) (func() error, error) {
	switch cfg.QueueBackend {
	case config.QueueAsynq:
		consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         a.processor,
			ProcessingTimeout: timeout,
			Logger:            a.logger.Named("queue"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize asynq consumer: %w", err)
		}
		if err := consumer.Start(ctx); err != nil {
			return nil, err
		}
		return func() error { return consumer.Stop(context.Background()) }, nil

	default:
		consumer, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         a.processor,
			ProcessingTimeout: timeout,
			Logger:            a.logger.Named("queue"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize queue consumer: %w", err)
		}
		if err := consumer.Start(); err != nil {
			return nil, err
		}
		return consumer.Stop, nil
	}
}
