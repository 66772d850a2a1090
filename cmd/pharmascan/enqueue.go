package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adverant/nexus/pharmascan/internal/config"
	"github.com/adverant/nexus/pharmascan/internal/queue"
	"github.com/spf13/cobra"
)

type enqueuer interface {
	Enqueue(ctx context.Context, payload *queue.ScanJobPayload) (string, error)
	Close() error
}

func newEnqueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue <image-or-url>",
		Short: "Submit an image to the worker queue",
		Long: `Submits a scan job for a running worker. A local path is sent inline;
an http(s) URL is downloaded by the worker. The job goes to the backend
selected by QUEUE_BACKEND.`,
		Example: `  pharmascan enqueue ./strip.jpg
  QUEUE_BACKEND=asynq pharmascan enqueue https://example.com/strip.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			payload := &queue.ScanJobPayload{Metadata: map[string]interface{}{"source": "enqueue"}}
			target := args[0]
			if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
				payload.ImageURL = target
				payload.Filename = filepath.Base(target)
			} else {
				data, err := os.ReadFile(target)
				if err != nil {
					return fmt.Errorf("failed to read image: %w", err)
				}
				if int64(len(data)) > cfg.MaxUploadBytes {
					return fmt.Errorf("image exceeds %d bytes", cfg.MaxUploadBytes)
				}
				payload.ImageBuffer = data
				payload.Filename = filepath.Base(target)
			}

			producer, err := newEnqueuer(cfg)
			if err != nil {
				return err
			}
			defer producer.Close()

			jobID, err := producer.Enqueue(cmd.Context(), payload)
			if err != nil {
				return err
			}
			logger.Info("Scan job enqueued", "job_id", jobID, "scan_id", payload.ScanID, "queue", cfg.QueueName, "backend", cfg.QueueBackend)
			fmt.Fprintln(cmd.OutOrStdout(), payload.ScanID)
			return nil
		},
	}
	return cmd
}

func newEnqueuer(cfg *config.Config) (enqueuer, error) {
	if cfg.QueueBackend == config.QueueAsynq {
		return queue.NewProducer(cfg.RedisURL, cfg.QueueName, jobTimeout(cfg))
	}
	return queue.NewListProducer(cfg.RedisURL, cfg.QueueName)
}
