package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/adverant/nexus/pharmascan/internal/errors"
	"github.com/adverant/nexus/pharmascan/internal/logging"
	"github.com/adverant/nexus/pharmascan/internal/models"
	"github.com/adverant/nexus/pharmascan/internal/processor"
)

// DefaultProcessingTimeout bounds one job including image download
const DefaultProcessingTimeout = 5 * time.Minute

// runScan processes one payload under a timeout. Both consumers share it.
func runScan(ctx context.Context, proc processor.ScanProcessorInterface, payload *ScanJobPayload, timeout time.Duration, logger *logging.Logger) (*models.ScanResult, error) {
	if timeout <= 0 {
		timeout = DefaultProcessingTimeout
	}

	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := proc.ProcessScan(processCtx, payload.Request())
	duration := time.Since(start)

	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded {
			logger.Warn("Scan job timed out", "scan_id", payload.ScanID, "duration", duration, "timeout", timeout)
			return nil, errors.NewScanTimeoutError(payload.ScanID, timeout, err)
		}
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("processor returned no result for scan %s", payload.ScanID)
	}

	logger.Info("Scan job completed",
		"scan_id", result.ID,
		"duration", duration,
		"confidence", result.Confidence,
		"drugs", len(result.DetectedDrugs),
	)
	return result, nil
}

// retryable reports whether a failed job is worth running again. A rejected
// image fails the same way on every attempt.
func retryable(err error) bool {
	return errors.CodeOf(err) != errors.ErrorInvalidImage
}

// errorDetails renders err for the "<queue>:errors" hash and task results
func errorDetails(err error, attempts int) map[string]interface{} {
	details := map[string]interface{}{"error": err.Error(), "attempts": attempts}
	var se *errors.ScanError
	if stderrors.As(err, &se) {
		for k, v := range se.ToMap() {
			details[k] = v
		}
	}
	return details
}
