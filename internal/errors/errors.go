package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the PharmaScan pipeline
 *
 * Only INVALID_IMAGE and IMAGE_UNAVAILABLE escape a scan. Every other code
 * is recorded, logged and absorbed by the component that produced it.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Input errors
	ErrorInvalidImage     ErrorCode = "INVALID_IMAGE"
	ErrorImageUnavailable ErrorCode = "IMAGE_UNAVAILABLE"

	// Processing errors
	ErrorOCRFailed   ErrorCode = "OCR_FAILED"
	ErrorScanTimeout ErrorCode = "SCAN_TIMEOUT"

	// Dependency errors
	ErrorDictionaryUnavailable ErrorCode = "DICTIONARY_UNAVAILABLE"
	ErrorStorageFailed         ErrorCode = "STORAGE_FAILED"
	ErrorQueueFailed           ErrorCode = "QUEUE_FAILED"
)

// ScanError represents a structured pipeline error
type ScanError struct {
	Code      ErrorCode
	Message   string
	ScanID    string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ScanError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScanError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a ScanError with the same code, so callers can
// write errors.Is(err, &ScanError{Code: ErrorInvalidImage}).
func (e *ScanError) Is(target error) bool {
	t, ok := target.(*ScanError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Factory functions for common errors

func NewInvalidImageError(reason string) *ScanError {
	return &ScanError{
		Code:      ErrorInvalidImage,
		Message:   fmt.Sprintf("Invalid image: %s", reason),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"reason": reason,
		},
	}
}

// NewImageUnavailableError reports an image URL that could not be fetched.
// Unlike INVALID_IMAGE it is worth retrying.
func NewImageUnavailableError(url string, cause error) *ScanError {
	return &ScanError{
		Code:      ErrorImageUnavailable,
		Message:   "Image could not be downloaded",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"url": url,
		},
		Cause: cause,
	}
}

func NewOCRFailedError(scanID string, strategy string, cause error) *ScanError {
	return &ScanError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR failed for strategy: %s", strategy),
		ScanID:    scanID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"strategy": strategy,
		},
		Cause: cause,
	}
}

func NewScanTimeoutError(scanID string, duration time.Duration, cause error) *ScanError {
	return &ScanError{
		Code:      ErrorScanTimeout,
		Message:   fmt.Sprintf("Scan timed out after %v", duration),
		ScanID:    scanID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewDictionaryUnavailableError(source string, cause error) *ScanError {
	return &ScanError{
		Code:      ErrorDictionaryUnavailable,
		Message:   fmt.Sprintf("Dictionary unavailable from %s", source),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"source": source,
		},
		Cause: cause,
	}
}

func NewStorageFailedError(scanID string, cause error) *ScanError {
	return &ScanError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store scan result",
		ScanID:    scanID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewQueueFailedError(jobID string, cause error) *ScanError {
	return &ScanError{
		Code:      ErrorQueueFailed,
		Message:   "Queue operation failed",
		ScanID:    jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// CodeOf extracts the ErrorCode from err, or "" when err carries none
func CodeOf(err error) ErrorCode {
	var se *ScanError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// ToMap converts error to map for job status storage
func (e *ScanError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.ScanID != "" {
		result["scan_id"] = e.ScanID
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
