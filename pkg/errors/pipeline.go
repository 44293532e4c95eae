package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a classified pipeline error.
type ErrorCode string

const (
	ErrTimeout              ErrorCode = "timeout"
	ErrContextCancelled     ErrorCode = "context_cancelled"
	ErrNoTitleFound         ErrorCode = "no_title_found"
	ErrSplitMismatch        ErrorCode = "split_mismatch"
	ErrMissingAttendeeBlock ErrorCode = "missing_attendee_block"
	ErrDuplicateItemTitle   ErrorCode = "duplicate_item_title"
	ErrExtractionFailed     ErrorCode = "extraction_failed"
	ErrUnsupportedFormat    ErrorCode = "unsupported_format"
	ErrEmptyContent         ErrorCode = "empty_content"
	ErrContentTooLarge      ErrorCode = "content_too_large"
	ErrDuplicateContent     ErrorCode = "duplicate_content"
	ErrBackendUnavailable   ErrorCode = "backend_unavailable"
	ErrStorage              ErrorCode = "storage_error"
	ErrProcessingError      ErrorCode = "processing_error"
)

// Stage names used when classifying errors.
const (
	StageExtract = "extract"
	StageParse   = "parse"
	StageStore   = "store"
	StageIndex   = "index"
	StagePublish = "publish"
)

// PipelineError is a structured error for pipeline failures.
type PipelineError struct {
	Code     ErrorCode
	Stage    string
	Message  string
	Duration time.Duration
	Timeout  time.Duration
	Cause    error
}

// New creates a PipelineError for a known failure condition.
func New(code ErrorCode, stage string, cause error, format string, args ...any) *PipelineError {
	return &PipelineError{
		Code:    code,
		Stage:   stage,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

func (e *PipelineError) Error() string {
	if e.Timeout > 0 && e.Duration > 0 {
		return fmt.Sprintf("%s: %s timed out after %s (limit: %s)", e.Code, e.Stage, e.Duration.Truncate(time.Second), e.Timeout.Truncate(time.Second))
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// ClassifyError inspects an error and returns a *PipelineError with the appropriate code.
// Errors that already carry a code keep it. If the error doesn't match any known
// pattern, it returns a PipelineError with ErrProcessingError.
func ClassifyError(err error, stage string) *PipelineError {
	if err == nil {
		return nil
	}

	var existing *PipelineError
	if errors.As(err, &existing) {
		if existing.Stage == "" {
			classified := *existing
			classified.Stage = stage
			return &classified
		}
		return existing
	}

	pe := &PipelineError{
		Stage: stage,
		Cause: err,
	}

	// Check for context deadline exceeded (timeout)
	if errors.Is(err, context.DeadlineExceeded) {
		pe.Code = ErrTimeout
		pe.Message = "operation timed out"
		return pe
	}

	// Check for context cancelled
	if errors.Is(err, context.Canceled) {
		pe.Code = ErrContextCancelled
		pe.Message = "operation cancelled"
		return pe
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	if strings.Contains(lower, "unsupported format") || strings.Contains(lower, "unsupported file") {
		pe.Code = ErrUnsupportedFormat
		pe.Message = msg
		return pe
	}

	if strings.Contains(lower, "empty content") || strings.Contains(lower, "content is empty") || strings.Contains(lower, "no content") {
		pe.Code = ErrEmptyContent
		pe.Message = msg
		return pe
	}

	if strings.Contains(lower, "too large") || strings.Contains(lower, "exceeds maximum") {
		pe.Code = ErrContentTooLarge
		pe.Message = msg
		return pe
	}

	if strings.Contains(lower, "duplicate") || strings.Contains(lower, "already exists") {
		pe.Code = ErrDuplicateContent
		pe.Message = msg
		return pe
	}

	if strings.Contains(lower, "pdftotext") || strings.Contains(lower, "extract") {
		pe.Code = ErrExtractionFailed
		pe.Message = msg
		return pe
	}

	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "unavailable") || strings.Contains(lower, "no such host") || strings.Contains(lower, "i/o timeout") {
		pe.Code = ErrBackendUnavailable
		pe.Message = msg
		return pe
	}

	if strings.Contains(lower, "sql") || strings.Contains(lower, "database") || strings.Contains(lower, "constraint") {
		pe.Code = ErrStorage
		pe.Message = msg
		return pe
	}

	// Default to processing error
	pe.Code = ErrProcessingError
	pe.Message = msg
	return pe
}

// CodeOf returns the code of the first PipelineError in err's chain,
// or ErrProcessingError when there is none.
func CodeOf(err error) ErrorCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrProcessingError
}

// IsTimeout returns true if the error is a timeout error.
func IsTimeout(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == ErrTimeout
	}
	return false
}

// IsErrorRetryable returns true if the error is likely transient and worth retrying.
// This function checks the error code using the ErrorCodeRegistry.
func IsErrorRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		if info, ok := ErrorCodeRegistry[pe.Code]; ok {
			return info.Retryable
		}
		// Default to non-retryable for unknown codes
		return false
	}
	return false
}
