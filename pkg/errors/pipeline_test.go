package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassifyError_Nil(t *testing.T) {
	result := ClassifyError(nil, "test-stage")
	if result != nil {
		t.Errorf("Expected nil for nil error, got %v", result)
	}
}

func TestClassifyError_DeadlineExceeded(t *testing.T) {
	err := context.DeadlineExceeded
	result := ClassifyError(err, "test-stage")

	if result == nil {
		t.Fatal("Expected non-nil PipelineError")
	}
	if result.Code != ErrTimeout {
		t.Errorf("Expected ErrTimeout, got %s", result.Code)
	}
	if result.Stage != "test-stage" {
		t.Errorf("Expected stage 'test-stage', got %s", result.Stage)
	}
	if result.Message != "operation timed out" {
		t.Errorf("Expected 'operation timed out', got %s", result.Message)
	}
	if result.Cause != err {
		t.Errorf("Expected cause to be original error")
	}
}

func TestClassifyError_Canceled(t *testing.T) {
	err := context.Canceled
	result := ClassifyError(err, "test-stage")

	if result == nil {
		t.Fatal("Expected non-nil PipelineError")
	}
	if result.Code != ErrContextCancelled {
		t.Errorf("Expected ErrContextCancelled, got %s", result.Code)
	}
	if result.Message != "operation cancelled" {
		t.Errorf("Expected 'operation cancelled', got %s", result.Message)
	}
}

func TestClassifyError_KeepsExistingCode(t *testing.T) {
	cause := errors.New("no title could be found in text")
	original := New(ErrNoTitleFound, "", cause, "no header line")

	result := ClassifyError(fmt.Errorf("parsing council.pdf: %w", original), StageParse)
	if result.Code != ErrNoTitleFound {
		t.Errorf("Expected ErrNoTitleFound, got %s", result.Code)
	}
	if result.Stage != StageParse {
		t.Errorf("Expected stage to be filled in, got %q", result.Stage)
	}
	if !errors.Is(result, cause) {
		t.Errorf("Expected classified error to keep its cause")
	}
	if original.Stage != "" {
		t.Errorf("Expected original error to be left untouched")
	}

	staged := New(ErrSplitMismatch, StageParse, nil, "two announcements")
	if got := ClassifyError(staged, StageStore); got != staged {
		t.Errorf("Expected staged error to be returned as is")
	}
}

func TestClassifyError_Patterns(t *testing.T) {
	tests := []struct {
		name     string
		errorMsg string
		want     ErrorCode
	}{
		{"unsupported format", "unsupported format: .docx", ErrUnsupportedFormat},
		{"unsupported file", "Unsupported file type", ErrUnsupportedFormat},
		{"empty content", "empty content in report.pdf", ErrEmptyContent},
		{"content is empty", "content is empty after extraction", ErrEmptyContent},
		{"too large", "file too large: 80MB", ErrContentTooLarge},
		{"exceeds maximum", "size exceeds maximum of 50MB", ErrContentTooLarge},
		{"duplicate", "duplicate document hash", ErrDuplicateContent},
		{"pdftotext", "pdftotext: exit status 1", ErrExtractionFailed},
		{"extract", "failed to extract text", ErrExtractionFailed},
		{"connection refused", "dial tcp 127.0.0.1:6379: connection refused", ErrBackendUnavailable},
		{"no such host", "dial tcp: lookup db: no such host", ErrBackendUnavailable},
		{"sql", "sql: no rows in result set", ErrStorage},
		{"constraint", "UNIQUE constraint failed: meetings.id", ErrStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ClassifyError(errors.New(tt.errorMsg), "test-stage")

			if result == nil {
				t.Fatal("Expected non-nil PipelineError")
			}
			if result.Code != tt.want {
				t.Errorf("Expected %s for '%s', got %s", tt.want, tt.errorMsg, result.Code)
			}
			if result.Message != tt.errorMsg {
				t.Errorf("Expected message '%s', got %s", tt.errorMsg, result.Message)
			}
		})
	}
}

func TestClassifyError_Unknown(t *testing.T) {
	err := errors.New("some random error")
	result := ClassifyError(err, "test-stage")

	if result == nil {
		t.Fatal("Expected non-nil PipelineError")
	}
	if result.Code != ErrProcessingError {
		t.Errorf("Expected ErrProcessingError for unrecognized error, got %s", result.Code)
	}
	if result.Message != "some random error" {
		t.Errorf("Expected message 'some random error', got %s", result.Message)
	}
}

func TestClassifyError_WrappedErrors(t *testing.T) {
	wrappedErr := fmt.Errorf("wrapped: %w", context.DeadlineExceeded)
	result := ClassifyError(wrappedErr, "test-stage")

	if result == nil {
		t.Fatal("Expected non-nil PipelineError")
	}
	if result.Code != ErrTimeout {
		t.Errorf("Expected ErrTimeout for wrapped DeadlineExceeded, got %s", result.Code)
	}
}

func TestPipelineError_Error_WithTimeout(t *testing.T) {
	pe := &PipelineError{
		Code:     ErrTimeout,
		Stage:    StageExtract,
		Duration: 120 * time.Second,
		Timeout:  120 * time.Second,
	}

	expected := "timeout: extract timed out after 2m0s (limit: 2m0s)"
	if pe.Error() != expected {
		t.Errorf("Expected '%s', got '%s'", expected, pe.Error())
	}
}

func TestPipelineError_Error_WithStage(t *testing.T) {
	pe := New(ErrSplitMismatch, StageParse, nil, "expected 2 segments, got %d", 3)

	expected := "split_mismatch: parse: expected 2 segments, got 3"
	if pe.Error() != expected {
		t.Errorf("Expected '%s', got '%s'", expected, pe.Error())
	}
}

func TestPipelineError_Error_NoStage(t *testing.T) {
	pe := &PipelineError{
		Code:    ErrProcessingError,
		Message: "something went wrong",
	}

	expected := "processing_error: something went wrong"
	if pe.Error() != expected {
		t.Errorf("Expected '%s', got '%s'", expected, pe.Error())
	}
}

func TestPipelineError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	pe := &PipelineError{
		Code:  ErrProcessingError,
		Cause: originalErr,
	}

	if pe.Unwrap() != originalErr {
		t.Errorf("Expected unwrapped error to be original error")
	}
	if !errors.Is(pe, originalErr) {
		t.Errorf("Expected errors.Is to find the cause")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"pipeline error", &PipelineError{Code: ErrMissingAttendeeBlock}, ErrMissingAttendeeBlock},
		{"wrapped pipeline error", fmt.Errorf("file: %w", &PipelineError{Code: ErrEmptyContent}), ErrEmptyContent},
		{"regular error", errors.New("boom"), ErrProcessingError},
		{"nil error", nil, ErrProcessingError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsTimeout(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"timeout error", &PipelineError{Code: ErrTimeout}, true},
		{"parse error", &PipelineError{Code: ErrNoTitleFound}, false},
		{"processing error", &PipelineError{Code: ErrProcessingError}, false},
		{"regular error", errors.New("some error"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := IsTimeout(tt.err); result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestIsErrorRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"timeout error", &PipelineError{Code: ErrTimeout}, true},
		{"backend unavailable", &PipelineError{Code: ErrBackendUnavailable}, true},
		{"no title found", &PipelineError{Code: ErrNoTitleFound}, false},
		{"split mismatch", &PipelineError{Code: ErrSplitMismatch}, false},
		{"context cancelled error", &PipelineError{Code: ErrContextCancelled}, false},
		{"unknown code", &PipelineError{Code: "made_up"}, false},
		{"regular error", errors.New("some error"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := IsErrorRetryable(tt.err); result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}
}
