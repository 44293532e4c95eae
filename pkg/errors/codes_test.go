package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allCodes = []ErrorCode{
	ErrTimeout,
	ErrContextCancelled,
	ErrNoTitleFound,
	ErrSplitMismatch,
	ErrMissingAttendeeBlock,
	ErrDuplicateItemTitle,
	ErrExtractionFailed,
	ErrUnsupportedFormat,
	ErrEmptyContent,
	ErrContentTooLarge,
	ErrDuplicateContent,
	ErrBackendUnavailable,
	ErrStorage,
	ErrProcessingError,
}

func TestErrorCodeRegistry_Completeness(t *testing.T) {
	for _, code := range allCodes {
		t.Run(string(code), func(t *testing.T) {
			info, ok := ErrorCodeRegistry[code]
			assert.True(t, ok, "ErrorCode %s should be in registry", code)
			assert.Equal(t, code, info.Code, "Registry entry should have matching code")
			assert.NotEmpty(t, info.Description, "Description should not be empty")
			assert.NotEmpty(t, info.SuggestedAction, "SuggestedAction should not be empty")
		})
	}
	assert.Len(t, ErrorCodeRegistry, len(allCodes))
}

func TestIsRetryable_ErrorCode(t *testing.T) {
	retryable := map[ErrorCode]bool{
		ErrTimeout:            true,
		ErrBackendUnavailable: true,
	}

	for _, code := range allCodes {
		t.Run(string(code), func(t *testing.T) {
			assert.Equal(t, retryable[code], IsRetryable(code),
				"IsRetryable(%s) should be %v", code, retryable[code])
		})
	}
}

func TestGetSuggestedAction(t *testing.T) {
	for code := range ErrorCodeRegistry {
		action := GetSuggestedAction(code)
		assert.NotEmpty(t, action, "Code %s should have a suggested action", code)
		assert.True(t, len(action) > 10, "Action for %s should be meaningful (>10 chars)", code)
	}

	action := GetSuggestedAction("unknown_code")
	assert.Contains(t, action, "logs", "Unknown codes should suggest checking logs")
}

func TestGetDescription(t *testing.T) {
	assert.Contains(t, GetDescription(ErrNoTitleFound), "CONSEIL COMMUNAL DU")
	assert.Equal(t, "Unknown error", GetDescription("unknown_code"))
}
