package errors

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Retryable       bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
// Parse failures are deterministic in their input and never retryable.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	ErrTimeout: {
		Code:            ErrTimeout,
		Retryable:       true,
		Description:     "Operation exceeded time limit",
		SuggestedAction: "Raise the timeout: minutes ingest --timeout 10m, or set timeout in config.yaml",
	},
	ErrContextCancelled: {
		Code:            ErrContextCancelled,
		Retryable:       false,
		Description:     "Operation cancelled by user or system",
		SuggestedAction: "Check if cancellation was intentional, then re-run the batch",
	},
	ErrNoTitleFound: {
		Code:            ErrNoTitleFound,
		Retryable:       false,
		Description:     "No 'CONSEIL COMMUNAL DU <day> <date>' header line was found",
		SuggestedAction: "Inspect the extracted text: minutes parse <file> --debug",
	},
	ErrSplitMismatch: {
		Code:            ErrSplitMismatch,
		Retryable:       false,
		Description:     "The 'La séance est ouverte à' announcement did not split the text into preamble and body",
		SuggestedAction: "Check the document contains exactly one session-opened announcement",
	},
	ErrMissingAttendeeBlock: {
		Code:            ErrMissingAttendeeBlock,
		Retryable:       false,
		Description:     "The 'Sont présents : ' roster or the 'ORDRE DU JOUR' marker is missing from the preamble",
		SuggestedAction: "Inspect the preamble of the extracted text: minutes parse <file> --debug",
	},
	ErrDuplicateItemTitle: {
		Code:            ErrDuplicateItemTitle,
		Retryable:       false,
		Description:     "Two agenda items share the same title (strict titles enabled)",
		SuggestedAction: "Disable strict_titles to keep the last item, or fix the source document",
	},
	ErrExtractionFailed: {
		Code:            ErrExtractionFailed,
		Retryable:       false,
		Description:     "Text extraction from the source document failed",
		SuggestedAction: "Verify pdftotext is installed (poppler-utils) and the PDF is not encrypted",
	},
	ErrUnsupportedFormat: {
		Code:            ErrUnsupportedFormat,
		Retryable:       false,
		Description:     "File extension is not a supported document format",
		SuggestedAction: "Only .pdf and .txt files are ingested; remove or convert the file",
	},
	ErrEmptyContent: {
		Code:            ErrEmptyContent,
		Retryable:       false,
		Description:     "Extracted text is empty",
		SuggestedAction: "The PDF may be a scanned image; run OCR before ingesting",
	},
	ErrContentTooLarge: {
		Code:            ErrContentTooLarge,
		Retryable:       false,
		Description:     "Document exceeds maximum size limit",
		SuggestedAction: "Split the document or raise max_file_size in config.yaml",
	},
	ErrDuplicateContent: {
		Code:            ErrDuplicateContent,
		Retryable:       false,
		Description:     "Document text already processed in this batch (duplicate hash)",
		SuggestedAction: "This is expected for duplicate documents; no action needed",
	},
	ErrBackendUnavailable: {
		Code:            ErrBackendUnavailable,
		Retryable:       true,
		Description:     "Database or Redis backend unavailable",
		SuggestedAction: "Check connectivity: minutes config show, then verify database.dsn and redis.addr",
	},
	ErrStorage: {
		Code:            ErrStorage,
		Retryable:       false,
		Description:     "Persisting the meeting record failed",
		SuggestedAction: "Apply migrations: minutes db migrate",
	},
	ErrProcessingError: {
		Code:            ErrProcessingError,
		Retryable:       false,
		Description:     "Unclassified processing error",
		SuggestedAction: "Check logs: re-run with --debug for the full error chain",
	},
}

// IsRetryable returns true if the given error code represents a transient, retryable error.
func IsRetryable(code ErrorCode) bool {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Retryable
	}
	return false
}

// GetSuggestedAction returns the suggested action for the given error code.
func GetSuggestedAction(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.SuggestedAction
	}
	return "Check logs for more details: re-run with --debug"
}

// GetDescription returns the human-readable description for the given error code.
func GetDescription(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Description
	}
	return "Unknown error"
}
