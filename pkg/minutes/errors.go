package minutes

import (
	"errors"

	mnerrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
)

// Parse failures. They are returned as the Cause of a *mnerrors.PipelineError,
// so callers can test for them with errors.Is.
var (
	// ErrNoTitleFound means the header anchor is absent or no preamble line
	// matches the header pattern.
	ErrNoTitleFound = errors.New("no title could be found in text")

	// ErrSplitMismatch means the session-opened announcement did not split the
	// text into exactly a preamble and a body.
	ErrSplitMismatch = errors.New("unable to split the text into preamble and debate items")

	// ErrMissingAttendeeBlock means the roster marker or the agenda marker is
	// absent from the preamble.
	ErrMissingAttendeeBlock = errors.New("no valid attendee block found")

	// ErrDuplicateItemTitle is only returned in strict title mode.
	ErrDuplicateItemTitle = errors.New("duplicate agenda item title")
)

var codes = map[error]mnerrors.ErrorCode{
	ErrNoTitleFound:         mnerrors.ErrNoTitleFound,
	ErrSplitMismatch:        mnerrors.ErrSplitMismatch,
	ErrMissingAttendeeBlock: mnerrors.ErrMissingAttendeeBlock,
	ErrDuplicateItemTitle:   mnerrors.ErrDuplicateItemTitle,
}

// fail wraps a sentinel into a coded pipeline error.
func fail(sentinel error, format string, args ...any) error {
	return mnerrors.New(codes[sentinel], mnerrors.StageParse, sentinel, format, args...)
}
