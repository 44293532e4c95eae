// Package errors holds the error vocabulary shared by the minutes packages.
//
// Two layers live here. Plain sentinels describe repository and archive
// conditions (a missing job, a duplicate document, an archive that fails its
// schema). PipelineError and the code registry describe why one document
// failed to become a meeting record during parse or ingest.
//
//	import mnerrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
//
//	if mnerrors.IsAlreadyExists(err) {
//	    // the document was stored by an earlier run
//	}
package errors

import "errors"

var (
	// ErrNotFound: no meeting, job or index document with that ID.
	ErrNotFound = errors.New("not found")

	// ErrValidation: a record or archive failed validation before it was written or read.
	ErrValidation = errors.New("validation error")

	// ErrAlreadyExists: a meeting with the same content hash is already stored.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState: the job cannot move to the requested status.
	ErrInvalidState = errors.New("invalid state")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports whether err wraps ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsAlreadyExists reports whether err wraps ErrAlreadyExists.
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

// IsInvalidState reports whether err wraps ErrInvalidState.
func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }
