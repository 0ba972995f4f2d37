package envelope

import "errors"

var (
	// ErrNotFound means the envelope file does not exist. Callers decide
	// whether absence means "start empty" or a hard error.
	ErrNotFound = errors.New("envelope not found")

	// ErrCorrupt means the file failed authentication or did not decode.
	// The file is left untouched.
	ErrCorrupt = errors.New("envelope corrupt")

	// ErrStorage wraps filesystem failures while reading or writing.
	ErrStorage = errors.New("envelope storage failure")

	// ErrSkipWrite may be returned from an Update mutation to leave the file
	// as it is without reporting an error.
	ErrSkipWrite = errors.New("skip write")
)
