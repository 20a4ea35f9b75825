package transcode

import (
	"errors"
	"fmt"
)

// ErrMalformedInput matches every *MalformedInputError with errors.Is.
var ErrMalformedInput = errors.New("malformed input")

// MalformedInputError reports markup that is not well formed.
type MalformedInputError struct {
	// Line is the 1-based input line where decoding stopped.
	Line int

	// Offset is the byte offset where decoding stopped.
	Offset int64

	// Err is the underlying decoder error.
	Err error
}

// Error implements the error interface.
func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("transcode: malformed input at line %d (offset %d): %v", e.Line, e.Offset, e.Err)
}

// Unwrap returns the underlying decoder error.
func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrMalformedInput.
func (e *MalformedInputError) Is(target error) bool {
	return target == ErrMalformedInput
}
