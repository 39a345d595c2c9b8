package propagation

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrMissingTraceID is returned when a format's trace id header is absent.
	ErrMissingTraceID = errors.New("missing trace id")
	// ErrMissingSpanID is returned when a format's span id header is absent.
	ErrMissingSpanID = errors.New("missing span id")
	// ErrMissingHeader is returned when a single-header format finds no header.
	ErrMissingHeader = errors.New("missing header")
	// ErrMalformed is the cause of every parse error for present but invalid input.
	ErrMalformed = errors.New("malformed input")
)

// ParseError reports why a carrier could not be decoded. Use errors.Is with
// the sentinels above to classify it; Err holds the underlying cause.
type ParseError struct {
	Err    error
	Format string
	Reason string
	kind   error
}

func (e *ParseError) Error() string {
	if e.Err == nil || errors.Cause(e.Err) == e.kind {
		return fmt.Sprintf("%s: %s", e.Format, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Format, e.Reason, e.Err)
}

// Unwrap returns the cause.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is matches the error's class sentinel.
func (e *ParseError) Is(target error) bool {
	return e.kind != nil && target == e.kind
}

// malformed builds an ErrMalformed parse error; cause may be nil.
func malformed(format, reason string, cause error) error {
	if cause == nil {
		cause = ErrMalformed
	}
	return &ParseError{Format: format, Reason: reason, Err: errors.WithStack(cause), kind: ErrMalformed}
}

func missing(format string, sentinel error) error {
	return &ParseError{Format: format, Reason: sentinel.Error(), Err: errors.WithStack(sentinel), kind: sentinel}
}
