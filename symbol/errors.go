package symbol

import "errors"

// Error taxonomy (spec.md §7): kinds, not per-backend type names, so
// callers branch with errors.Is/errors.As instead of type-switching on
// backend internals.
var (
	ErrNotFound    = errors.New("symbol: no candidate produced a matching debug file")
	ErrInvalidInput = errors.New("symbol: invalid input")
	ErrUnsupported = errors.New("symbol: recognized but unsupported file variant")
)

// IDMismatchError is spec.md §7's IdMismatch(expected, actual): a file
// was found and parsed but its DebugId differs from what the caller
// asked for.
type IDMismatchError struct {
	Expected, Actual string
}

func (e *IDMismatchError) Error() string {
	return "symbol: debug id mismatch: expected " + e.Expected + ", got " + e.Actual
}

// ParseError is spec.md §7's Parse(format, detail): the file parsed as
// the expected format but structurally failed.
type ParseError struct {
	Format string
	Detail string
}

func (e *ParseError) Error() string {
	return "symbol: " + e.Format + " parse error: " + e.Detail
}

// HelperError is spec.md §7's HelperError(phase, cause): an IO callback
// (file read, HTTP fetch) indicated failure.
type HelperError struct {
	Phase string
	Cause error
}

func (e *HelperError) Error() string { return "symbol: " + e.Phase + ": " + e.Cause.Error() }
func (e *HelperError) Unwrap() error { return e.Cause }
