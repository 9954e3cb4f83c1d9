package extract

import "fmt"

// ErrorKind classifies extraction failures.
type ErrorKind string

// MalformedMarkup is the only extraction failure: input that cannot be
// treated as an HTML document at all.
const MalformedMarkup ErrorKind = "malformed_markup"

// Error is returned by Extract when parsing cannot proceed.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract: %s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract: %s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }
