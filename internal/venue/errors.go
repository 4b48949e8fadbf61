package venue

import (
	"errors"
	"fmt"
)

// Kind classifies a venue error for retry decisions.
type Kind int

const (
	// KindRetriable marks transient failures: timeouts, 5xx, rate limits.
	KindRetriable Kind = iota
	// KindFatal marks failures that will not succeed on retry.
	KindFatal
)

// Error wraps an upstream failure with its retry classification.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("venue: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retriable wraps err as a transient venue error.
func Retriable(op string, err error) *Error {
	return &Error{Kind: KindRetriable, Op: op, Err: err}
}

// Fatal wraps err as a permanent venue error.
func Fatal(op string, err error) *Error {
	return &Error{Kind: KindFatal, Op: op, Err: err}
}

// IsRetriable reports whether err should be retried with backoff.
// Unclassified errors default to retriable.
func IsRetriable(err error) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind == KindRetriable
	}
	return true
}
