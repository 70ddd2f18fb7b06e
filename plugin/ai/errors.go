package ai

import (
	"errors"
)

var (
	// ErrTransport marks a failed or timed out call to the inference backend.
	// Callers decide whether to retry; nothing in this package does.
	ErrTransport = errors.New("inference transport failure")

	// ErrEmptyInput is returned when asked to embed empty text.
	ErrEmptyInput = errors.New("empty input")
)

// TransportError wraps a backend failure so that both ErrTransport and the
// underlying cause (context.DeadlineExceeded, *openai.APIError, ...) match errors.Is/As.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

func transportError(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// IsTransportError reports whether err came from the inference backend.
func IsTransportError(err error) bool {
	return errors.Is(err, ErrTransport)
}
