package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/hrygo/recall/plugin/ai"
	"github.com/hrygo/recall/plugin/ai/agent"
	"github.com/hrygo/recall/plugin/ai/retrieval"
	"github.com/hrygo/recall/store"
)

// ErrorCode represents a specific error type returned by the API.
type ErrorCode string

const (
	// ErrCodeNotFound indicates an unknown conversation or agent.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeCorrupted indicates stored data that could not be decoded.
	ErrCodeCorrupted ErrorCode = "CORRUPTED"
	// ErrCodeTransportFailure indicates the model backend failed or timed out.
	ErrCodeTransportFailure ErrorCode = "TRANSPORT_FAILURE"
	// ErrCodeDataInconsistency indicates embeddings and messages that do not line up.
	ErrCodeDataInconsistency ErrorCode = "DATA_INCONSISTENCY"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeNotUpdated indicates an update that changed nothing.
	ErrCodeNotUpdated ErrorCode = "NOT_UPDATED"
	// ErrCodeContextCanceled indicates the operation was canceled.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeRateLimitExceeded indicates rate limit has been exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeInternal is everything else.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// AIError represents a structured API error.
type AIError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Cause   error          `json:"-"`
	Context map[string]any `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *AIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AIError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *AIError) WithContext(key string, value any) *AIError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// HTTPStatus maps the error code to a response status.
func (e *AIError) HTTPStatus() int {
	return HTTPStatus(e.Code)
}

// HTTPStatus maps an error code to a response status.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case ErrCodeNotUpdated:
		return http.StatusConflict
	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrCodeTransportFailure:
		return http.StatusBadGateway
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeContextCanceled:
		// nginx's "client closed request"
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// Convenience constructors for common error types.

// NotFound creates a not found error.
func NotFound(msg string) *AIError {
	return &AIError{Code: ErrCodeNotFound, Message: msg}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *AIError {
	return &AIError{Code: ErrCodeInvalidArgument, Message: msg}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *AIError {
	return &AIError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *AIError {
	return &AIError{Code: code, Message: msg, Cause: cause}
}

// FromError classifies err. An *AIError anywhere in the chain is returned as is.
func FromError(err error) *AIError {
	if err == nil {
		return nil
	}
	var aiErr *AIError
	if stderrors.As(err, &aiErr) {
		return aiErr
	}

	switch {
	case stderrors.Is(err, store.ErrNotFound):
		return Wrap(err, ErrCodeNotFound, "not found")
	case stderrors.Is(err, store.ErrCorrupted):
		return Wrap(err, ErrCodeCorrupted, "stored data is corrupted")
	case stderrors.Is(err, store.ErrNotUpdated):
		return Wrap(err, ErrCodeNotUpdated, "nothing to update")
	case stderrors.Is(err, agent.ErrInvalidConfig), stderrors.Is(err, ai.ErrEmptyInput):
		return Wrap(err, ErrCodeInvalidArgument, "invalid argument")
	case stderrors.Is(err, retrieval.ErrDataInconsistency):
		return Wrap(err, ErrCodeDataInconsistency, "conversation data is inconsistent")
	// Timeouts and cancellation are checked before transport because
	// backend errors wrap the context error that caused them.
	case stderrors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "operation timed out")
	case stderrors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeContextCanceled, "operation canceled")
	case stderrors.Is(err, ai.ErrTransport):
		return Wrap(err, ErrCodeTransportFailure, "model backend failed")
	default:
		return Wrap(err, ErrCodeInternal, "internal error")
	}
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	aiErr := FromError(err)
	return aiErr != nil && aiErr.Code == code
}
