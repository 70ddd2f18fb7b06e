package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/hrygo/recall/plugin/ai"
	"github.com/hrygo/recall/plugin/ai/agent"
	"github.com/hrygo/recall/plugin/ai/retrieval"
	"github.com/hrygo/recall/store"
)

func TestFromError(t *testing.T) {
	transport := &ai.TransportError{Op: "read chat stream", Err: errors.New("connection reset")}
	timedOut := &ai.TransportError{Op: "create embeddings", Err: context.DeadlineExceeded}

	tests := []struct {
		name   string
		err    error
		code   ErrorCode
		status int
	}{
		{"not found", pkgerrors.Wrapf(store.ErrNotFound, "conversation %s", "c1"), ErrCodeNotFound, http.StatusNotFound},
		{"corrupted", fmt.Errorf("load: %w", store.ErrCorrupted), ErrCodeCorrupted, http.StatusInternalServerError},
		{"not updated", store.ErrNotUpdated, ErrCodeNotUpdated, http.StatusConflict},
		{"invalid config", fmt.Errorf("%w: model is required", agent.ErrInvalidConfig), ErrCodeInvalidArgument, http.StatusBadRequest},
		{"inconsistent", retrieval.ErrDataInconsistency, ErrCodeDataInconsistency, http.StatusInternalServerError},
		{"transport", transport, ErrCodeTransportFailure, http.StatusBadGateway},
		{"timeout", timedOut, ErrCodeTimeout, http.StatusGatewayTimeout},
		{"canceled", context.Canceled, ErrCodeContextCanceled, 499},
		{"unknown", errors.New("boom"), ErrCodeInternal, http.StatusInternalServerError},
		{"already classified", fmt.Errorf("wrapped: %w", RateLimitExceeded("slow down")), ErrCodeRateLimitExceeded, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			aiErr := FromError(tt.err)
			assert.Equal(t, tt.code, aiErr.Code)
			assert.Equal(t, tt.status, aiErr.HTTPStatus())
			assert.True(t, IsCode(tt.err, tt.code))
		})
	}

	assert.Nil(t, FromError(nil))
}

func TestAIError(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(cause, ErrCodeInternal, "save failed").WithContext("conversation_id", "c1")

	assert.Equal(t, "[INTERNAL] save failed: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "c1", err.Context["conversation_id"])
	assert.Equal(t, "[NOT_FOUND] agent a1", NotFound("agent a1").Error())
}
