package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	aierrors "github.com/hrygo/recall/server/internal/errors"
	"github.com/hrygo/recall/server/internal/observability"
)

type ChatRequest struct {
	// ConversationID selects the conversation; empty chats without memory.
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

// Chat streams the model's reply as plain text, flushing every chunk.
// Errors before the first chunk are returned as JSON; after that the
// stream just ends.
// POST /api/v1/chat
func (s *APIV1Service) Chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, aierrors.InvalidArgument("malformed request body"))
	}

	ctx := c.Request().Context()
	reqCtx := observability.LoggerFromContext(ctx)
	reqCtx.ConversationID = req.ConversationID

	session, err := s.session(ctx, req.ConversationID)
	if err != nil {
		return respondError(c, err)
	}
	defer session.Release()

	reqCtx.Info("chat turn started", slog.Int(observability.LogFieldMessageLen, len(req.Message)))
	content, errs := session.HandleTurn(ctx, req.Message)

	res := c.Response()
	started := false
	for chunk := range content {
		if !started {
			res.Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
			res.Header().Set("X-Content-Type-Options", "nosniff")
			res.WriteHeader(http.StatusOK)
			started = true
		}
		// A failed write means the client left; the request context is
		// cancelled and the session stops on its own.
		if _, err := res.Write([]byte(chunk)); err == nil {
			res.Flush()
			s.RequestMetrics.RecordStreamChunk()
		}
	}

	if err := <-errs; err != nil {
		if !started {
			return respondError(c, err)
		}
		if aierrors.IsCode(err, aierrors.ErrCodeContextCanceled) {
			reqCtx.Debug("client left during chat stream",
				slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))
			return nil
		}
		reqCtx.Error("chat stream ended early", err,
			slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))
		return nil
	}

	reqCtx.Info("chat turn completed", slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))
	if !started {
		return c.String(http.StatusOK, "")
	}
	return nil
}
