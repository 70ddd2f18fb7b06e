package observability

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Middleware attaches a RequestContext to every request, echoes its request
// ID back and records the outcome in metrics.
func Middleware(logger *slog.Logger, metrics *Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = generateRequestID()
			}

			reqCtx := NewRequestContextWithID(logger, requestID, c.Path())
			reqCtx.ConversationID = c.Param("uid")
			c.SetRequest(req.WithContext(WithRequestContext(req.Context(), reqCtx)))
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			if err := next(c); err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			metrics.RecordRequest(reqCtx.Route, reqCtx.Duration(), status >= http.StatusInternalServerError)

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.Int(LogFieldStatus, status),
				slog.Int64(LogFieldDuration, reqCtx.DurationMs()),
			}
			if status >= http.StatusInternalServerError {
				reqCtx.Warn("request failed", attrs...)
			} else {
				reqCtx.Debug("request finished", attrs...)
			}
			return nil
		}
	}
}
