package httpadapter

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/PabloGalante/tg-assistant/internal/observability"
)

const requestIDHeader = "X-Request-ID"

// withRequestID reuses an incoming X-Request-ID or mints one, and stores it
// in the request context for the logger.
func withRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(requestIDHeader, id)
			c.SetRequest(req.WithContext(observability.WithRequestID(req.Context(), id)))
			return next(c)
		}
	}
}

// withLogging logs every request.
func withLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			observability.LoggerFromContext(req.Context()).Info("http request",
				"method", req.Method,
				"path", c.Path(),
				"status", c.Response().Status,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return nil
		}
	}
}

func logPanic(c echo.Context, err error, stack []byte) error {
	observability.LoggerFromContext(c.Request().Context()).Error("handler panicked",
		"error", err,
		"stack", string(stack),
	)
	return err
}
