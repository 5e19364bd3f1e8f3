package server

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/freemember/internal/middleware"
)

// setupErrorHandling installs an error handler that logs unexpected errors
// with a stack trace. *echo.HTTPError values are answered as usual.
func setupErrorHandling(e *echo.Echo) {
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			if he.Internal != nil {
				middleware.FromContext(c.Request().Context()).Debug("Request failed",
					slog.Int("status", he.Code),
					slog.Any("error", he.Internal),
				)
			}
			e.DefaultHTTPErrorHandler(err, c)
			return
		}

		middleware.FromContext(c.Request().Context()).Error("Internal Server Error (Unhandled)",
			slog.Any("error", err),
			slog.String("stack_trace", string(debug.Stack())),
		)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(http.StatusInternalServerError)
			return
		}
		_ = c.String(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}
