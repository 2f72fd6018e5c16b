package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ErrorHandler is the last-resort responder for errors no handler dealt with,
// such as malformed bodies, unknown routes or a panic caught by the recover
// middleware. The status comes from an *echo.HTTPError and defaults to 500.
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		status := http.StatusInternalServerError
		message := http.StatusText(status)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			} else if he.Message != nil {
				message = fmt.Sprint(he.Message)
			} else {
				message = http.StatusText(status)
			}
		} else if err != nil {
			message = err.Error()
		}

		logger.Error("An error occurred",
			zap.Error(err),
			zap.Int("status", status),
			zap.String("method", c.Request().Method),
			zap.String("path", c.Request().URL.Path),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))

		if c.Response().Committed {
			return
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, ErrorResponse{Status: status, Message: message})
		}
		if err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
	}
}
