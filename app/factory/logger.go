package factory

import (
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// NewModuleLogger returns a logger tagged with the owning module name.
func NewModuleLogger(module string) logrus.FieldLogger {
	return logrus.StandardLogger().WithField("module", module)
}

// LoggerWithContext enriches a logger with request-scoped fields taken
// from the echo context.
func LoggerWithContext(logger logrus.FieldLogger, ctx echo.Context) logrus.FieldLogger {
	if ctx == nil {
		return logger
	}

	fields := logrus.Fields{
		"method": ctx.Request().Method,
		"path":   ctx.Request().URL.Path,
	}

	requestID := ctx.Request().Header.Get(echo.HeaderXRequestID)
	if requestID == "" {
		requestID = ctx.Response().Header().Get(echo.HeaderXRequestID)
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}

	return logger.WithFields(fields)
}
