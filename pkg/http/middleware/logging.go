package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	xlogger "EstateDesk/pkg/logger"
)

// RequestLogging logs one debug line per request. Failures are logged by
// Metrics.
func RequestLogging(l *xlogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			l.Debug("http request",
				xlogger.String("method", req.Method),
				xlogger.String("uri", req.RequestURI),
				xlogger.String("remote_ip", c.RealIP()),
				xlogger.Int("status", c.Response().Status),
				xlogger.Duration("latency_ms", time.Since(start)))
			return nil
		}
	}
}
