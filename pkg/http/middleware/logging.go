// Package middleware holds the Echo middleware for the ops server.
package middleware

import (
	"log"
	"time"

	"github.com/labstack/echo/v4"

	applogger "CoinSage/pkg/logger"
)

// RequestLogging logs one line per request. Paths in skip are left out of
// the log, which keeps metrics scrapes from flooding it.
func RequestLogging(l *applogger.Logger, skip ...string) echo.MiddlewareFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if skipped[req.URL.Path] {
				return next(c)
			}
			start := time.Now()

			err := next(c)

			if l != nil {
				l.Info("http request",
					applogger.String("method", req.Method),
					applogger.String("path", req.URL.Path),
					applogger.Int("status", c.Response().Status),
					applogger.Duration("duration_ms", time.Since(start)),
					applogger.String("remote", c.RealIP()),
				)
			} else {
				log.Printf("[%s] %s - %d (%s)",
					req.Method, req.URL.Path, c.Response().Status, time.Since(start))
			}
			return err
		}
	}
}
