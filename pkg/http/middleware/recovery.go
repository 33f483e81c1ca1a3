package middleware

import (
	"fmt"
	"log"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"

	applogger "CoinSage/pkg/logger"
)

// Recover turns a handler panic into a 500 so one bad probe cannot take the
// ops server down with it.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				if r := recover(); r != nil {
					err, ok := r.(error)
					if !ok {
						err = fmt.Errorf("%v", r)
					}
					if l != nil {
						l.Error("handler panic",
							applogger.String("path", c.Request().URL.Path),
							applogger.Error(err),
							applogger.String("stack", string(debug.Stack())),
						)
					} else {
						log.Printf("handler panic: %v\n%s", err, debug.Stack())
					}
					_ = c.JSON(http.StatusInternalServerError, map[string]interface{}{
						"status": "error",
						"error":  "internal server error",
					})
				}
			}()
			return next(c)
		}
	}
}
