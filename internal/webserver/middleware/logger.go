package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/logger"
)

// Logger logs every request once served.
func Logger(log logger.Logger) echo.MiddlewareFunc {
	log = log.WithPrefix("[http]")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// Renders the error so the logged status is the one sent.
				c.Error(err)
			}

			req := c.Request()
			log.Infof("%s %s %d %s", req.Method, req.URL.RequestURI(), c.Response().Status, time.Since(start).Round(time.Microsecond))
			return nil
		}
	}
}
