package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/logger"
	"github.com/mdouchement/modelshuttle/internal/storeerr"
	"github.com/mdouchement/modelshuttle/internal/webserver/weberror"
)

// NewHTTPErrorHandler is a middleware that formats rendered errors.
// Errors carrying a store kind are rendered with the kind's status.
func NewHTTPErrorHandler(log logger.Logger) func(err error, c echo.Context) {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var werr *weberror.Error
		switch e := err.(type) {
		case *echo.HTTPError:
			werr = &weberror.Error{Code: e.Code, Message: http.StatusText(e.Code)}
			if msg, ok := e.Message.(string); ok {
				werr.Message = msg
			}
		case *weberror.Error:
			werr = e
		default:
			werr = &weberror.Error{
				Code:    weberror.StatusCode(err),
				Message: err.Error(),
			}
			if kind := storeerr.KindOf(err); kind != storeerr.Unknown {
				werr.Kind = kind.String()
			}
		}

		if werr.Code >= http.StatusInternalServerError {
			log.Error(err)
		} else {
			log.Debug(err)
		}

		if err2 := c.JSON(werr.Code, werr); err2 != nil {
			log.Errorf("HTTPErrorHandler: %s", err2)
		}
	}
}
