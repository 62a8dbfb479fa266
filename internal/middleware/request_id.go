package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/novelshelf-backend/internal/reqctx"
)

const HeaderRequestID = "X-Request-ID"

// RequestID reuses an inbound X-Request-ID or mints one, echoes it back and
// stores it in the request context for service logs.
func RequestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		rid := c.Request().Header.Get(HeaderRequestID)
		if rid == "" || len(rid) > 128 {
			rid = uuid.NewString()
		}
		c.Response().Header().Set(HeaderRequestID, rid)
		c.SetRequest(c.Request().WithContext(reqctx.WithRequestID(c.Request().Context(), rid)))
		return next(c)
	}
}
