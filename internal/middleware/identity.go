package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// UserID returns the authenticated subject stored by JWTAuth, or "anon"
// when the request carries none.
func UserID(c echo.Context) string {
	if s, ok := c.Get(CtxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}

func formatID(n float64) string {
	return strconv.FormatUint(uint64(n), 10)
}
