package api

import (
	echo "github.com/labstack/echo/v5"
)

// securityHeaders returns middleware for an API whose responses carry PHI:
// no framing, no content-type sniffing, no referrer leakage, and no caching
// by intermediaries.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			return next(c)
		}
	}
}
