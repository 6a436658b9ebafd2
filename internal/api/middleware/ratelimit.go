package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
)

// RateLimit applies a per-client-IP limit using the given limiter. Responses
// carry X-RateLimit-* headers; callers over the limit get 429.
func RateLimit(l *limiter.Limiter) echo.MiddlewareFunc {
	return echo.WrapMiddleware(stdlibmw.NewMiddleware(l).Handler)
}
