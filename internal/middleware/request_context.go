package middleware

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RequestContext gives every request a context derived from base that is
// canceled when base is canceled or after timeout. A zero timeout only
// inherits base.
func RequestContext(base context.Context, timeout time.Duration) fiber.Handler {
	if base == nil {
		base = context.Background()
	}
	return func(c *fiber.Ctx) error {
		var (
			ctx    context.Context
			cancel context.CancelFunc
		)
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(base, timeout)
		} else {
			ctx, cancel = context.WithCancel(base)
		}
		defer cancel()

		c.SetUserContext(ctx)
		return c.Next()
	}
}
