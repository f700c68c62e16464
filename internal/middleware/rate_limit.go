package middleware

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// RateLimit throttles requests per authenticated user, falling back to the client IP
// for anonymous callers. identifier namespaces the counters of one route group.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}
	retryAfter := strconv.Itoa(int(math.Ceil(window.Seconds())))

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return fmt.Sprintf("%s:%s", identifier, rateLimitSubject(c))
		},
		LimitReached: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderRetryAfter, retryAfter)
			return utils.SendError(c, fiber.StatusTooManyRequests, "too many requests")
		},
	})
}

func rateLimitSubject(c *fiber.Ctx) string {
	if id, ok := c.Locals(LocalUserID).(uint); ok && id > 0 {
		return "user:" + strconv.FormatUint(uint64(id), 10)
	}
	return "ip:" + c.IP()
}
