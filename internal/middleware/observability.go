package middleware

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/observability"
)

// Observability records Prometheus metrics and one structured log line per API request.
// The acting user id is logged when authentication populated it.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if !strings.HasPrefix(c.Path(), "/api/") {
			return err
		}

		duration := time.Since(start)
		route := metricRoute(c)
		method := c.Method()
		status := c.Response().StatusCode()
		if err != nil {
			// the error handler has not run yet, so report what it will send
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				status = fiberErr.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		statusLabel := strconv.Itoa(status)

		observability.HTTPRequests().WithLabelValues(method, route, statusLabel).Inc()
		observability.HTTPLatency().WithLabelValues(method, route).Observe(duration.Seconds())
		if status >= fiber.StatusBadRequest {
			observability.HTTPErrors().WithLabelValues(method, route, statusLabel).Inc()
		}

		event := logger.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			event = logger.Error().Err(err)
		case status >= fiber.StatusBadRequest:
			event = logger.Warn()
		}
		event = event.
			Str("correlation_id", GetCorrelationID(c)).
			Str("route", route).
			Str("method", method).
			Int("status", status).
			Dur("latency", duration).
			Bool("slow", duration > slowRequestThreshold)
		if userID, ok := c.Locals(LocalUserID).(uint); ok && userID > 0 {
			event = event.Uint("user_id", userID)
		}
		event.Msg("request completed")

		return err
	}
}

// slowRequestThreshold marks requests worth a closer look in the logs.
const slowRequestThreshold = 500 * time.Millisecond

// metricRoute labels by the matched route pattern so ids do not explode cardinality.
func metricRoute(c *fiber.Ctx) string {
	if route := c.Route(); route != nil && route.Path != "" && route.Path != "/" {
		return route.Path
	}
	return c.Path()
}
