package handler_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assessment-api/internal/config"
	"github.com/noah-isme/gema-assessment-api/internal/handler"
)

func TestHealthCheck(t *testing.T) {
	cfg := config.Config{AppName: "GEMA Assessment API", AppEnv: "test"}

	app := fiber.New()
	app.Get("/api/v1/health", handler.HealthCheck(cfg, handler.HealthProbe{
		Name:  "database",
		Check: func(context.Context) error { return nil },
	}))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/health", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload envelope[handler.HealthResponse]
	decodeResponse(t, resp, &payload)
	require.True(t, payload.Success)
	require.Equal(t, "ok", payload.Data.Status)
	require.Equal(t, cfg.AppName, payload.Data.Service)
	require.Equal(t, cfg.AppEnv, payload.Data.Environment)
	require.Equal(t, map[string]string{"database": "up"}, payload.Data.Components)
	require.WithinDuration(t, time.Now().UTC(), payload.Data.Timestamp, 2*time.Second)
}

func TestHealthCheckReportsDegradedComponent(t *testing.T) {
	app := fiber.New()
	app.Get("/health", handler.HealthCheck(config.Config{AppName: "GEMA Assessment API"},
		handler.HealthProbe{Name: "database", Check: func(context.Context) error { return nil }},
		handler.HealthProbe{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	))

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var payload envelope[handler.HealthResponse]
	decodeResponse(t, resp, &payload)
	require.Equal(t, "degraded", payload.Data.Status)
	require.Equal(t, "up", payload.Data.Components["database"])
	require.Equal(t, "down: connection refused", payload.Data.Components["redis"])
}
