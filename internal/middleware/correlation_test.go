package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func jsonDecode(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

func TestCorrelationIDPropagation(t *testing.T) {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"local":   GetCorrelationID(c),
			"context": CorrelationIDFromContext(c.UserContext()),
		})
	})

	cases := []struct {
		name   string
		header string
		value  string
		reused bool
	}{
		{name: "correlation header", header: HeaderCorrelationID, value: "abc-123", reused: true},
		{name: "request id header", header: fiber.HeaderXRequestID, value: "req-9", reused: true},
		{name: "oversized", header: HeaderCorrelationID, value: strings.Repeat("x", 200)},
		{name: "whitespace", header: HeaderCorrelationID, value: "bad id"},
		{name: "missing"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)

			var body map[string]string
			require.NoError(t, jsonDecode(resp, &body))

			echoed := resp.Header.Get(HeaderCorrelationID)
			require.NotEmpty(t, echoed)
			require.Equal(t, echoed, body["local"])
			require.Equal(t, echoed, body["context"])
			if tc.reused {
				require.Equal(t, tc.value, echoed)
			} else {
				require.NotEqual(t, tc.value, echoed)
			}
		})
	}
}
