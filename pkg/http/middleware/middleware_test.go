// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/go-arcade/aps/pkg/shutdown"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestRequestMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(RequestMiddleware())
	app.Get("/test", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("request_id").(string))
	})

	req := httptest.NewRequest(fiber.MethodGet, "/test", nil)
	req.Header.Set(HeaderRequestID, "existing-request-id")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "existing-request-id", resp.Header.Get(HeaderRequestID))

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/test", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))
}

func TestUnifiedResponseMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(UnifiedResponseMiddleware())
	app.Get("/detail", func(c *fiber.Ctx) error {
		c.Locals(DETAIL, fiber.Map{"sessionId": "s-1"})
		return nil
	})
	app.Delete("/op", func(c *fiber.Ctx) error {
		c.Locals(OPERATION, "delete session")
		return nil
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/detail", nil))
	require.NoError(t, err)
	body := decode(t, resp.Body)
	assert.EqualValues(t, 200, body["code"])
	assert.Equal(t, "s-1", body["detail"].(map[string]any)["sessionId"])

	resp, err = app.Test(httptest.NewRequest(fiber.MethodDelete, "/op", nil))
	require.NoError(t, err)
	body = decode(t, resp.Body)
	assert.Equal(t, "success", body["msg"])
	assert.NotContains(t, body, "detail")
}

func TestExceptionMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(ExceptionMiddleware)
	app.Get("/panic", func(c *fiber.Ctx) error {
		panic("boom")
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/panic", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	body := decode(t, resp.Body)
	assert.Equal(t, "/panic", body["path"])
}

func TestShutdownMiddleware(t *testing.T) {
	m := shutdown.NewManager()
	app := fiber.New()
	app.Use(ShutdownMiddleware(m))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	m.Shutdown()
	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestRealIPMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(RealIPMiddleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(c.Locals("ip").(string)) })

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.7, 10.0.0.1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "10.0.0.7", string(b))
}

func TestIsExcluded(t *testing.T) {
	assert.True(t, isExcluded("/health"))
	assert.True(t, isExcluded("/health/engine"))
	assert.True(t, isExcluded("/metrics"))
	assert.False(t, isExcluded("/api/v1/sessions"))
}
