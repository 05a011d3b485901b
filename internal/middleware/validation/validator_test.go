package validation

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanQuestion(t *testing.T) {
	got, err := CleanQuestion("  מה עושים באזעקה?\x00 ", 100)
	require.NoError(t, err)
	assert.Equal(t, "מה עושים באזעקה?", got)

	got, err = CleanQuestion("How do I select a shelter?", 100)
	require.NoError(t, err)
	assert.Equal(t, "How do I select a shelter?", got)

	_, err = CleanQuestion("   ", 100)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = CleanQuestion(strings.Repeat("א", 11), 10)
	assert.ErrorIs(t, err, ErrTooLong)

	_, err = CleanQuestion("<script>alert(1)</script>", 100)
	assert.ErrorIs(t, err, ErrUnsafeInput)
}

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(Middleware(Config{MaxQuestionLength: 50}))
	handler := func(c *fiber.Ctx) error {
		text, _ := c.Locals("clean_text").(string)
		return c.SendString(text)
	}
	app.Post("/api/v1/ask", handler)
	app.Post("/api/v1/chat", handler)
	app.Get("/api/v1/health", handler)
	return app
}

func post(t *testing.T, app *fiber.App, path, body, contentType string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	resp, err := app.Test(req)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestMiddleware(t *testing.T) {
	app := newApp()

	status, body := post(t, app, "/api/v1/ask", `{"question":"  What is a shelter? "}`, "application/json")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "What is a shelter?", body)

	status, body = post(t, app, "/api/v1/chat", `{"message":"","sessionId":"s"}`, "application/json")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body, "message")

	status, _ = post(t, app, "/api/v1/ask", `{"question":1}`, "application/json")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = post(t, app, "/api/v1/ask", `not json`, "application/json")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = post(t, app, "/api/v1/ask", `question=x`, "text/plain")
	assert.Equal(t, fiber.StatusUnsupportedMediaType, status)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
