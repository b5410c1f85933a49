package utils

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func envelopeFor(t *testing.T, handler fiber.Handler) (int, APIResponse) {
	t.Helper()

	app := fiber.New()
	app.Get("/", handler)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var envelope APIResponse
	require.NoError(t, json.Unmarshal(body, &envelope))
	return resp.StatusCode, envelope
}

func TestSendSuccessEnvelope(t *testing.T) {
	status, envelope := envelopeFor(t, func(c *fiber.Ctx) error {
		return SendSuccess(c, "graded", map[string]int{"grade": 80})
	})

	require.Equal(t, http.StatusOK, status)
	require.True(t, envelope.Success)
	require.Equal(t, "graded", envelope.Message)
	require.NotNil(t, envelope.Data)
}

func TestSendCreatedStatus(t *testing.T) {
	status, envelope := envelopeFor(t, func(c *fiber.Ctx) error {
		return SendCreated(c, "session started", map[string]string{"id": "s-1"})
	})

	require.Equal(t, http.StatusCreated, status)
	require.True(t, envelope.Success)
}

func TestSendErrorOmitsData(t *testing.T) {
	status, envelope := envelopeFor(t, func(c *fiber.Ctx) error {
		return SendError(c, http.StatusNotFound, "risk report not ready")
	})

	require.Equal(t, http.StatusNotFound, status)
	require.False(t, envelope.Success)
	require.Nil(t, envelope.Data)
	require.Equal(t, "risk report not ready", envelope.Message)
}
