package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

type apiBody struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Message string          `json:"message"`
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func asUser(id uint, role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id > 0 {
			c.Locals("user_id", id)
		}
		if role != "" {
			c.Locals("user_role", role)
		}
		return c.Next()
	}
}
