package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/middleware"
	"github.com/noah-isme/gema-exam-api/internal/service"
	"github.com/noah-isme/gema-exam-api/internal/utils"
)

// LiveHandler wires the live monitoring websocket and presence queries.
type LiveHandler struct {
	service service.LiveSessionService
	logger  zerolog.Logger
}

// NewLiveHandler creates a live handler instance.
func NewLiveHandler(live service.LiveSessionService, logger zerolog.Logger) *LiveHandler {
	return &LiveHandler{
		service: live,
		logger:  logger.With().Str("component", "live_handler").Logger(),
	}
}

// Register binds live routes. adminOnly guards the presence listing.
func (h *LiveHandler) Register(router fiber.Router, adminOnly fiber.Handler) {
	if adminOnly == nil {
		adminOnly = func(c *fiber.Ctx) error { return c.Next() }
	}
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", requestContext(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
	router.Get("/online-students", adminOnly, h.onlineStudents)
}

func (h *LiveHandler) handleConnection(conn *websocket.Conn) {
	userID := websocketUserID(conn)
	if userID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user id missing"))
		_ = conn.Close()
		return
	}

	role := strings.ToLower(fmt.Sprint(conn.Locals("user_role")))
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	name, _ := conn.Locals("user_name").(string)
	if queried := strings.TrimSpace(conn.Query("name")); queried != "" {
		name = queried
	}

	opts := service.LiveConnectionOptions{
		UserID:  userID,
		Role:    role,
		Name:    name,
		Group:   strings.TrimSpace(conn.Query("group")),
		Context: baseCtx,
	}

	logger := h.logger.With().Uint("user_id", userID).Str("role", role).Str("correlation_id", middleware.CorrelationIDFromContext(baseCtx)).Logger()
	logger.Info().Msg("live websocket connected")
	h.service.ServeConnection(conn, opts)
	logger.Info().Msg("live websocket disconnected")
}

func (h *LiveHandler) onlineStudents(c *fiber.Ctx) error {
	entries := h.service.OnlineStudents()
	return utils.OK(c, entries, "online students retrieved", fiber.Map{"count": len(entries)})
}

func websocketUserID(conn *websocket.Conn) uint {
	switch v := conn.Locals("user_id").(type) {
	case uint:
		return v
	case int:
		if v > 0 {
			return uint(v)
		}
	case float64:
		if v > 0 {
			return uint(v)
		}
	}
	return 0
}
