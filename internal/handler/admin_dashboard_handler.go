package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/service"
	"github.com/noah-isme/gema-exam-api/internal/utils"
)

// AdminDashboardHandler serves the aggregate dashboard.
type AdminDashboardHandler struct {
	dashboard service.DashboardService
	logger    zerolog.Logger
}

// NewAdminDashboardHandler constructs the handler.
func NewAdminDashboardHandler(dashboard service.DashboardService, logger zerolog.Logger) *AdminDashboardHandler {
	return &AdminDashboardHandler{
		dashboard: dashboard,
		logger:    logger.With().Str("component", "admin_dashboard_handler").Logger(),
	}
}

// Register attaches the routes.
func (h *AdminDashboardHandler) Register(router fiber.Router) {
	router.Get("", h.get)
}

func (h *AdminDashboardHandler) get(c *fiber.Ctx) error {
	response, err := h.dashboard.GetDashboard(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load dashboard")
	}
	return utils.OK(c, response, "dashboard retrieved", nil)
}
