package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/middleware"
	"github.com/noah-isme/gema-exam-api/internal/service"
	"github.com/noah-isme/gema-exam-api/internal/utils"
)

// ResultHandler serves stored results to students and admins.
type ResultHandler struct {
	results service.ResultService
	logger  zerolog.Logger
}

// NewResultHandler constructs the handler.
func NewResultHandler(results service.ResultService, logger zerolog.Logger) *ResultHandler {
	return &ResultHandler{
		results: results,
		logger:  logger.With().Str("component", "result_handler").Logger(),
	}
}

// Register attaches the caller-scoped listing, guarded by studentOnly, and the
// detail route, which any authenticated user may reach.
func (h *ResultHandler) Register(router fiber.Router, studentOnly fiber.Handler) {
	if studentOnly == nil {
		studentOnly = func(c *fiber.Ctx) error { return c.Next() }
	}
	router.Get("/me", studentOnly, h.listMine)
	router.Get("/:id", middleware.WithAuth(h.get, middleware.AuthOptions{RequireUser: true}))
}

// RegisterAdmin attaches the unrestricted listing.
func (h *ResultHandler) RegisterAdmin(router fiber.Router) {
	router.Get("", h.list)
}

func (h *ResultHandler) listMine(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.Fail(c, fiber.StatusUnauthorized, "missing user context", nil)
	}
	page, pageSize, err := pagination(c)
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	testID, err := parseQueryUint(c, "test_id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	response, err := h.results.ListMine(requestContext(c), userID, dto.ResultListRequest{
		Page:     page,
		PageSize: pageSize,
		TestID:   testID,
	})
	if err != nil {
		return respondError(c, h.logger, err, "failed to list results")
	}
	return utils.OK(c, response.Items, "results retrieved", response.Pagination)
}

func (h *ResultHandler) list(c *fiber.Ctx) error {
	page, pageSize, err := pagination(c)
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	testID, err := parseQueryUint(c, "test_id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	userID, err := parseQueryUint(c, "student_id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	response, err := h.results.List(requestContext(c), dto.ResultListRequest{
		Page:     page,
		PageSize: pageSize,
		TestID:   testID,
		UserID:   userID,
	})
	if err != nil {
		return respondError(c, h.logger, err, "failed to list results")
	}
	return utils.OK(c, response.Items, "results retrieved", response.Pagination)
}

func (h *ResultHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	result, err := h.results.Get(requestContext(c), viewerFromContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load result")
	}
	return utils.OK(c, result, "result retrieved", nil)
}
