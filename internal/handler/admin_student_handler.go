package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/service"
	"github.com/noah-isme/gema-exam-api/internal/utils"
)

// AdminStudentHandler exposes student management endpoints.
type AdminStudentHandler struct {
	students    service.AdminStudentService
	eligibility service.EligibilityService
	logger      zerolog.Logger
}

// NewAdminStudentHandler constructs the handler.
func NewAdminStudentHandler(students service.AdminStudentService, eligibility service.EligibilityService, logger zerolog.Logger) *AdminStudentHandler {
	return &AdminStudentHandler{
		students:    students,
		eligibility: eligibility,
		logger:      logger.With().Str("component", "admin_student_handler").Logger(),
	}
}

// Register attaches the routes.
func (h *AdminStudentHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("/allow-retake", h.allowRetake)
	router.Get("/:id", h.get)
	router.Get("/:id/results", h.results)
	router.Delete("/:id", h.delete)
}

func (h *AdminStudentHandler) list(c *fiber.Ctx) error {
	page, pageSize, err := pagination(c)
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	response, err := h.students.List(requestContext(c), dto.AdminStudentListRequest{
		Page:      page,
		PageSize:  pageSize,
		Search:    strings.TrimSpace(c.Query("search")),
		GroupCode: strings.TrimSpace(c.Query("group")),
	})
	if err != nil {
		return respondError(c, h.logger, err, "failed to list students")
	}
	return utils.OK(c, response.Items, "students retrieved", response.Pagination)
}

func (h *AdminStudentHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	student, err := h.students.Get(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load student")
	}
	return utils.OK(c, student, "student retrieved", nil)
}

func (h *AdminStudentHandler) results(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	page, pageSize, err := pagination(c)
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	response, err := h.students.Results(requestContext(c), id, dto.ResultListRequest{Page: page, PageSize: pageSize})
	if err != nil {
		return respondError(c, h.logger, err, "failed to list student results")
	}
	return utils.OK(c, response.Items, "results retrieved", response.Pagination)
}

func (h *AdminStudentHandler) allowRetake(c *fiber.Ctx) error {
	var payload dto.AllowRetakeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}

	response, err := h.eligibility.GrantRetake(requestContext(c), activityActorFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to grant retake")
	}
	return utils.OK(c, response, "retake granted", nil)
}

func (h *AdminStudentHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	if err := h.students.Delete(requestContext(c), activityActorFromContext(c), id); err != nil {
		return respondError(c, h.logger, err, "failed to delete student")
	}
	return utils.OK(c, nil, "student deleted", nil)
}
