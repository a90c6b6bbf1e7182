package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/service"
	"github.com/noah-isme/gema-exam-api/internal/utils"
)

// StudentTestHandler exposes the student side of a test attempt.
type StudentTestHandler struct {
	tests       service.TestService
	submissions service.SubmissionService
	eligibility service.EligibilityService
	logger      zerolog.Logger
}

// NewStudentTestHandler constructs the handler.
func NewStudentTestHandler(tests service.TestService, submissions service.SubmissionService, eligibility service.EligibilityService, logger zerolog.Logger) *StudentTestHandler {
	return &StudentTestHandler{
		tests:       tests,
		submissions: submissions,
		eligibility: eligibility,
		logger:      logger.With().Str("component", "student_test_handler").Logger(),
	}
}

// Register attaches the routes. submitLimit guards the submit endpoint.
func (h *StudentTestHandler) Register(router fiber.Router, submitLimit fiber.Handler) {
	if submitLimit == nil {
		submitLimit = func(c *fiber.Ctx) error { return c.Next() }
	}
	router.Get("", h.list)
	router.Get("/:id/take", h.take)
	router.Get("/:id/eligibility", h.eligibilityStatus)
	router.Post("/:id/start", h.start)
	router.Post("/:id/submit", submitLimit, h.submit)
	router.Post("/:id/clear-retake", h.clearRetake)
}

func (h *StudentTestHandler) list(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.Fail(c, fiber.StatusUnauthorized, "missing user context", nil)
	}

	tests, err := h.tests.ListForStudent(requestContext(c), userID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to list tests")
	}
	return utils.OK(c, tests, "tests retrieved", nil)
}

func (h *StudentTestHandler) take(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.Fail(c, fiber.StatusUnauthorized, "missing user context", nil)
	}
	testID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	test, err := h.tests.Take(requestContext(c), userID, testID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load test")
	}
	return utils.OK(c, test, "test retrieved", nil)
}

func (h *StudentTestHandler) eligibilityStatus(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.Fail(c, fiber.StatusUnauthorized, "missing user context", nil)
	}
	testID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	status, err := h.eligibility.Status(requestContext(c), userID, testID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to read eligibility")
	}
	return utils.OK(c, status, "eligibility retrieved", nil)
}

func (h *StudentTestHandler) start(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.Fail(c, fiber.StatusUnauthorized, "missing user context", nil)
	}
	testID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	attempt, err := h.submissions.Start(requestContext(c), userID, testID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to start test")
	}
	return utils.OK(c, attempt, "test started", nil)
}

func (h *StudentTestHandler) submit(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.Fail(c, fiber.StatusUnauthorized, "missing user context", nil)
	}
	testID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	var payload dto.SubmitTestRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}

	result, err := h.submissions.Submit(requestContext(c), userID, testID, payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to submit test")
	}

	requestLogger(h.logger, c).Info().
		Uint("user_id", userID).
		Uint("test_id", testID).
		Int("percentage", result.Percentage).
		Msg("test submitted")
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "test submitted", result)
}

func (h *StudentTestHandler) clearRetake(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.Fail(c, fiber.StatusUnauthorized, "missing user context", nil)
	}
	testID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	status, err := h.eligibility.ClearRetake(requestContext(c), userID, testID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to clear retake")
	}
	return utils.OK(c, status, "retake cleared", nil)
}
