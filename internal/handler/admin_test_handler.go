package handler

import (
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/service"
	"github.com/noah-isme/gema-exam-api/internal/utils"
)

// AdminTestHandler exposes test authoring endpoints.
type AdminTestHandler struct {
	tests     service.TestService
	generator service.GeneratorService
	maxUpload int64
	logger    zerolog.Logger
}

// NewAdminTestHandler constructs the handler. maxUpload bounds generation documents.
func NewAdminTestHandler(tests service.TestService, generator service.GeneratorService, maxUpload int64, logger zerolog.Logger) *AdminTestHandler {
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &AdminTestHandler{
		tests:     tests,
		generator: generator,
		maxUpload: maxUpload,
		logger:    logger.With().Str("component", "admin_test_handler").Logger(),
	}
}

// Register attaches the routes. generateLimit guards the AI endpoint.
func (h *AdminTestHandler) Register(router fiber.Router, generateLimit fiber.Handler) {
	if generateLimit == nil {
		generateLimit = func(c *fiber.Ctx) error { return c.Next() }
	}
	router.Get("", h.list)
	router.Post("", h.create)
	router.Post("/generate-ai", generateLimit, h.generate)
	router.Get("/:id", h.get)
	router.Put("/:id", h.update)
	router.Put("/:id/groups", h.setGroups)
	router.Delete("/:id", h.delete)
}

func (h *AdminTestHandler) list(c *fiber.Ctx) error {
	page, pageSize, err := pagination(c)
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	response, err := h.tests.List(requestContext(c), dto.TestListRequest{
		Page:      page,
		PageSize:  pageSize,
		GroupCode: c.Query("group"),
	})
	if err != nil {
		return respondError(c, h.logger, err, "failed to list tests")
	}
	return utils.OK(c, response.Items, "tests retrieved", response.Pagination)
}

func (h *AdminTestHandler) create(c *fiber.Ctx) error {
	var payload dto.TestUpsertRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}

	test, err := h.tests.Create(requestContext(c), activityActorFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to create test")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "test created", test)
}

func (h *AdminTestHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	test, err := h.tests.Get(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load test")
	}
	return utils.OK(c, test, "test retrieved", nil)
}

func (h *AdminTestHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	var payload dto.TestUpsertRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}

	test, err := h.tests.Update(requestContext(c), activityActorFromContext(c), id, payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to update test")
	}
	return utils.OK(c, test, "test updated", nil)
}

func (h *AdminTestHandler) setGroups(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	var payload dto.TestGroupsRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}

	test, err := h.tests.SetGroups(requestContext(c), id, payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to assign groups")
	}
	return utils.OK(c, test, "groups updated", nil)
}

func (h *AdminTestHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	if err := h.tests.Delete(requestContext(c), activityActorFromContext(c), id); err != nil {
		return respondError(c, h.logger, err, "failed to delete test")
	}
	return utils.OK(c, nil, "test deleted", nil)
}

// generate accepts JSON, or multipart form fields with an optional file.
func (h *AdminTestHandler) generate(c *fiber.Ctx) error {
	var payload dto.GenerateTestRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}

	var document []byte
	if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		data, err := h.readDocument(c)
		if err != nil {
			return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
		}
		document = data
	}

	draft, err := h.generator.Generate(requestContext(c), payload, document)
	if err != nil {
		return respondError(c, h.logger, err, "failed to generate test")
	}
	return utils.OK(c, draft, "draft generated", nil)
}

func (h *AdminTestHandler) readDocument(c *fiber.Ctx) ([]byte, error) {
	header, err := c.FormFile("file")
	if err != nil {
		// no document attached
		return nil, nil
	}
	if header.Size > h.maxUpload {
		return nil, errors.New("document too large")
	}

	file, err := header.Open()
	if err != nil {
		return nil, errors.New("document could not be read")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		return nil, errors.New("document could not be read")
	}
	if int64(len(data)) > h.maxUpload {
		return nil, errors.New("document too large")
	}
	return data, nil
}
