package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/apperrors"
	"github.com/noah-isme/gema-exam-api/internal/middleware"
	"github.com/noah-isme/gema-exam-api/internal/service"
	"github.com/noah-isme/gema-exam-api/internal/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseQueryUint(c *fiber.Ctx, key string) (uint, error) {
	value, err := parseQueryInt(c, key)
	if err != nil || value < 0 {
		return 0, errors.New("invalid " + key)
	}
	return uint(value), nil
}

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	value := c.Params(name)
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid identifier")
	}
	return uint(parsed), nil
}

// pagination reads page and page_size, applying defaults and the upper bound.
func pagination(c *fiber.Ctx) (int, int, error) {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return 0, 0, errors.New("invalid page")
	}
	if page <= 0 {
		page = 1
	}

	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return 0, 0, errors.New("invalid page size")
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	} else if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize, nil
}

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

func userNameFromContext(c *fiber.Ctx) string {
	if v, ok := c.Locals("user_name").(string); ok {
		return v
	}
	return ""
}

func activityActorFromContext(c *fiber.Ctx) service.ActivityActor {
	return service.ActivityActor{
		ID:   userIDFromContext(c),
		Name: userNameFromContext(c),
		Role: userRoleFromContext(c),
	}
}

func viewerFromContext(c *fiber.Ctx) service.Viewer {
	return service.Viewer{ID: userIDFromContext(c), Role: userRoleFromContext(c)}
}

// requestContext returns the user context carrying the correlation id.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

// respondError translates an error kind into its HTTP status.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error, fallback string) error {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return utils.Fail(c, fiber.StatusBadRequest, apperrors.Message(err), nil)
	case errors.Is(err, apperrors.ErrNotFound):
		return utils.Fail(c, fiber.StatusNotFound, apperrors.Message(err), nil)
	case errors.Is(err, apperrors.ErrConflict):
		return utils.Fail(c, fiber.StatusConflict, apperrors.Message(err), nil)
	case errors.Is(err, apperrors.ErrUnauthorized):
		return utils.Fail(c, fiber.StatusForbidden, apperrors.Message(err), nil)
	case errors.Is(err, apperrors.ErrUpstream):
		requestLogger(logger, c).Error().Err(err).Msg(fallback)
		return utils.Fail(c, fiber.StatusBadGateway, apperrors.Message(err), nil)
	default:
		requestLogger(logger, c).Error().Err(err).Msg(fallback)
		return utils.Fail(c, fiber.StatusInternalServerError, fallback, nil)
	}
}
