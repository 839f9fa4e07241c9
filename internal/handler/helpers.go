package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-tutor-analytics/internal/ingest"
	"github.com/noah-isme/gema-tutor-analytics/internal/middleware"
	"github.com/noah-isme/gema-tutor-analytics/internal/sentinel"
	"github.com/noah-isme/gema-tutor-analytics/internal/service"
	"github.com/noah-isme/gema-tutor-analytics/internal/utils"
)

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

// requestContext carries the correlation id into the service layer.
func requestContext(c *fiber.Ctx) context.Context {
	return service.WithCorrelationID(c.UserContext(), middleware.GetCorrelationID(c))
}

// respondError translates service errors. Denials carry only their category so
// responses never reveal whether out-of-scope data exists.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error, action string) error {
	var batchErr *ingest.BatchError
	switch {
	case errors.As(err, &batchErr):
		return utils.Fail(c, fiber.StatusBadRequest, "invalid input", batchErr.Errors)
	case errors.Is(err, sentinel.ErrInvalidInput):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, sentinel.ErrUnauthenticated):
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	case errors.Is(err, sentinel.ErrOutOfScope):
		return utils.SendError(c, fiber.StatusForbidden, "out of scope")
	case errors.Is(err, sentinel.ErrForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "forbidden")
	case errors.Is(err, sentinel.ErrNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "not found")
	case errors.Is(err, sentinel.ErrNoActiveSalt):
		return utils.SendError(c, fiber.StatusConflict, "no active salt; an operator must initialise or rotate the salt")
	case errors.Is(err, sentinel.ErrConflict):
		return utils.SendError(c, fiber.StatusConflict, "conflict")
	default:
		requestLogger(logger, c).Error().Err(err).Msg(action + " failed")
		return utils.SendError(c, fiber.StatusInternalServerError, action+" failed")
	}
}
