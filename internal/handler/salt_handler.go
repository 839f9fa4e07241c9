package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-tutor-analytics/internal/middleware"
	"github.com/noah-isme/gema-tutor-analytics/internal/service"
	"github.com/noah-isme/gema-tutor-analytics/internal/utils"
)

// SaltHandler exposes salt rotation to privacy operators.
type SaltHandler struct {
	service service.SaltService
	logger  zerolog.Logger
}

// NewSaltHandler constructs a salt handler.
func NewSaltHandler(service service.SaltService, logger zerolog.Logger) *SaltHandler {
	return &SaltHandler{
		service: service,
		logger:  logger.With().Str("component", "salt_handler").Logger(),
	}
}

// Register wires salt routes.
func (h *SaltHandler) Register(router fiber.Router) {
	router.Post("/salts/rotate", h.rotate)
}

func (h *SaltHandler) rotate(c *fiber.Ctx) error {
	result, err := h.service.Rotate(requestContext(c), middleware.CallerFrom(c))
	if err != nil {
		return respondError(c, h.logger, err, "salt rotation")
	}
	return utils.SendSuccess(c, "salt rotated", result)
}
