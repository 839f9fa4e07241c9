package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-tutor-analytics/internal/dto"
	"github.com/noah-isme/gema-tutor-analytics/internal/middleware"
	"github.com/noah-isme/gema-tutor-analytics/internal/service"
	"github.com/noah-isme/gema-tutor-analytics/internal/utils"
)

// DashboardHandler exposes the role-filtered analytics endpoints.
type DashboardHandler struct {
	service service.DashboardService
	logger  zerolog.Logger
}

// NewDashboardHandler creates a new handler instance.
func NewDashboardHandler(service service.DashboardService, logger zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{
		service: service,
		logger:  logger.With().Str("component", "dashboard_handler").Logger(),
	}
}

// Register attaches the dashboard endpoints.
func (h *DashboardHandler) Register(router fiber.Router) {
	router.Get("/class-radar", h.classRadar)
	router.Get("/students/:pseudonym", h.studentDetail)
	router.Get("/audit-logs", h.auditLogs)
	router.Post("/audit-logs", h.writeAuditEntry)
	router.Get("/user-info", h.userInfo)
}

func (h *DashboardHandler) classRadar(c *fiber.Ctx) error {
	response, err := h.service.GetClassAggregate(requestContext(c), middleware.CallerFrom(c), c.Query("class_id"))
	if err != nil {
		return respondError(c, h.logger, err, "class radar")
	}
	return utils.SendSuccess(c, "class radar retrieved", response)
}

func (h *DashboardHandler) studentDetail(c *fiber.Ctx) error {
	response, err := h.service.GetStudentDetail(requestContext(c), middleware.CallerFrom(c), c.Params("pseudonym"))
	if err != nil {
		return respondError(c, h.logger, err, "student detail")
	}
	return utils.SendSuccess(c, "student detail retrieved", response)
}

func (h *DashboardHandler) auditLogs(c *fiber.Ctx) error {
	response, err := h.service.GetAuditLog(requestContext(c), middleware.CallerFrom(c))
	if err != nil {
		return respondError(c, h.logger, err, "audit log")
	}
	return utils.OK(c, response, "audit log retrieved", fiber.Map{"total_logs": response.TotalLogs})
}

func (h *DashboardHandler) writeAuditEntry(c *fiber.Ctx) error {
	var payload dto.AuditEntryRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}
	}

	entry, err := h.service.WriteAuditEntry(requestContext(c), middleware.CallerFrom(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "audit entry")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "action logged successfully", entry)
}

func (h *DashboardHandler) userInfo(c *fiber.Ctx) error {
	info, err := h.service.GetCallerInfo(requestContext(c), middleware.CallerFrom(c))
	if err != nil {
		return respondError(c, h.logger, err, "user info")
	}
	return utils.SendSuccess(c, "user info retrieved", info)
}
