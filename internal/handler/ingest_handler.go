package handler

import (
	"bufio"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-tutor-analytics/internal/middleware"
	"github.com/noah-isme/gema-tutor-analytics/internal/service"
	"github.com/noah-isme/gema-tutor-analytics/internal/utils"
)

const sniffLength = 3072

// IngestHandler accepts CSV exports over HTTP.
type IngestHandler struct {
	service  service.IngestService
	maxBytes int64
	logger   zerolog.Logger
}

// NewIngestHandler constructs an ingest handler. maxBytes <= 0 disables the size check.
func NewIngestHandler(service service.IngestService, maxBytes int64, logger zerolog.Logger) *IngestHandler {
	return &IngestHandler{
		service:  service,
		maxBytes: maxBytes,
		logger:   logger.With().Str("component", "ingest_handler").Logger(),
	}
}

// Register wires ingest routes.
func (h *IngestHandler) Register(router fiber.Router) {
	router.Post("/ingest", h.ingest)
}

func (h *IngestHandler) ingest(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}
	if h.maxBytes > 0 && file.Size > h.maxBytes {
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", h.maxBytes))
	}

	handle, err := file.Open()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "unable to read file")
	}
	defer handle.Close()

	reader := bufio.NewReaderSize(handle, sniffLength)
	head, _ := reader.Peek(sniffLength)
	if !isTextExport(head) {
		return utils.SendError(c, fiber.StatusUnsupportedMediaType, "file must be a CSV export")
	}

	result, err := h.service.Ingest(requestContext(c), middleware.CallerFrom(c), reader, service.IngestOptions{
		Source:  c.FormValue("source"),
		ClassID: c.FormValue("class_id"),
	})
	if err != nil {
		return respondError(c, h.logger, err, "ingest")
	}

	requestLogger(h.logger, c).Info().Str("batch_id", result.BatchID).Int("records", result.RecordsIngested).Msg("export ingested")
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "export ingested", result)
}

func isTextExport(head []byte) bool {
	if len(head) == 0 {
		return false
	}
	for mime := mimetype.Detect(head); mime != nil; mime = mime.Parent() {
		if mime.Is("text/csv") || mime.Is("text/plain") {
			return true
		}
	}
	return false
}
