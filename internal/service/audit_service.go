package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-tutor-analytics/internal/access"
	"github.com/noah-isme/gema-tutor-analytics/internal/events"
	"github.com/noah-isme/gema-tutor-analytics/internal/models"
	"github.com/noah-isme/gema-tutor-analytics/internal/observability"
	"github.com/noah-isme/gema-tutor-analytics/internal/pseudonym"
	"github.com/noah-isme/gema-tutor-analytics/internal/repository"
)

// Audit action types written by the services.
const (
	ActionViewStudentDetail = "VIEW_STUDENT_DETAIL"
	ActionViewAuditLog      = "VIEW_AUDIT_LOG"
	ActionDataIngested      = "DATA_INGESTED"
	ActionSaltInitialized   = "SALT_INITIALIZED"
	ActionSaltRotated       = "SALT_ROTATED"
	ActionUnknown           = "UNKNOWN_ACTION"
)

const maskedValue = "***"

// AuditEntry is an audit record before persistence. Caller identity always comes from
// the resolved caller, never from request input.
type AuditEntry struct {
	Caller     access.Caller
	ActionType string
	Details    map[string]interface{}
}

// EventPublisher receives committed domain events.
type EventPublisher interface {
	IngestCompleted(ctx context.Context, event events.IngestCompleted) error
	SaltRotated(ctx context.Context, event events.SaltRotated) error
	AuditRecorded(ctx context.Context, event events.AuditRecorded) error
}

// AuditService appends entries to the audit trail.
type AuditService interface {
	// Record writes the entry through the service's own repository.
	Record(ctx context.Context, entry AuditEntry) (models.AuditLogEntry, error)
	// RecordTo writes the entry through repo, typically one bound to an open transaction.
	// No event is published; the caller does so after commit.
	RecordTo(ctx context.Context, repo repository.AuditLogRepository, entry AuditEntry) (models.AuditLogEntry, error)
	List(ctx context.Context, filter repository.AuditLogFilter) ([]models.AuditLogEntry, error)
}

type auditService struct {
	repo      repository.AuditLogRepository
	publisher EventPublisher
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAuditService constructs the audit trail service. publisher may be nil.
func NewAuditService(repo repository.AuditLogRepository, publisher EventPublisher, logger zerolog.Logger) AuditService {
	return &auditService{
		repo:      repo,
		publisher: publisher,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "audit_service").Logger(),
		now:       time.Now,
	}
}

func (s *auditService) Record(ctx context.Context, entry AuditEntry) (models.AuditLogEntry, error) {
	model, err := s.RecordTo(ctx, s.repo, entry)
	if err != nil {
		return models.AuditLogEntry{}, err
	}

	if s.publisher != nil {
		event := events.AuditRecorded{
			EntryID:       model.ID,
			UserID:        model.UserID,
			Role:          model.Role,
			ActionType:    model.ActionType,
			CorrelationID: model.CorrelationID,
			OccurredAt:    model.Timestamp,
		}
		if err := s.publisher.AuditRecorded(ctx, event); err != nil {
			s.logger.Warn().Err(err).Uint("audit_id", model.ID).Msg("failed to publish audit event")
		}
	}

	return model, nil
}

func (s *auditService) RecordTo(ctx context.Context, repo repository.AuditLogRepository, entry AuditEntry) (models.AuditLogEntry, error) {
	if !entry.Caller.Authenticated() {
		return models.AuditLogEntry{}, fmt.Errorf("audit entry requires an authenticated caller")
	}

	actionType := normalizeAction(entry.ActionType)
	model := models.AuditLogEntry{
		Timestamp:     s.now().UTC(),
		UserID:        entry.Caller.UserID,
		Role:          entry.Caller.Role.Name,
		ActionType:    actionType,
		Details:       s.sanitizeDetails(entry.Details),
		CorrelationID: CorrelationID(ctx),
	}

	if err := repo.Create(ctx, &model); err != nil {
		observability.AuditWrites().WithLabelValues(actionType, "error").Inc()
		s.logger.Error().Err(err).Str("action_type", actionType).Msg("failed to persist audit entry")
		return models.AuditLogEntry{}, fmt.Errorf("write audit entry: %w", err)
	}

	observability.AuditWrites().WithLabelValues(actionType, "ok").Inc()
	return model, nil
}

func (s *auditService) List(ctx context.Context, filter repository.AuditLogFilter) ([]models.AuditLogEntry, error) {
	return s.repo.ListRecent(ctx, filter)
}

func (s *auditService) sanitizeDetails(details map[string]interface{}) datatypes.JSONMap {
	sanitized := datatypes.JSONMap{}
	for key, value := range details {
		sanitized[key] = s.sanitizeValue(key, value)
	}
	return sanitized
}

func (s *auditService) sanitizeValue(key string, value interface{}) interface{} {
	lower := strings.ToLower(key)
	switch {
	case strings.Contains(lower, "email"),
		strings.Contains(lower, "token"),
		strings.Contains(lower, "password"),
		strings.Contains(lower, "secret"),
		strings.Contains(lower, "salt_value"),
		strings.Contains(lower, "raw"):
		return maskedValue
	}

	switch typed := value.(type) {
	case string:
		clean := s.cleanText(typed)
		// Student identifiers are only kept when they are already pseudonyms.
		if strings.Contains(lower, "student") && clean != "" && !pseudonym.Valid(clean) {
			return maskedValue
		}
		return clean
	case map[string]interface{}:
		nested := make(map[string]interface{}, len(typed))
		for nestedKey, nestedValue := range typed {
			nested[nestedKey] = s.sanitizeValue(nestedKey, nestedValue)
		}
		return nested
	case []interface{}:
		items := make([]interface{}, 0, len(typed))
		for _, item := range typed {
			items = append(items, s.sanitizeValue(key, item))
		}
		return items
	default:
		return value
	}
}

// cleanText strips markup and undoes the entity escaping the strict policy applies to plain text.
func (s *auditService) cleanText(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(value)))
}

func normalizeAction(action string) string {
	normalized := strings.ToUpper(strings.TrimSpace(action))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	if normalized == "" {
		return ActionUnknown
	}
	return normalized
}
