package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-tutor-analytics/internal/models"
)

// AuditLogFilter narrows audit log queries.
type AuditLogFilter struct {
	Limit      int
	UserID     string
	ActionType string
}

// AuditLogRepository persists the append-only audit trail. Entries are never updated or deleted.
type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuditLogEntry) error
	ListRecent(ctx context.Context, filter AuditLogFilter) ([]models.AuditLogEntry, error)
	Count(ctx context.Context) (int64, error)
}

type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository constructs the audit log repository.
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return storageError(err)
	}
	return nil
}

func (r *auditLogRepository) ListRecent(ctx context.Context, filter AuditLogFilter) ([]models.AuditLogEntry, error) {
	query := r.db.WithContext(ctx).Model(&models.AuditLogEntry{})

	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.ActionType != "" {
		query = query.Where("action_type = ?", filter.ActionType)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var entries []models.AuditLogEntry
	if err := query.Order("timestamp DESC").Order("id DESC").Find(&entries).Error; err != nil {
		return nil, storageError(err)
	}
	return entries, nil
}

func (r *auditLogRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.AuditLogEntry{}).Count(&total).Error; err != nil {
		return 0, storageError(err)
	}
	return total, nil
}
