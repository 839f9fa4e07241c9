package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-tutor-analytics/internal/models"
	"github.com/noah-isme/gema-tutor-analytics/internal/sentinel"
)

// SaltRepository owns the salt_store table.
type SaltRepository interface {
	// Active returns the single active salt or ErrNoActiveSalt.
	Active(ctx context.Context) (models.Salt, error)
	// Initialize stores the first salt. It fails with ErrConflict once any salt exists.
	Initialize(ctx context.Context, value []byte) (models.Salt, error)
	// Rotate deactivates the current salt and activates value in one transaction.
	Rotate(ctx context.Context, value []byte) (models.Salt, models.Salt, error)
	// History lists every salt, newest first.
	History(ctx context.Context) ([]models.Salt, error)
}

type saltRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSaltRepository constructs the salt repository.
func NewSaltRepository(db *gorm.DB) SaltRepository {
	return &saltRepository{db: db, now: time.Now}
}

func (r *saltRepository) Active(ctx context.Context) (models.Salt, error) {
	var salt models.Salt
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at DESC").
		First(&salt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Salt{}, sentinel.ErrNoActiveSalt
	}
	if err != nil {
		return models.Salt{}, storageError(err)
	}
	return salt, nil
}

func (r *saltRepository) Initialize(ctx context.Context, value []byte) (models.Salt, error) {
	if len(value) == 0 {
		return models.Salt{}, fmt.Errorf("%w: salt value is empty", sentinel.ErrInvalidInput)
	}

	salt := models.Salt{Value: value, IsActive: true, CreatedAt: r.now().UTC()}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Salt{}).Count(&count).Error; err != nil {
			return storageError(err)
		}
		if count > 0 {
			return fmt.Errorf("%w: salt store already initialised", sentinel.ErrConflict)
		}
		if err := tx.Create(&salt).Error; err != nil {
			return storageError(err)
		}
		return nil
	})
	if err != nil {
		return models.Salt{}, err
	}
	return salt, nil
}

func (r *saltRepository) Rotate(ctx context.Context, value []byte) (models.Salt, models.Salt, error) {
	if len(value) == 0 {
		return models.Salt{}, models.Salt{}, fmt.Errorf("%w: salt value is empty", sentinel.ErrInvalidInput)
	}

	var previous models.Salt
	next := models.Salt{Value: value, IsActive: true}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now().UTC()
		err := tx.Where("is_active = ?", true).Order("created_at DESC").First(&previous).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			previous = models.Salt{}
		case err != nil:
			return storageError(err)
		default:
			if err := tx.Model(&models.Salt{}).
				Where("is_active = ?", true).
				Updates(map[string]interface{}{"is_active": false, "deactivated_at": now}).Error; err != nil {
				return storageError(err)
			}
			previous.IsActive = false
			previous.DeactivatedAt = &now
		}

		next.CreatedAt = now
		if err := tx.Create(&next).Error; err != nil {
			return storageError(err)
		}
		return nil
	})
	if err != nil {
		return models.Salt{}, models.Salt{}, err
	}
	return next, previous, nil
}

func (r *saltRepository) History(ctx context.Context) ([]models.Salt, error) {
	var salts []models.Salt
	if err := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&salts).Error; err != nil {
		return nil, storageError(err)
	}
	return salts, nil
}

func storageError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", sentinel.ErrStorage, err)
}
