package models

import "time"

// Salt is the secret mixed into every pseudonym. At most one row is active; the
// partial unique index enforces it at the storage layer.
type Salt struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Value         []byte     `gorm:"column:salt_value;not null" json:"-"`
	IsActive      bool       `gorm:"not null;default:false;uniqueIndex:idx_salt_store_single_active,where:is_active = true" json:"is_active"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

// TableName pins the table name used by the operator tooling.
func (Salt) TableName() string {
	return "salt_store"
}
