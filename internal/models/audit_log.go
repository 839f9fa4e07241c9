package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLogEntry captures one privileged read or administrative action.
type AuditLogEntry struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	Timestamp     time.Time         `gorm:"not null;index" json:"timestamp"`
	UserID        string            `gorm:"size:64;not null;index" json:"user_id"`
	Role          string            `gorm:"size:32;not null" json:"role"`
	ActionType    string            `gorm:"size:64;not null;index" json:"action_type"`
	Details       datatypes.JSONMap `gorm:"type:json" json:"details"`
	CorrelationID string            `gorm:"size:64" json:"correlation_id,omitempty"`
}

// TableName keeps the table name stable across refactors.
func (AuditLogEntry) TableName() string {
	return "audit_logs"
}

// All returns every persisted model for migrations.
func All() []interface{} {
	return []interface{}{&Salt{}, &StudentRecord{}, &AuditLogEntry{}}
}
