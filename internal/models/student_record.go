package models

import "time"

// Uncertainty levels accepted at ingest.
const (
	UncertaintyLow    = "low"
	UncertaintyMedium = "medium"
	UncertaintyHigh   = "high"
)

// StudentRecord is one pseudonymized tutor interaction. Rows are append-only.
type StudentRecord struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Pseudonym         string    `gorm:"size:64;not null;index:idx_student_records_pseudonym_time,priority:1" json:"pseudonym"`
	ClassID           string    `gorm:"size:64;index" json:"class_id"`
	Topic             string    `gorm:"size:128;not null;index" json:"topic"`
	Concept           string    `gorm:"size:128;not null" json:"concept"`
	Score             int       `gorm:"not null" json:"score"`
	Uncertainty       string    `gorm:"size:16;not null" json:"uncertainty"`
	InteractionType   string    `gorm:"size:64;not null" json:"interaction_type"`
	OccurredAt        time.Time `gorm:"not null;index:idx_student_records_pseudonym_time,priority:2" json:"timestamp"`
	ConsentProvenance string    `gorm:"type:text;not null" json:"consent_provenance"`
	Rationale         string    `gorm:"type:text" json:"rationale"`
	BatchID           string    `gorm:"size:36;index" json:"batch_id"`
	CreatedAt         time.Time `json:"created_at"`
}

// TableName keeps the table name stable across refactors.
func (StudentRecord) TableName() string {
	return "student_records"
}
