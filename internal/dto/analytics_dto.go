package dto

import (
	"time"

	"github.com/noah-isme/gema-tutor-analytics/internal/models"
	"github.com/noah-isme/gema-tutor-analytics/internal/repository"
)

// AggregateRowResponse is one group of the class radar.
type AggregateRowResponse struct {
	Topic            string  `json:"topic"`
	Concept          string  `json:"concept"`
	Uncertainty      string  `json:"uncertainty"`
	StudentCount     int64   `json:"student_count"`
	DistinctStudents int64   `json:"distinct_students"`
	AvgScore         float64 `json:"avg_score"`
	MinScore         int     `json:"min_score"`
	MaxScore         int     `json:"max_score"`
}

// NewAggregateRowResponse maps a repository row.
func NewAggregateRowResponse(row repository.AggregateRow) AggregateRowResponse {
	return AggregateRowResponse{
		Topic:            row.Topic,
		Concept:          row.Concept,
		Uncertainty:      row.Uncertainty,
		StudentCount:     row.StudentCount,
		DistinctStudents: row.DistinctStudents,
		AvgScore:         row.AvgScore,
		MinScore:         row.MinScore,
		MaxScore:         row.MaxScore,
	}
}

// RecordResponse is a raw per-record row, only served to full-tier callers.
type RecordResponse struct {
	ID                uint      `json:"id"`
	Pseudonym         string    `json:"pseudonym"`
	ClassID           string    `json:"class_id,omitempty"`
	Topic             string    `json:"topic"`
	Concept           string    `json:"concept"`
	Score             int       `json:"score"`
	Uncertainty       string    `json:"uncertainty"`
	InteractionType   string    `json:"interaction_type"`
	Timestamp         time.Time `json:"timestamp"`
	ConsentProvenance string    `json:"consent_provenance"`
	Rationale         string    `json:"rationale"`
}

// NewRecordResponse maps a stored record.
func NewRecordResponse(record models.StudentRecord) RecordResponse {
	return RecordResponse{
		ID:                record.ID,
		Pseudonym:         record.Pseudonym,
		ClassID:           record.ClassID,
		Topic:             record.Topic,
		Concept:           record.Concept,
		Score:             record.Score,
		Uncertainty:       record.Uncertainty,
		InteractionType:   record.InteractionType,
		Timestamp:         record.OccurredAt,
		ConsentProvenance: record.ConsentProvenance,
		Rationale:         record.Rationale,
	}
}

// ClassRadarResponse is the class view. Records is omitted for limited callers.
type ClassRadarResponse struct {
	Data        []AggregateRowResponse `json:"data"`
	Records     []RecordResponse       `json:"records,omitempty"`
	ClassIDs    []string               `json:"class_ids"`
	UserRole    string                 `json:"user_role"`
	Permissions []string               `json:"permissions"`
	AccessLevel string                 `json:"access_level"`
	Timestamp   time.Time              `json:"timestamp"`
}

// TimelineEvent is one interaction of the student drill-down. The provenance and
// rationale fields are nil in the limited view.
type TimelineEvent struct {
	Pseudonym         string    `json:"pseudonym"`
	Topic             string    `json:"topic"`
	Concept           string    `json:"concept"`
	Score             int       `json:"score"`
	Uncertainty       string    `json:"uncertainty"`
	InteractionType   string    `json:"interaction_type"`
	Timestamp         time.Time `json:"timestamp"`
	ConsentProvenance *string   `json:"consent_provenance,omitempty"`
	Rationale         *string   `json:"rationale,omitempty"`
}

// NewTimelineEvent maps a record, dropping restricted fields unless full is set.
func NewTimelineEvent(record models.StudentRecord, full bool) TimelineEvent {
	event := TimelineEvent{
		Pseudonym:       record.Pseudonym,
		Topic:           record.Topic,
		Concept:         record.Concept,
		Score:           record.Score,
		Uncertainty:     record.Uncertainty,
		InteractionType: record.InteractionType,
		Timestamp:       record.OccurredAt,
	}
	if full {
		provenance := record.ConsentProvenance
		rationale := record.Rationale
		event.ConsentProvenance = &provenance
		event.Rationale = &rationale
	}
	return event
}

// MasterySummaryItem is the per-topic average of one student.
type MasterySummaryItem struct {
	Topic            string  `json:"topic"`
	AverageScore     float64 `json:"average_score"`
	InteractionCount int64   `json:"interaction_count"`
}

// StudentDetailResponse is the drill-down for a single pseudonym.
type StudentDetailResponse struct {
	StudentName    string               `json:"student_name"`
	StudentID      string               `json:"student_id"`
	TimelineEvents []TimelineEvent      `json:"timeline_events"`
	MasterySummary []MasterySummaryItem `json:"mastery_summary"`
	UserRole       string               `json:"user_role"`
	AccessLevel    string               `json:"access_level"`
}

// AuditLogItem serializes one audit entry.
type AuditLogItem struct {
	ID            uint                   `json:"id"`
	Timestamp     time.Time              `json:"timestamp"`
	UserID        string                 `json:"user_id"`
	Role          string                 `json:"role"`
	Action        string                 `json:"action"`
	Details       map[string]interface{} `json:"details"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
}

// NewAuditLogItem maps a stored entry.
func NewAuditLogItem(entry models.AuditLogEntry) AuditLogItem {
	details := map[string]interface{}(entry.Details)
	if details == nil {
		details = map[string]interface{}{}
	}
	return AuditLogItem{
		ID:            entry.ID,
		Timestamp:     entry.Timestamp,
		UserID:        entry.UserID,
		Role:          entry.Role,
		Action:        entry.ActionType,
		Details:       details,
		CorrelationID: entry.CorrelationID,
	}
}

// AuditLogListResponse is the audit trail view.
type AuditLogListResponse struct {
	AuditLogs []AuditLogItem `json:"audit_logs"`
	UserRole  string         `json:"user_role"`
	TotalLogs int            `json:"total_logs"`
}

// AuditEntryRequest is a client-reported action such as an override change.
type AuditEntryRequest struct {
	ActionType string                 `json:"action_type" validate:"omitempty,max=64"`
	Details    map[string]interface{} `json:"details"`
}

// CallerInfoResponse describes the authenticated caller.
type CallerInfoResponse struct {
	UserID      string   `json:"user_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	ClassIDs    []string `json:"class_ids"`
}

// IngestResponse summarises a committed batch. It never carries raw identifiers.
type IngestResponse struct {
	BatchID           string   `json:"batch_id"`
	RecordsIngested   int      `json:"records_ingested"`
	DistinctStudents  int      `json:"distinct_students"`
	ConsentProvenance string   `json:"consent_provenance"`
	SaltID            uint     `json:"salt_id"`
	PseudonymPrefixes []string `json:"pseudonym_prefixes"`
}

// SaltResponse describes a salt without its value.
type SaltResponse struct {
	ID        uint      `json:"id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSaltResponse maps a stored salt.
func NewSaltResponse(salt models.Salt) SaltResponse {
	return SaltResponse{ID: salt.ID, IsActive: salt.IsActive, CreatedAt: salt.CreatedAt}
}

// SaltRotationResponse reports the result of a rotation.
type SaltRotationResponse struct {
	Active   SaltResponse  `json:"active"`
	Previous *SaltResponse `json:"previous,omitempty"`
}
