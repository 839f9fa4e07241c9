package repository

import (
	"context"
	"math"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-tutor-analytics/internal/models"
	"github.com/noah-isme/gema-tutor-analytics/internal/sentinel"
)

// Aggregation dimensions.
const (
	DimensionTopic       = "topic"
	DimensionConcept     = "concept"
	DimensionUncertainty = "uncertainty"
)

// AllDimensions is the default grouping of the class radar.
var AllDimensions = []string{DimensionTopic, DimensionConcept, DimensionUncertainty}

// AggregateQuery selects the grouping and class filter of an aggregation.
type AggregateQuery struct {
	GroupBy []string
	// ClassIDs restricts the rows aggregated. Nil aggregates every class.
	ClassIDs []string
}

// AggregateRow is one group of the class radar. Dimensions not grouped on are empty.
type AggregateRow struct {
	Topic            string  `json:"topic"`
	Concept          string  `json:"concept"`
	Uncertainty      string  `json:"uncertainty"`
	StudentCount     int64   `json:"student_count"`
	DistinctStudents int64   `json:"distinct_students"`
	AvgScore         float64 `json:"avg_score"`
	MinScore         int     `json:"min_score"`
	MaxScore         int     `json:"max_score"`
}

// MasteryRow is the per-topic summary of one pseudonym.
type MasteryRow struct {
	Topic            string  `json:"topic"`
	AverageScore     float64 `json:"average_score"`
	InteractionCount int64   `json:"interaction_count"`
}

// StudentRecordRepository owns the student_records table. It exposes no update or delete.
type StudentRecordRepository interface {
	InsertBatch(ctx context.Context, records []models.StudentRecord) error
	ListByPseudonym(ctx context.Context, pseudonym string) ([]models.StudentRecord, error)
	MasterySummary(ctx context.Context, pseudonym string) ([]MasteryRow, error)
	CountByPseudonym(ctx context.Context, pseudonym string) (int64, error)
	ListRecent(ctx context.Context, classIDs []string, limit int) ([]models.StudentRecord, error)
	Aggregate(ctx context.Context, query AggregateQuery) ([]AggregateRow, error)
}

type studentRecordRepository struct {
	db *gorm.DB
}

// NewStudentRecordRepository constructs the record repository.
func NewStudentRecordRepository(db *gorm.DB) StudentRecordRepository {
	return &studentRecordRepository{db: db}
}

// InsertBatch appends records inside a single transaction; either all rows commit or none.
func (r *studentRecordRepository) InsertBatch(ctx context.Context, records []models.StudentRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(records, 200).Error; err != nil {
			return storageError(err)
		}
		return nil
	})
}

func (r *studentRecordRepository) ListByPseudonym(ctx context.Context, pseudonym string) ([]models.StudentRecord, error) {
	var records []models.StudentRecord
	err := r.db.WithContext(ctx).
		Where("pseudonym = ?", pseudonym).
		Order("occurred_at DESC").
		Order("id DESC").
		Find(&records).Error
	if err != nil {
		return nil, storageError(err)
	}
	if len(records) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return records, nil
}

func (r *studentRecordRepository) MasterySummary(ctx context.Context, pseudonym string) ([]MasteryRow, error) {
	var rows []MasteryRow
	err := r.db.WithContext(ctx).
		Model(&models.StudentRecord{}).
		Select("topic, AVG(score) AS average_score, COUNT(*) AS interaction_count").
		Where("pseudonym = ?", pseudonym).
		Group("topic").
		Order("topic ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, storageError(err)
	}
	if len(rows) == 0 {
		return nil, sentinel.ErrNotFound
	}
	for i := range rows {
		rows[i].AverageScore = RoundScore(rows[i].AverageScore)
	}
	return rows, nil
}

func (r *studentRecordRepository) CountByPseudonym(ctx context.Context, pseudonym string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StudentRecord{}).
		Where("pseudonym = ?", pseudonym).
		Count(&count).Error
	if err != nil {
		return 0, storageError(err)
	}
	return count, nil
}

func (r *studentRecordRepository) ListRecent(ctx context.Context, classIDs []string, limit int) ([]models.StudentRecord, error) {
	query := r.db.WithContext(ctx).Model(&models.StudentRecord{})
	if classIDs != nil {
		if len(classIDs) == 0 {
			return []models.StudentRecord{}, nil
		}
		query = query.Where("class_id IN ?", classIDs)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []models.StudentRecord
	if err := query.Order("occurred_at DESC").Order("id DESC").Find(&records).Error; err != nil {
		return nil, storageError(err)
	}
	return records, nil
}

func (r *studentRecordRepository) Aggregate(ctx context.Context, query AggregateQuery) ([]AggregateRow, error) {
	dimensions := NormalizeDimensions(query.GroupBy)

	selects := make([]string, 0, len(dimensions)+5)
	selects = append(selects, dimensions...)
	selects = append(selects,
		"COUNT(*) AS student_count",
		"COUNT(DISTINCT pseudonym) AS distinct_students",
		"AVG(score) AS avg_score",
		"MIN(score) AS min_score",
		"MAX(score) AS max_score",
	)

	stmt := r.db.WithContext(ctx).
		Model(&models.StudentRecord{}).
		Select(selects)
	if query.ClassIDs != nil {
		if len(query.ClassIDs) == 0 {
			return []AggregateRow{}, nil
		}
		stmt = stmt.Where("class_id IN ?", query.ClassIDs)
	}
	for _, dim := range dimensions {
		stmt = stmt.Group(dim)
	}
	for _, dim := range dimensions {
		stmt = stmt.Order(dim + " ASC")
	}

	rows := make([]AggregateRow, 0)
	if err := stmt.Scan(&rows).Error; err != nil {
		return nil, storageError(err)
	}
	for i := range rows {
		rows[i].AvgScore = RoundScore(rows[i].AvgScore)
	}
	return rows, nil
}

// NormalizeDimensions filters unknown dimensions, removes duplicates and keeps the
// canonical topic, concept, uncertainty order. Empty input selects every dimension.
func NormalizeDimensions(groupBy []string) []string {
	requested := make(map[string]bool, len(groupBy))
	for _, dim := range groupBy {
		requested[dim] = true
	}

	dimensions := make([]string, 0, len(AllDimensions))
	for _, dim := range AllDimensions {
		if requested[dim] {
			dimensions = append(dimensions, dim)
		}
	}
	if len(dimensions) == 0 {
		return append([]string(nil), AllDimensions...)
	}
	return dimensions
}

// RoundScore rounds an average to one decimal place for display.
func RoundScore(value float64) float64 {
	return math.Round(value*10) / 10
}
