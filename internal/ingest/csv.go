// Package ingest reads tutor interaction exports into validated rows.
//
// Rows still carry the raw student identifier. They exist only for the duration of an
// ingest batch and must never be logged or persisted.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"github.com/noah-isme/gema-tutor-analytics/internal/sentinel"
)

// Column names of the export header.
const (
	ColumnStudentID       = "StudentID"
	ColumnTopic           = "Topic"
	ColumnConcept         = "Concept"
	ColumnScore           = "Score"
	ColumnUncertainty     = "Uncertainty"
	ColumnInteractionType = "InteractionType"
	ColumnTimestamp       = "Timestamp"
	ColumnRationale       = "Rationale"
	ColumnClassID         = "ClassID"
)

var requiredColumns = []string{
	ColumnStudentID,
	ColumnTopic,
	ColumnConcept,
	ColumnScore,
	ColumnUncertainty,
	ColumnInteractionType,
	ColumnTimestamp,
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Row is one validated line of the export.
type Row struct {
	Line            int       `validate:"-"`
	StudentID       string    `validate:"required,max=128"`
	Topic           string    `validate:"required,max=128"`
	Concept         string    `validate:"required,max=128"`
	Score           int       `validate:"-"`
	Uncertainty     string    `validate:"required,oneof=low medium high"`
	InteractionType string    `validate:"required,max=64"`
	Timestamp       time.Time `validate:"required"`
	Rationale       string    `validate:"max=4000"`
	ClassID         string    `validate:"max=64"`
}

// RowError describes why a single line was rejected.
type RowError struct {
	Line   int    `json:"line"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e RowError) String() string {
	return fmt.Sprintf("line %d: %s %s", e.Line, e.Field, e.Reason)
}

// BatchError collects every rejected line of a batch. It matches sentinel.ErrInvalidInput.
type BatchError struct {
	Errors []RowError
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, rowErr := range e.Errors {
		parts = append(parts, rowErr.String())
	}
	return fmt.Sprintf("%d invalid row(s): %s", len(e.Errors), strings.Join(parts, "; "))
}

// Unwrap ties the batch error to the invalid input category.
func (e *BatchError) Unwrap() error {
	return sentinel.ErrInvalidInput
}

// Parser turns an export into rows.
type Parser struct {
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	maxRows   int
}

// NewParser constructs a parser. maxRows <= 0 disables the row limit.
func NewParser(validate *validator.Validate, maxRows int) *Parser {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return &Parser{
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		maxRows:   maxRows,
	}
}

// Parse reads the whole export. Any invalid line fails the batch with a *BatchError
// naming every rejected line; no partial result is returned.
func (p *Parser) Parse(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &BatchError{Errors: []RowError{{Line: 1, Field: "header", Reason: "missing"}}}
	}
	if err != nil {
		return nil, &BatchError{Errors: []RowError{{Line: 1, Field: "header", Reason: err.Error()}}}
	}

	index := indexHeader(header)
	var problems []RowError
	for _, column := range requiredColumns {
		if _, ok := index[strings.ToLower(column)]; !ok {
			problems = append(problems, RowError{Line: 1, Field: column, Reason: "column missing from header"})
		}
	}
	if len(problems) > 0 {
		return nil, &BatchError{Errors: problems}
	}

	rows := make([]Row, 0)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			problems = append(problems, RowError{Line: line, Field: "record", Reason: err.Error()})
			continue
		}
		if isBlank(record) {
			continue
		}
		if p.maxRows > 0 && len(rows) >= p.maxRows {
			problems = append(problems, RowError{Line: line, Field: "record", Reason: fmt.Sprintf("exceeds limit of %d rows", p.maxRows)})
			break
		}

		row, rowProblems := p.parseRecord(line, record, index)
		if len(rowProblems) > 0 {
			problems = append(problems, rowProblems...)
			continue
		}
		rows = append(rows, row)
	}

	if len(problems) > 0 {
		return nil, &BatchError{Errors: problems}
	}
	if len(rows) == 0 {
		return nil, &BatchError{Errors: []RowError{{Line: line, Field: "record", Reason: "export contains no rows"}}}
	}
	return rows, nil
}

func (p *Parser) parseRecord(line int, record []string, index map[string]int) (Row, []RowError) {
	get := func(column string) string {
		pos, ok := index[strings.ToLower(column)]
		if !ok || pos >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[pos])
	}

	var problems []RowError
	reported := make(map[string]bool)
	row := Row{
		Line:            line,
		StudentID:       get(ColumnStudentID),
		Topic:           p.clean(get(ColumnTopic)),
		Concept:         p.clean(get(ColumnConcept)),
		Uncertainty:     strings.ToLower(get(ColumnUncertainty)),
		InteractionType: strings.ToLower(p.clean(get(ColumnInteractionType))),
		Rationale:       p.clean(get(ColumnRationale)),
		ClassID:         p.clean(get(ColumnClassID)),
	}

	score, err := strconv.Atoi(get(ColumnScore))
	if err != nil {
		problems = append(problems, RowError{Line: line, Field: ColumnScore, Reason: "must be an integer"})
		reported[ColumnScore] = true
	}
	row.Score = score

	if raw := get(ColumnTimestamp); raw != "" {
		ts, err := parseTimestamp(raw)
		if err != nil {
			problems = append(problems, RowError{Line: line, Field: ColumnTimestamp, Reason: "unrecognised timestamp format"})
			reported[ColumnTimestamp] = true
		}
		row.Timestamp = ts
	}

	if err := p.validator.Struct(row); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return row, append(problems, RowError{Line: line, Field: "record", Reason: err.Error()})
		}
		for _, fieldErr := range validationErrors {
			if reported[fieldErr.Field()] {
				continue
			}
			problems = append(problems, RowError{Line: line, Field: fieldErr.Field(), Reason: describe(fieldErr)})
		}
	}

	return row, problems
}

func (p *Parser) clean(value string) string {
	if value == "" {
		return value
	}
	return strings.TrimSpace(html.UnescapeString(p.sanitizer.Sanitize(value)))
}

func indexHeader(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, column := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(column, "\ufeff")))
		if name == "" {
			continue
		}
		if _, exists := index[name]; !exists {
			index[name] = i
		}
	}
	return index
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func describe(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fieldErr.Param()
	case "max":
		return "exceeds maximum of " + fieldErr.Param()
	case "min":
		return "below minimum of " + fieldErr.Param()
	default:
		return "failed " + fieldErr.Tag()
	}
}
