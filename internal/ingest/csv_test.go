package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-tutor-analytics/internal/sentinel"
)

func newTestParser(maxRows int) *Parser {
	return NewParser(validator.New(validator.WithRequiredStructEnabled()), maxRows)
}

func TestParserReadsHeaderDrivenExport(t *testing.T) {
	export := strings.Join([]string{
		"Timestamp,StudentID,Topic,Concept,Score,Uncertainty,InteractionType,Rationale",
		"2025-06-01T09:00:00Z,stu1,Fractions,Equivalence,80,Low,Quiz,<b>guessed</b> & checked",
		"2025-06-01 10:30:00,stu2,Algebra,Variables,55,high,hint,",
		"",
	}, "\n")

	rows, err := newTestParser(0).Parse(strings.NewReader(export))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	require.Equal(t, 2, first.Line)
	require.Equal(t, "stu1", first.StudentID)
	require.Equal(t, "low", first.Uncertainty)
	require.Equal(t, "quiz", first.InteractionType)
	require.Equal(t, "guessed & checked", first.Rationale)
	require.Equal(t, 80, first.Score)
	require.True(t, first.Timestamp.Equal(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)))

	second := rows[1]
	require.Equal(t, time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC), second.Timestamp)
	require.Empty(t, second.Rationale)
	require.Empty(t, second.ClassID)
}

func TestParserOptionalClassColumn(t *testing.T) {
	export := "StudentID,Topic,Concept,Score,Uncertainty,InteractionType,Timestamp,ClassID\n" +
		"stu1,Fractions,Equivalence,80,medium,quiz,2025-06-01,CLASS_A\n"

	rows, err := newTestParser(0).Parse(strings.NewReader(export))
	require.NoError(t, err)
	require.Equal(t, "CLASS_A", rows[0].ClassID)
}

func TestParserRejectsWholeBatchOnBadRows(t *testing.T) {
	export := strings.Join([]string{
		"StudentID,Topic,Concept,Score,Uncertainty,InteractionType,Timestamp",
		"stu1,Fractions,Equivalence,80,low,quiz,2025-06-01T09:00:00Z",
		",Fractions,Equivalence,eighty,unsure,quiz,yesterday",
		"stu3,Algebra,Variables,70,low,quiz,2025-06-01T09:00:00Z",
	}, "\n")

	rows, err := newTestParser(0).Parse(strings.NewReader(export))
	require.Nil(t, rows)
	require.ErrorIs(t, err, sentinel.ErrInvalidInput)

	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr))

	fields := map[string]bool{}
	for _, rowErr := range batchErr.Errors {
		require.Equal(t, 3, rowErr.Line)
		fields[rowErr.Field] = true
	}
	require.True(t, fields["StudentID"])
	require.True(t, fields["Score"])
	require.True(t, fields["Uncertainty"])
	require.True(t, fields["Timestamp"])
	require.Len(t, batchErr.Errors, 4, "each field is reported once")
	require.NotContains(t, err.Error(), "stu3")
}

func TestParserMissingColumns(t *testing.T) {
	_, err := newTestParser(0).Parse(strings.NewReader("StudentID,Topic\nstu1,Fractions\n"))
	require.ErrorIs(t, err, sentinel.ErrInvalidInput)

	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr))
	require.Len(t, batchErr.Errors, 5)
	require.Equal(t, 1, batchErr.Errors[0].Line)
}

func TestParserEmptyInputs(t *testing.T) {
	_, err := newTestParser(0).Parse(strings.NewReader(""))
	require.ErrorIs(t, err, sentinel.ErrInvalidInput)

	_, err = newTestParser(0).Parse(strings.NewReader("StudentID,Topic,Concept,Score,Uncertainty,InteractionType,Timestamp\n"))
	require.ErrorIs(t, err, sentinel.ErrInvalidInput)
}

func TestParserRowLimit(t *testing.T) {
	export := "StudentID,Topic,Concept,Score,Uncertainty,InteractionType,Timestamp\n" +
		"stu1,Fractions,Equivalence,80,low,quiz,2025-06-01\n" +
		"stu2,Fractions,Equivalence,80,low,quiz,2025-06-01\n"

	_, err := newTestParser(1).Parse(strings.NewReader(export))
	require.ErrorIs(t, err, sentinel.ErrInvalidInput)
	require.Contains(t, err.Error(), "exceeds limit of 1 rows")
}

func TestParserAcceptsAnyIntegerScore(t *testing.T) {
	export := "StudentID,Topic,Concept,Score,Uncertainty,InteractionType,Timestamp\n" +
		"stu1,Fractions,Equivalence,-5,low,quiz,2025-06-01\n" +
		"stu2,Fractions,Equivalence,1500,low,quiz,2025-06-01\n"

	rows, err := newTestParser(0).Parse(strings.NewReader(export))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, -5, rows[0].Score)
	require.Equal(t, 1500, rows[1].Score)
}
