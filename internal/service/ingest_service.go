package service

import (
	"context"
	"fmt"
	"html"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-tutor-analytics/internal/access"
	"github.com/noah-isme/gema-tutor-analytics/internal/dto"
	"github.com/noah-isme/gema-tutor-analytics/internal/events"
	"github.com/noah-isme/gema-tutor-analytics/internal/ingest"
	"github.com/noah-isme/gema-tutor-analytics/internal/models"
	"github.com/noah-isme/gema-tutor-analytics/internal/observability"
	"github.com/noah-isme/gema-tutor-analytics/internal/pseudonym"
	"github.com/noah-isme/gema-tutor-analytics/internal/repository"
)

// IngestOptions tunes a single batch.
type IngestOptions struct {
	// Source labels the consent provenance of every record in the batch.
	Source string
	// ClassID is used for rows whose export carries no ClassID column value.
	ClassID string
}

// IngestService pseudonymizes exports and appends them to the record store.
type IngestService interface {
	Ingest(ctx context.Context, caller access.Caller, export io.Reader, opts IngestOptions) (dto.IngestResponse, error)
}

type ingestService struct {
	tx            repository.Transactor
	engine        *access.Engine
	parser        *ingest.Parser
	audit         AuditService
	aggregation   AggregationService
	publisher     EventPublisher
	defaultSource string
	sanitizer     *bluemonday.Policy
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// NewIngestService constructs the ingest pipeline. aggregation and publisher may be nil.
func NewIngestService(tx repository.Transactor, engine *access.Engine, parser *ingest.Parser, audit AuditService, aggregation AggregationService, publisher EventPublisher, defaultSource string, logger zerolog.Logger) IngestService {
	return &ingestService{
		tx:            tx,
		engine:        engine,
		parser:        parser,
		audit:         audit,
		aggregation:   aggregation,
		publisher:     publisher,
		defaultSource: defaultSource,
		sanitizer:     bluemonday.StrictPolicy(),
		logger:        logger.With().Str("component", "ingest_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/gema-tutor-analytics/internal/service/ingest"),
		now:           time.Now,
	}
}

func (s *ingestService) Ingest(ctx context.Context, caller access.Caller, export io.Reader, opts IngestOptions) (dto.IngestResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ingest.batch")
	defer span.End()

	decision, err := authorize(s.engine, caller, access.Request{Resource: access.ResourceIngestRecords})
	if err != nil {
		return dto.IngestResponse{}, err
	}

	rows, err := s.parser.Parse(export)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse_failed")
		return dto.IngestResponse{}, err
	}

	source := strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(opts.Source)))
	if source == "" {
		source = s.defaultSource
	}
	ingestedAt := s.now().UTC()
	provenance := fmt.Sprintf("%s - %s", source, ingestedAt.Format(time.RFC3339))
	batchID := uuid.NewString()
	defaultClass := strings.TrimSpace(opts.ClassID)

	var (
		saltID  uint
		records []models.StudentRecord
	)
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context, stores repository.Stores) error {
		salt, err := stores.Salts.Active(ctx)
		if err != nil {
			return err
		}
		saltID = salt.ID

		records = make([]models.StudentRecord, 0, len(rows))
		for i := range rows {
			token, err := pseudonym.PseudonymizeString(rows[i].StudentID, salt.Value)
			if err != nil {
				return fmt.Errorf("line %d: %w", rows[i].Line, err)
			}
			rows[i].StudentID = ""

			classID := rows[i].ClassID
			if classID == "" {
				classID = defaultClass
			}
			records = append(records, models.StudentRecord{
				Pseudonym:         token,
				ClassID:           classID,
				Topic:             rows[i].Topic,
				Concept:           rows[i].Concept,
				Score:             rows[i].Score,
				Uncertainty:       rows[i].Uncertainty,
				InteractionType:   rows[i].InteractionType,
				OccurredAt:        rows[i].Timestamp,
				ConsentProvenance: provenance,
				Rationale:         rows[i].Rationale,
				BatchID:           batchID,
			})
		}

		if err := stores.Records.InsertBatch(ctx, records); err != nil {
			return err
		}
		if !decision.Audited() {
			return nil
		}

		_, err = s.audit.RecordTo(ctx, stores.Audit, AuditEntry{
			Caller:     caller,
			ActionType: ActionDataIngested,
			Details: map[string]interface{}{
				"batch_id":          batchID,
				"records_ingested":  len(records),
				"distinct_students": len(distinctPseudonyms(records)),
				"source":            source,
				"salt_id":           salt.ID,
			},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ingest_failed")
		s.logger.Warn().Err(err).Str("batch_id", batchID).Msg("ingest batch rejected")
		return dto.IngestResponse{}, err
	}

	tokens := distinctPseudonyms(records)
	prefixes := make([]string, 0, len(tokens))
	for _, token := range tokens {
		prefixes = append(prefixes, pseudonym.Short(token))
	}

	observability.IngestedRecords().WithLabelValues(source).Add(float64(len(records)))
	span.SetAttributes(
		attribute.String("ingest.batch_id", batchID),
		attribute.Int("ingest.records", len(records)),
	)

	if s.aggregation != nil {
		if err := s.aggregation.Invalidate(ctx); err != nil {
			s.logger.Warn().Err(err).Str("batch_id", batchID).Msg("aggregate cache not invalidated")
		}
	}

	if s.publisher != nil {
		event := events.IngestCompleted{
			BatchID:       batchID,
			RecordCount:   len(records),
			StudentCount:  len(tokens),
			Source:        source,
			CorrelationID: CorrelationID(ctx),
			OccurredAt:    ingestedAt,
		}
		if err := s.publisher.IngestCompleted(ctx, event); err != nil {
			s.logger.Warn().Err(err).Str("batch_id", batchID).Msg("failed to publish ingest event")
		}
	}

	s.logger.Info().
		Str("batch_id", batchID).
		Int("records", len(records)).
		Int("students", len(tokens)).
		Uint("salt_id", saltID).
		Msg("ingest batch committed")

	return dto.IngestResponse{
		BatchID:           batchID,
		RecordsIngested:   len(records),
		DistinctStudents:  len(tokens),
		ConsentProvenance: provenance,
		SaltID:            saltID,
		PseudonymPrefixes: prefixes,
	}, nil
}

func distinctPseudonyms(records []models.StudentRecord) []string {
	seen := make(map[string]struct{}, len(records))
	tokens := make([]string, 0)
	for _, record := range records {
		if _, ok := seen[record.Pseudonym]; ok {
			continue
		}
		seen[record.Pseudonym] = struct{}{}
		tokens = append(tokens, record.Pseudonym)
	}
	sort.Strings(tokens)
	return tokens
}
