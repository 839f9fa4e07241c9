package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-tutor-analytics/internal/access"
	"github.com/noah-isme/gema-tutor-analytics/internal/dto"
	"github.com/noah-isme/gema-tutor-analytics/internal/events"
	"github.com/noah-isme/gema-tutor-analytics/internal/models"
	"github.com/noah-isme/gema-tutor-analytics/internal/observability"
	"github.com/noah-isme/gema-tutor-analytics/internal/pseudonym"
	"github.com/noah-isme/gema-tutor-analytics/internal/repository"
)

// SaltService manages the pseudonymization salt. Salt values never leave this service.
type SaltService interface {
	// Initialize stores the first salt. It fails with ErrConflict once any salt exists.
	Initialize(ctx context.Context, caller access.Caller) (dto.SaltResponse, error)
	// Rotate activates a fresh salt and retires the current one. Stored pseudonyms are
	// left untouched.
	Rotate(ctx context.Context, caller access.Caller) (dto.SaltRotationResponse, error)
}

type saltService struct {
	tx        repository.Transactor
	engine    *access.Engine
	audit     AuditService
	publisher EventPublisher
	generate  func() ([]byte, error)
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewSaltService constructs the salt service. publisher may be nil.
func NewSaltService(tx repository.Transactor, engine *access.Engine, audit AuditService, publisher EventPublisher, logger zerolog.Logger) SaltService {
	return &saltService{
		tx:        tx,
		engine:    engine,
		audit:     audit,
		publisher: publisher,
		generate:  pseudonym.NewSalt,
		logger:    logger.With().Str("component", "salt_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-tutor-analytics/internal/service/salt"),
		now:       time.Now,
	}
}

func (s *saltService) Initialize(ctx context.Context, caller access.Caller) (dto.SaltResponse, error) {
	ctx, span := s.tracer.Start(ctx, "salt.initialize")
	defer span.End()

	decision, err := authorize(s.engine, caller, access.Request{Resource: access.ResourceRotateSalt})
	if err != nil {
		return dto.SaltResponse{}, err
	}

	value, err := s.generate()
	if err != nil {
		span.RecordError(err)
		return dto.SaltResponse{}, err
	}

	var created models.Salt
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context, stores repository.Stores) error {
		salt, err := stores.Salts.Initialize(ctx, value)
		if err != nil {
			return err
		}
		created = salt
		if !decision.Audited() {
			return nil
		}

		_, err = s.audit.RecordTo(ctx, stores.Audit, AuditEntry{
			Caller:     caller,
			ActionType: ActionSaltInitialized,
			Details:    map[string]interface{}{"salt_id": salt.ID},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "initialize_failed")
		return dto.SaltResponse{}, err
	}

	span.SetAttributes(attribute.Int64("salt.id", int64(created.ID)))
	s.logger.Info().Uint("salt_id", created.ID).Str("user_id", caller.UserID).Msg("salt initialised")
	return dto.NewSaltResponse(created), nil
}

func (s *saltService) Rotate(ctx context.Context, caller access.Caller) (dto.SaltRotationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "salt.rotate")
	defer span.End()

	decision, err := authorize(s.engine, caller, access.Request{Resource: access.ResourceRotateSalt})
	if err != nil {
		return dto.SaltRotationResponse{}, err
	}

	value, err := s.generate()
	if err != nil {
		span.RecordError(err)
		return dto.SaltRotationResponse{}, err
	}

	var next, previous models.Salt
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context, stores repository.Stores) error {
		var err error
		next, previous, err = stores.Salts.Rotate(ctx, value)
		if err != nil {
			return err
		}

		if !decision.Audited() {
			return nil
		}

		details := map[string]interface{}{"salt_id": next.ID}
		if previous.ID != 0 {
			details["previous_salt_id"] = previous.ID
		}
		_, err = s.audit.RecordTo(ctx, stores.Audit, AuditEntry{
			Caller:     caller,
			ActionType: ActionSaltRotated,
			Details:    details,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rotate_failed")
		return dto.SaltRotationResponse{}, err
	}

	response := dto.SaltRotationResponse{Active: dto.NewSaltResponse(next)}
	if previous.ID != 0 {
		prior := dto.NewSaltResponse(previous)
		response.Previous = &prior
	}

	if s.publisher != nil {
		event := events.SaltRotated{
			SaltID:         next.ID,
			PreviousSaltID: previous.ID,
			RotatedBy:      caller.UserID,
			CorrelationID:  CorrelationID(ctx),
			OccurredAt:     s.now().UTC(),
		}
		if err := s.publisher.SaltRotated(ctx, event); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish salt rotation event")
		}
	}

	span.SetAttributes(attribute.Int64("salt.id", int64(next.ID)))
	s.logger.Info().Uint("salt_id", next.ID).Uint("previous_salt_id", previous.ID).Str("user_id", caller.UserID).Msg("salt rotated")
	return response, nil
}

// authorize runs the engine and records the outcome for the access decision metrics.
func authorize(engine *access.Engine, caller access.Caller, req access.Request) (access.Decision, error) {
	decision, err := engine.Authorize(caller, req)
	outcome := "granted"
	switch {
	case err == nil:
		if !decision.Full() {
			outcome = "granted_limited"
		}
	default:
		outcome = denialOutcome(err)
	}
	observability.AccessDecisions().WithLabelValues(string(req.Resource), outcome).Inc()
	return decision, err
}
