package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-tutor-analytics/internal/access"
	"github.com/noah-isme/gema-tutor-analytics/internal/dto"
	"github.com/noah-isme/gema-tutor-analytics/internal/models"
	"github.com/noah-isme/gema-tutor-analytics/internal/pseudonym"
	"github.com/noah-isme/gema-tutor-analytics/internal/repository"
	"github.com/noah-isme/gema-tutor-analytics/internal/sentinel"
)

// DashboardConfig bounds the reads served to dashboards.
type DashboardConfig struct {
	AuditLogLimit         int
	ClassRadarRecordLimit int
}

// DashboardService serves role-filtered analytics. Every operation runs
// authorize → read → redact → audit → respond; a denial returns before any read.
type DashboardService interface {
	GetClassAggregate(ctx context.Context, caller access.Caller, classID string) (dto.ClassRadarResponse, error)
	GetStudentDetail(ctx context.Context, caller access.Caller, token string) (dto.StudentDetailResponse, error)
	GetAuditLog(ctx context.Context, caller access.Caller) (dto.AuditLogListResponse, error)
	WriteAuditEntry(ctx context.Context, caller access.Caller, req dto.AuditEntryRequest) (dto.AuditLogItem, error)
	GetCallerInfo(ctx context.Context, caller access.Caller) (dto.CallerInfoResponse, error)
}

type dashboardService struct {
	engine      *access.Engine
	records     repository.StudentRecordRepository
	aggregation AggregationService
	audit       AuditService
	validator   *validator.Validate
	cfg         DashboardConfig
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewDashboardService constructs the dashboard service.
func NewDashboardService(engine *access.Engine, records repository.StudentRecordRepository, aggregation AggregationService, audit AuditService, validate *validator.Validate, cfg DashboardConfig, logger zerolog.Logger) DashboardService {
	if cfg.AuditLogLimit <= 0 {
		cfg.AuditLogLimit = 50
	}
	if cfg.ClassRadarRecordLimit <= 0 {
		cfg.ClassRadarRecordLimit = 200
	}
	return &dashboardService{
		engine:      engine,
		records:     records,
		aggregation: aggregation,
		audit:       audit,
		validator:   validate,
		cfg:         cfg,
		logger:      logger.With().Str("component", "dashboard_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-tutor-analytics/internal/service/dashboard"),
		now:         time.Now,
	}
}

func (s *dashboardService) GetClassAggregate(ctx context.Context, caller access.Caller, classID string) (dto.ClassRadarResponse, error) {
	ctx, span := s.tracer.Start(ctx, "dashboard.class_aggregate")
	defer span.End()

	decision, err := authorize(s.engine, caller, access.Request{Resource: access.ResourceClassAggregate, Scope: classID})
	if err != nil {
		return dto.ClassRadarResponse{}, err
	}
	span.SetAttributes(attribute.String("access.view", string(decision.View)))

	rows, err := s.aggregation.Aggregate(ctx, repository.AggregateQuery{
		GroupBy:  repository.AllDimensions,
		ClassIDs: decision.ClassIDs,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregate_failed")
		return dto.ClassRadarResponse{}, err
	}

	response := dto.ClassRadarResponse{
		Data:        make([]dto.AggregateRowResponse, 0, len(rows)),
		ClassIDs:    scopeList(decision.ClassIDs),
		UserRole:    caller.Role.Name,
		Permissions: caller.Role.PermissionStrings(),
		AccessLevel: string(decision.View),
		Timestamp:   s.now().UTC(),
	}
	for _, row := range rows {
		response.Data = append(response.Data, dto.NewAggregateRowResponse(row))
	}

	if decision.Full() {
		records, err := s.records.ListRecent(ctx, decision.ClassIDs, s.cfg.ClassRadarRecordLimit)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "list_records_failed")
			return dto.ClassRadarResponse{}, err
		}
		response.Records = make([]dto.RecordResponse, 0, len(records))
		for _, record := range records {
			response.Records = append(response.Records, dto.NewRecordResponse(record))
		}
	}

	return response, nil
}

func (s *dashboardService) GetStudentDetail(ctx context.Context, caller access.Caller, token string) (dto.StudentDetailResponse, error) {
	ctx, span := s.tracer.Start(ctx, "dashboard.student_detail")
	defer span.End()

	token = strings.ToLower(strings.TrimSpace(token))
	decision, err := authorize(s.engine, caller, access.Request{Resource: access.ResourceStudentDetail, Scope: token})
	if err != nil {
		return dto.StudentDetailResponse{}, err
	}
	if !pseudonym.Valid(token) {
		return dto.StudentDetailResponse{}, fmt.Errorf("%w: malformed pseudonym", sentinel.ErrInvalidInput)
	}
	span.SetAttributes(attribute.String("student.pseudonym_prefix", pseudonym.Short(token)))

	records, err := s.records.ListByPseudonym(ctx, token)
	if err != nil {
		return dto.StudentDetailResponse{}, err
	}

	if decision.CheckStudentScope && !decision.Permits(recordClasses(records)...) {
		return dto.StudentDetailResponse{}, sentinel.ErrOutOfScope
	}

	mastery, err := s.records.MasterySummary(ctx, token)
	if err != nil {
		span.RecordError(err)
		return dto.StudentDetailResponse{}, err
	}

	full := decision.Full()
	response := dto.StudentDetailResponse{
		StudentName:    studentDisplayName(token),
		StudentID:      token,
		TimelineEvents: make([]dto.TimelineEvent, 0, len(records)),
		MasterySummary: make([]dto.MasterySummaryItem, 0, len(mastery)),
		UserRole:       caller.Role.Name,
		AccessLevel:    string(decision.View),
	}
	for _, record := range records {
		response.TimelineEvents = append(response.TimelineEvents, dto.NewTimelineEvent(record, full))
	}
	for _, row := range mastery {
		response.MasterySummary = append(response.MasterySummary, dto.MasterySummaryItem{
			Topic:            row.Topic,
			AverageScore:     row.AverageScore,
			InteractionCount: row.InteractionCount,
		})
	}

	if decision.Audited() {
		if _, err := s.audit.Record(ctx, AuditEntry{
			Caller:     caller,
			ActionType: ActionViewStudentDetail,
			Details: map[string]interface{}{
				"student_id":   token,
				"access_level": string(decision.View),
				"record_count": len(records),
			},
		}); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "audit_failed")
			return dto.StudentDetailResponse{}, err
		}
	}

	return response, nil
}

func (s *dashboardService) GetAuditLog(ctx context.Context, caller access.Caller) (dto.AuditLogListResponse, error) {
	ctx, span := s.tracer.Start(ctx, "dashboard.audit_log")
	defer span.End()

	decision, err := authorize(s.engine, caller, access.Request{Resource: access.ResourceAuditLog})
	if err != nil {
		return dto.AuditLogListResponse{}, err
	}

	entries, err := s.audit.List(ctx, repository.AuditLogFilter{Limit: s.cfg.AuditLogLimit})
	if err != nil {
		span.RecordError(err)
		return dto.AuditLogListResponse{}, err
	}

	response := dto.AuditLogListResponse{
		AuditLogs: make([]dto.AuditLogItem, 0, len(entries)),
		UserRole:  caller.Role.Name,
		TotalLogs: len(entries),
	}
	for _, entry := range entries {
		response.AuditLogs = append(response.AuditLogs, dto.NewAuditLogItem(entry))
	}

	if decision.Audited() {
		if _, err := s.audit.Record(ctx, AuditEntry{
			Caller:     caller,
			ActionType: ActionViewAuditLog,
			Details:    map[string]interface{}{"returned": len(entries)},
		}); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "audit_failed")
			return dto.AuditLogListResponse{}, err
		}
	}

	return response, nil
}

func (s *dashboardService) WriteAuditEntry(ctx context.Context, caller access.Caller, req dto.AuditEntryRequest) (dto.AuditLogItem, error) {
	if _, err := authorize(s.engine, caller, access.Request{Resource: access.ResourceWriteAuditEntry}); err != nil {
		return dto.AuditLogItem{}, err
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.AuditLogItem{}, fmt.Errorf("%w: %v", sentinel.ErrInvalidInput, err)
	}

	entry, err := s.audit.Record(ctx, AuditEntry{
		Caller:     caller,
		ActionType: req.ActionType,
		Details:    req.Details,
	})
	if err != nil {
		return dto.AuditLogItem{}, err
	}

	return dto.NewAuditLogItem(entry), nil
}

func (s *dashboardService) GetCallerInfo(_ context.Context, caller access.Caller) (dto.CallerInfoResponse, error) {
	if !caller.Authenticated() {
		return dto.CallerInfoResponse{}, sentinel.ErrUnauthenticated
	}
	return dto.CallerInfoResponse{
		UserID:      caller.UserID,
		Role:        caller.Role.Name,
		Permissions: caller.Role.PermissionStrings(),
		ClassIDs:    scopeList(caller.Role.Scopes),
	}, nil
}

func studentDisplayName(token string) string {
	prefix := token
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "Student " + prefix + "..."
}

func recordClasses(records []models.StudentRecord) []string {
	seen := make(map[string]struct{})
	classes := make([]string, 0)
	for _, record := range records {
		if record.ClassID == "" {
			continue
		}
		if _, ok := seen[record.ClassID]; ok {
			continue
		}
		seen[record.ClassID] = struct{}{}
		classes = append(classes, record.ClassID)
	}
	return classes
}

// scopeList renders a nil scope (every class) as the wildcard.
func scopeList(classIDs []string) []string {
	if classIDs == nil {
		return []string{access.WildcardScope}
	}
	return append([]string(nil), classIDs...)
}
