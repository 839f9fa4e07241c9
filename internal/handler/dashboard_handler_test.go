package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-tutor-analytics/internal/access"
	"github.com/noah-isme/gema-tutor-analytics/internal/dto"
	"github.com/noah-isme/gema-tutor-analytics/internal/handler"
	"github.com/noah-isme/gema-tutor-analytics/internal/middleware"
	"github.com/noah-isme/gema-tutor-analytics/internal/sentinel"
	"github.com/noah-isme/gema-tutor-analytics/internal/service"
)

type stubDashboardService struct {
	err        error
	lastCaller access.Caller
	lastScope  string
	lastEntry  dto.AuditEntryRequest
	correlated string
}

func (s *stubDashboardService) GetClassAggregate(ctx context.Context, caller access.Caller, classID string) (dto.ClassRadarResponse, error) {
	s.lastCaller, s.lastScope = caller, classID
	if s.err != nil {
		return dto.ClassRadarResponse{}, s.err
	}
	return dto.ClassRadarResponse{
		Data:        []dto.AggregateRowResponse{{Topic: "Fractions", Concept: "Equivalence", Uncertainty: "low", StudentCount: 2, AvgScore: 85}},
		UserRole:    caller.Role.Name,
		AccessLevel: "limited",
	}, nil
}

func (s *stubDashboardService) GetStudentDetail(ctx context.Context, caller access.Caller, token string) (dto.StudentDetailResponse, error) {
	s.lastCaller, s.lastScope = caller, token
	if s.err != nil {
		return dto.StudentDetailResponse{}, s.err
	}
	return dto.StudentDetailResponse{StudentID: token, UserRole: caller.Role.Name, AccessLevel: "full"}, nil
}

func (s *stubDashboardService) GetAuditLog(ctx context.Context, caller access.Caller) (dto.AuditLogListResponse, error) {
	s.lastCaller = caller
	if s.err != nil {
		return dto.AuditLogListResponse{}, s.err
	}
	return dto.AuditLogListResponse{AuditLogs: []dto.AuditLogItem{{ID: 1, Action: "VIEW_STUDENT_DETAIL"}}, UserRole: caller.Role.Name, TotalLogs: 1}, nil
}

func (s *stubDashboardService) WriteAuditEntry(ctx context.Context, caller access.Caller, req dto.AuditEntryRequest) (dto.AuditLogItem, error) {
	s.lastCaller, s.lastEntry = caller, req
	s.correlated = service.CorrelationID(ctx)
	if s.err != nil {
		return dto.AuditLogItem{}, s.err
	}
	return dto.AuditLogItem{ID: 9, UserID: caller.UserID, Role: caller.Role.Name, Action: req.ActionType}, nil
}

func (s *stubDashboardService) GetCallerInfo(ctx context.Context, caller access.Caller) (dto.CallerInfoResponse, error) {
	return dto.CallerInfoResponse{UserID: caller.UserID, Role: caller.Role.Name, Permissions: caller.Role.PermissionStrings()}, nil
}

func newDashboardApp(svc *stubDashboardService, userID string) *fiber.App {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	group := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		return c.Next()
	}, middleware.ResolveCaller(access.DefaultDirectory()))
	handler.NewDashboardHandler(svc, zerolog.Nop()).Register(group)
	return app
}

func TestDashboardHandlerClassRadar(t *testing.T) {
	svc := &stubDashboardService{}
	app := newDashboardApp(svc, "teacher_123")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/class-radar?class_id=CLASS_A", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Success bool                   `json:"success"`
		Data    dto.ClassRadarResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.True(t, payload.Success)
	require.Equal(t, "teacher", payload.Data.UserRole)
	require.Equal(t, "CLASS_A", svc.lastScope)
	require.Equal(t, "teacher_123", svc.lastCaller.UserID)
}

func TestDashboardHandlerMapsErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{sentinel.ErrForbidden, fiber.StatusForbidden},
		{sentinel.ErrOutOfScope, fiber.StatusForbidden},
		{fmt.Errorf("lookup: %w", sentinel.ErrNotFound), fiber.StatusNotFound},
		{fmt.Errorf("%w: malformed pseudonym", sentinel.ErrInvalidInput), fiber.StatusBadRequest},
		{sentinel.ErrNoActiveSalt, fiber.StatusConflict},
		{fmt.Errorf("write audit entry: %w", sentinel.ErrStorage), fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		svc := &stubDashboardService{err: tc.err}
		app := newDashboardApp(svc, "admin_001")

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/students/abc", nil), -1)
		require.NoError(t, err)
		require.Equal(t, tc.status, resp.StatusCode, tc.err.Error())

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		require.Equal(t, false, payload["success"])
		require.NotContains(t, payload, "data")
	}
}

func TestDashboardHandlerForbiddenMessageIsCategoryOnly(t *testing.T) {
	svc := &stubDashboardService{err: fmt.Errorf("%w: class CLASS_Z", sentinel.ErrOutOfScope)}
	app := newDashboardApp(svc, "teacher_123")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/class-radar?class_id=CLASS_Z", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	var payload map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "out of scope", payload["message"])
}

func TestDashboardHandlerWriteAuditEntry(t *testing.T) {
	svc := &stubDashboardService{}
	app := newDashboardApp(svc, "teacher_456")

	body, err := json.Marshal(map[string]interface{}{
		"action_type": "OVERRIDE_CHANGED",
		"details":     map[string]interface{}{"setting": "hint_level"},
		"user_id":     "admin_001",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/audit-logs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", "corr-7")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	require.Equal(t, "teacher_456", svc.lastCaller.UserID)
	require.Equal(t, "OVERRIDE_CHANGED", svc.lastEntry.ActionType)
	require.Equal(t, "hint_level", svc.lastEntry.Details["setting"])
	require.Equal(t, "corr-7", svc.correlated)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/audit-logs", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Empty(t, svc.lastEntry.ActionType)
}

func TestDashboardHandlerAuditLogsAndUserInfo(t *testing.T) {
	svc := &stubDashboardService{}
	app := newDashboardApp(svc, "dpo_001")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var logs struct {
		Data dto.AuditLogListResponse `json:"data"`
		Meta map[string]interface{}   `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&logs))
	require.Equal(t, 1, logs.Data.TotalLogs)
	require.Equal(t, float64(1), logs.Meta["total_logs"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/user-info", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var info struct {
		Data dto.CallerInfoResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	require.Equal(t, "dpo", info.Data.Role)
	require.Contains(t, info.Data.Permissions, "view_audit_logs")
}

func TestDashboardHandlerRejectsUnknownUser(t *testing.T) {
	svc := &stubDashboardService{}
	app := newDashboardApp(svc, "nobody")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/user-info", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
