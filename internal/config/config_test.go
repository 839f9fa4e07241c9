package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("TUTOR_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)

	cfg, err := LoadWithoutAuth()
	require.NoError(t, err)
	require.Empty(t, cfg.JWTSecret)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TUTOR_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "Tutor Analytics API", cfg.AppName)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, "sqlite://tutor_analytics.db", cfg.DatabaseURL)
	require.Equal(t, 5*time.Minute, cfg.AggregateCacheTTL)
	require.Equal(t, 50, cfg.AuditLogLimit)
	require.Equal(t, 200, cfg.ClassRadarRecordLimit)
	require.False(t, cfg.StrictStudentScope)
	require.Equal(t, DefaultConsentSource, cfg.ConsentSource)
	require.Equal(t, "tutor", cfg.NATSSubjectPrefix)
	require.Equal(t, int64(10*1024*1024), cfg.IngestMaxBytes())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TUTOR_JWT_SECRET", "secret")
	t.Setenv("TUTOR_APP_PORT", ":9090")
	t.Setenv("TUTOR_AGGREGATE_CACHE_TTL", "30s")
	t.Setenv("TUTOR_ACCESS_STRICT_STUDENT_SCOPE", "true")
	t.Setenv("TUTOR_INGEST_CONSENT_SOURCE", "LMS Nightly")
	t.Setenv("TUTOR_AUDIT_LOG_LIMIT", "-1")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.Equal(t, 30*time.Second, cfg.AggregateCacheTTL)
	require.True(t, cfg.StrictStudentScope)
	require.Equal(t, "LMS Nightly", cfg.ConsentSource)
	require.Equal(t, 50, cfg.AuditLogLimit)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("TUTOR_JWT_SECRET", "secret")
	t.Setenv("TUTOR_AGGREGATE_CACHE_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
}
