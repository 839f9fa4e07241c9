package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gema-tutor-analytics/internal/access"
	"github.com/noah-isme/gema-tutor-analytics/internal/events"
	"github.com/noah-isme/gema-tutor-analytics/internal/ingest"
	"github.com/noah-isme/gema-tutor-analytics/internal/models"
	"github.com/noah-isme/gema-tutor-analytics/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type recordingPublisher struct {
	mu       sync.Mutex
	ingests  []events.IngestCompleted
	rotation []events.SaltRotated
	audits   []events.AuditRecorded
}

func (p *recordingPublisher) IngestCompleted(_ context.Context, event events.IngestCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ingests = append(p.ingests, event)
	return nil
}

func (p *recordingPublisher) SaltRotated(_ context.Context, event events.SaltRotated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rotation = append(p.rotation, event)
	return nil
}

func (p *recordingPublisher) AuditRecorded(_ context.Context, event events.AuditRecorded) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audits = append(p.audits, event)
	return nil
}

// failingAuditRepo simulates an audit store that rejects writes.
type failingAuditRepo struct {
	repository.AuditLogRepository
}

func (failingAuditRepo) Create(context.Context, *models.AuditLogEntry) error {
	return errors.New("audit store unavailable")
}

type testEnv struct {
	db        *gorm.DB
	stores    repository.Stores
	publisher *recordingPublisher
	engine    *access.Engine
	audit     AuditService
	dashboard DashboardService
	ingest    IngestService
	salts     SaltService
}

func newTestEnv(t *testing.T, opts ...access.Option) *testEnv {
	t.Helper()
	db := setupServiceDB(t)
	stores := repository.NewStores(db)
	publisher := &recordingPublisher{}
	engine := access.NewEngine(opts...)
	validate := validator.New(validator.WithRequiredStructEnabled())

	audit := NewAuditService(stores.Audit, publisher, testLogger())
	aggregation := NewAggregationService(stores.Records, nil, 0, testLogger())
	tx := repository.NewTransactor(db)

	return &testEnv{
		db:        db,
		stores:    stores,
		publisher: publisher,
		engine:    engine,
		audit:     audit,
		dashboard: NewDashboardService(engine, stores.Records, aggregation, audit, validate, DashboardConfig{}, testLogger()),
		ingest:    NewIngestService(tx, engine, ingest.NewParser(validate, 0), audit, aggregation, publisher, "Canvas Export Demo", testLogger()),
		salts:     NewSaltService(tx, engine, audit, publisher, testLogger()),
	}
}

func (e *testEnv) auditCount(t *testing.T) int64 {
	t.Helper()
	count, err := e.stores.Audit.Count(context.Background())
	require.NoError(t, err)
	return count
}

func mustCaller(t *testing.T, userID string) access.Caller {
	t.Helper()
	caller, err := access.DefaultDirectory().Resolve(userID)
	require.NoError(t, err)
	return caller
}

const exportHeader = "StudentID,Topic,Concept,Score,Uncertainty,InteractionType,Timestamp,Rationale,ClassID\n"

func repositoryFilter(limit int) repository.AuditLogFilter {
	return repository.AuditLogFilter{Limit: limit}
}
