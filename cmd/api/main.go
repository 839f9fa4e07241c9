package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-tutor-analytics/internal/access"
	"github.com/noah-isme/gema-tutor-analytics/internal/config"
	"github.com/noah-isme/gema-tutor-analytics/internal/database"
	"github.com/noah-isme/gema-tutor-analytics/internal/events"
	"github.com/noah-isme/gema-tutor-analytics/internal/handler"
	"github.com/noah-isme/gema-tutor-analytics/internal/ingest"
	"github.com/noah-isme/gema-tutor-analytics/internal/middleware"
	"github.com/noah-isme/gema-tutor-analytics/internal/repository"
	"github.com/noah-isme/gema-tutor-analytics/internal/router"
	"github.com/noah-isme/gema-tutor-analytics/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not set; aggregate cache disabled")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	publisher := events.NewPublisher(natsConn, cfg.NATSSubjectPrefix, logger)
	engine := access.NewEngine(access.WithStrictStudentScope(cfg.StrictStudentScope))
	directory := access.DefaultDirectory()

	stores := repository.NewStores(db)
	transactor := repository.NewTransactor(db)

	auditService := service.NewAuditService(stores.Audit, publisher, logger)
	aggregationService := service.NewAggregationService(stores.Records, redisClient, cfg.AggregateCacheTTL, logger)
	dashboardService := service.NewDashboardService(engine, stores.Records, aggregationService, auditService, validate, service.DashboardConfig{
		AuditLogLimit:         cfg.AuditLogLimit,
		ClassRadarRecordLimit: cfg.ClassRadarRecordLimit,
	}, logger)
	ingestService := service.NewIngestService(transactor, engine, ingest.NewParser(validate, cfg.IngestMaxRows), auditService, aggregationService, publisher, cfg.ConsentSource, logger)
	saltService := service.NewSaltService(transactor, engine, auditService, publisher, logger)

	dashboardHandler := handler.NewDashboardHandler(dashboardService, logger)
	ingestHandler := handler.NewIngestHandler(ingestService, cfg.IngestMaxBytes(), logger)
	saltHandler := handler.NewSaltHandler(saltService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.IngestMaxBytes()) + 1<<20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		DashboardHandler: dashboardHandler,
		IngestHandler:    ingestHandler,
		SaltHandler:      saltHandler,
		JWTMiddleware:    middleware.JWTProtected(cfg.JWTSecret),
		CallerMiddleware: middleware.ResolveCaller(directory),
		RateLimiter:      middleware.RateLimit("api", cfg.RateLimitMax, cfg.RateLimitWindow),
		HealthProbes:     healthProbes(db, redisClient, natsConn),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func healthProbes(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) map[string]handler.HealthProbe {
	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	if natsConn != nil {
		probes["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return errors.New("nats disconnected")
			}
			return nil
		}
	}
	return probes
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
