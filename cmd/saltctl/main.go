package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-tutor-analytics/internal/access"
	"github.com/noah-isme/gema-tutor-analytics/internal/config"
	"github.com/noah-isme/gema-tutor-analytics/internal/database"
	"github.com/noah-isme/gema-tutor-analytics/internal/events"
	"github.com/noah-isme/gema-tutor-analytics/internal/repository"
	"github.com/noah-isme/gema-tutor-analytics/internal/service"
)

func main() {
	if len(os.Args) != 2 || (os.Args[1] != "init" && os.Args[1] != "rotate") {
		fmt.Fprintf(os.Stderr, "usage: %s init|rotate\n", os.Args[0])
		os.Exit(2)
	}

	cfg, err := config.LoadWithoutAuth()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("tool", "saltctl").Logger()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, "tutor-saltctl")
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	publisher := events.NewPublisher(natsConn, cfg.NATSSubjectPrefix, logger)
	stores := repository.NewStores(db)
	salts := service.NewSaltService(
		repository.NewTransactor(db),
		access.NewEngine(),
		service.NewAuditService(stores.Audit, publisher, logger),
		publisher,
		logger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	caller := access.SystemCaller("saltctl")

	switch os.Args[1] {
	case "init":
		salt, err := salts.Initialize(ctx, caller)
		if err != nil {
			log.Fatalf("salt initialization failed: %v", err)
		}
		fmt.Printf("Initialized salt %d at %s\n", salt.ID, salt.CreatedAt.Format(time.RFC3339))
	case "rotate":
		result, err := salts.Rotate(ctx, caller)
		if err != nil {
			log.Fatalf("salt rotation failed: %v", err)
		}
		if result.Previous != nil {
			fmt.Printf("Deactivated salt %d\n", result.Previous.ID)
		}
		fmt.Printf("Active salt is now %d\n", result.Active.ID)
		fmt.Println("Existing pseudonyms are no longer linkable to future ingests.")
	}
}
