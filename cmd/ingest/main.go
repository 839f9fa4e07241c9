package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-tutor-analytics/internal/access"
	"github.com/noah-isme/gema-tutor-analytics/internal/config"
	"github.com/noah-isme/gema-tutor-analytics/internal/database"
	"github.com/noah-isme/gema-tutor-analytics/internal/events"
	"github.com/noah-isme/gema-tutor-analytics/internal/ingest"
	"github.com/noah-isme/gema-tutor-analytics/internal/pseudonym"
	"github.com/noah-isme/gema-tutor-analytics/internal/repository"
	"github.com/noah-isme/gema-tutor-analytics/internal/service"
)

const sampleSize = 5

func main() {
	source := flag.String("source", "", "consent provenance source label")
	classID := flag.String("class", "", "class id applied to rows without one")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-source label] [-class id] <export.csv>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadWithoutAuth()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("tool", "ingest").Logger()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, "tutor-ingest")
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	file, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatalf("failed to open export: %v", err)
	}
	defer file.Close()

	validate := validator.New(validator.WithRequiredStructEnabled())
	publisher := events.NewPublisher(natsConn, cfg.NATSSubjectPrefix, logger)
	stores := repository.NewStores(db)
	audit := service.NewAuditService(stores.Audit, publisher, logger)
	aggregation := service.NewAggregationService(stores.Records, nil, 0, logger)
	ingestService := service.NewIngestService(
		repository.NewTransactor(db),
		access.NewEngine(),
		ingest.NewParser(validate, cfg.IngestMaxRows),
		audit,
		aggregation,
		publisher,
		cfg.ConsentSource,
		logger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = service.WithCorrelationID(ctx, "ingest-cli-"+time.Now().UTC().Format("20060102T150405"))

	result, err := ingestService.Ingest(ctx, access.SystemCaller("ingest-cli"), file, service.IngestOptions{
		Source:  *source,
		ClassID: *classID,
	})
	if err != nil {
		log.Fatalf("ingest failed: %v", err)
	}

	fmt.Printf("Processed %d records for %d students (batch %s)\n", result.RecordsIngested, result.DistinctStudents, result.BatchID)
	fmt.Printf("Consent provenance: %s\n", result.ConsentProvenance)

	recent, err := stores.Records.ListRecent(ctx, nil, sampleSize)
	if err != nil {
		log.Fatalf("failed to read stored records: %v", err)
	}
	fmt.Println("\nMost recent records:")
	for _, record := range recent {
		fmt.Printf("  %s...  %-20s %-20s score=%-4d uncertainty=%-6s %s\n",
			pseudonym.Short(record.Pseudonym), record.Topic, record.Concept, record.Score, record.Uncertainty,
			record.OccurredAt.Format(time.RFC3339))
	}

	rows, err := aggregation.Aggregate(ctx, repository.AggregateQuery{
		GroupBy: []string{repository.DimensionTopic, repository.DimensionUncertainty},
	})
	if err != nil {
		log.Fatalf("failed to aggregate records: %v", err)
	}
	fmt.Println("\nTopic x uncertainty:")
	for _, row := range rows {
		fmt.Println(formatAggregateRow(row))
	}
}

func formatAggregateRow(row repository.AggregateRow) string {
	return fmt.Sprintf("  %-20s %-6s students=%-4d avg=%.1f", row.Topic, row.Uncertainty, row.StudentCount, row.AvgScore)
}
