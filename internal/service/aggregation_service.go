package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-tutor-analytics/internal/observability"
	"github.com/noah-isme/gema-tutor-analytics/internal/repository"
)

const (
	aggregateCachePrefix     = "analytics:aggregate:"
	aggregateCacheVersionKey = "analytics:aggregate:version"
)

// AggregationService computes grouped statistics over the record store.
type AggregationService interface {
	Aggregate(ctx context.Context, query repository.AggregateQuery) ([]repository.AggregateRow, error)
	// Invalidate drops every cached aggregate. Called after a batch commits.
	Invalidate(ctx context.Context) error
}

type aggregationService struct {
	records  repository.StudentRecordRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewAggregationService constructs the aggregation layer. cache may be nil.
func NewAggregationService(records repository.StudentRecordRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) AggregationService {
	return &aggregationService{
		records:  records,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "aggregation_service").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/gema-tutor-analytics/internal/service/aggregation"),
	}
}

func (s *aggregationService) Aggregate(ctx context.Context, query repository.AggregateQuery) ([]repository.AggregateRow, error) {
	query.GroupBy = repository.NormalizeDimensions(query.GroupBy)

	ctx, span := s.tracer.Start(ctx, "analytics.aggregate", trace.WithAttributes(
		attribute.StringSlice("analytics.group_by", query.GroupBy),
		attribute.Int("analytics.class_count", len(query.ClassIDs)),
	))
	defer span.End()

	if query.ClassIDs != nil && len(query.ClassIDs) == 0 {
		return []repository.AggregateRow{}, nil
	}

	cacheKey := ""
	if s.cache != nil {
		cacheKey = s.cacheKey(ctx, query)
		span.SetAttributes(attribute.String("analytics.cache_key", cacheKey))

		cached, err := s.cache.Get(ctx, cacheKey).Result()
		if err == nil {
			var rows []repository.AggregateRow
			if unmarshalErr := json.Unmarshal([]byte(cached), &rows); unmarshalErr == nil {
				observability.AggregateCache().WithLabelValues("hit").Inc()
				span.SetAttributes(attribute.Bool("analytics.cache_hit", true))
				return rows, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read aggregate cache")
			span.RecordError(err)
		}
		observability.AggregateCache().WithLabelValues("miss").Inc()
	}

	rows, err := s.records.Aggregate(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregate_failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("analytics.group_count", len(rows)))

	if s.cache != nil {
		payload, err := json.Marshal(rows)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store aggregate cache")
				span.RecordError(err)
			}
		}
	}

	return rows, nil
}

func (s *aggregationService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Incr(ctx, aggregateCacheVersionKey).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate aggregate cache")
		return err
	}
	return nil
}

// cacheKey folds the cache generation into the key so a version bump orphans every entry.
func (s *aggregationService) cacheKey(ctx context.Context, query repository.AggregateQuery) string {
	version, err := s.cache.Get(ctx, aggregateCacheVersionKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read aggregate cache version")
		}
		version = "0"
	}

	classes := "*"
	if query.ClassIDs != nil {
		sorted := append([]string(nil), query.ClassIDs...)
		sort.Strings(sorted)
		classes = strings.Join(sorted, ",")
	}

	sum := sha256.Sum256([]byte(strings.Join(query.GroupBy, ",") + "|" + classes))
	return aggregateCachePrefix + version + ":" + hex.EncodeToString(sum[:8])
}
