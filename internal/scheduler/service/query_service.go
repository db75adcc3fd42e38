package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"golang-market-insight/internal/entity"
	"golang-market-insight/internal/executor/repository"
	"golang-market-insight/internal/scheduler/dto"
	"golang-market-insight/pkg/common"
	"golang-market-insight/pkg/logger"
)

// QueryService serves the read-only output API. Results are cached for a short TTL.
type QueryService interface {
	GetAnalytics(ctx context.Context, q dto.RangeQuery) ([]dto.AnalyticsResponse, error)
	GetInsights(ctx context.Context, q dto.RangeQuery) ([]dto.InsightResponse, error)
	GetRuns(ctx context.Context, filter entity.JobRunFilter) ([]dto.RunResponse, error)
}

type queryService struct {
	analytics     repository.AnalyticsResultRepository
	insights      repository.InsightRepository
	jobRuns       repository.JobRunRepository
	logger        *logger.Logger
	inmemoryCache *cache.Cache
	maxRows       int
}

// NewQueryService creates a new query service.
func NewQueryService(
	analytics repository.AnalyticsResultRepository,
	insights repository.InsightRepository,
	jobRuns repository.JobRunRepository,
	log *logger.Logger,
	cacheTTL time.Duration,
	maxRows int,
) QueryService {
	return &queryService{
		analytics:     analytics,
		insights:      insights,
		jobRuns:       jobRuns,
		logger:        log,
		inmemoryCache: cache.New(cacheTTL, 2*cacheTTL),
		maxRows:       maxRows,
	}
}

func validateRange(q dto.RangeQuery) (dto.RangeQuery, error) {
	q.Symbol = strings.ToUpper(strings.TrimSpace(q.Symbol))
	if q.Symbol == "" {
		return q, common.NewValidationError("symbol", "is required")
	}
	if !q.From.Before(q.To) {
		return q, common.NewValidationError("from", "must be before to")
	}
	return q, nil
}

func rangeKey(kind string, q dto.RangeQuery) string {
	return fmt.Sprintf("%s:%s:%d:%d", kind, q.Symbol, q.From.UnixNano(), q.To.UnixNano())
}

func (s *queryService) GetAnalytics(ctx context.Context, q dto.RangeQuery) ([]dto.AnalyticsResponse, error) {
	q, err := validateRange(q)
	if err != nil {
		return nil, err
	}
	key := rangeKey("analytics", q)
	if cached, found := s.inmemoryCache.Get(key); found {
		return cached.([]dto.AnalyticsResponse), nil
	}

	results, err := s.analytics.FindByRange(ctx, q.Symbol, q.From, q.To)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to query analytics results", logger.ErrorField(err), logger.StringField("symbol", q.Symbol))
		return nil, err
	}

	out := make([]dto.AnalyticsResponse, 0, len(results))
	for _, r := range limit(results, s.maxRows) {
		out = append(out, dto.ToAnalyticsResponse(r))
	}
	s.inmemoryCache.SetDefault(key, out)
	return out, nil
}

func (s *queryService) GetInsights(ctx context.Context, q dto.RangeQuery) ([]dto.InsightResponse, error) {
	q, err := validateRange(q)
	if err != nil {
		return nil, err
	}
	key := rangeKey("insights", q)
	if cached, found := s.inmemoryCache.Get(key); found {
		return cached.([]dto.InsightResponse), nil
	}

	insights, err := s.insights.FindCurrentByRange(ctx, q.Symbol, q.From, q.To)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to query insights", logger.ErrorField(err), logger.StringField("symbol", q.Symbol))
		return nil, err
	}

	out := make([]dto.InsightResponse, 0, len(insights))
	for _, i := range limit(insights, s.maxRows) {
		out = append(out, dto.ToInsightResponse(i))
	}
	s.inmemoryCache.SetDefault(key, out)
	return out, nil
}

// GetRuns is not cached: operators poll it to watch runs progress.
func (s *queryService) GetRuns(ctx context.Context, filter entity.JobRunFilter) ([]dto.RunResponse, error) {
	filter.Symbol = strings.ToUpper(strings.TrimSpace(filter.Symbol))
	if filter.Status != "" && !filter.Status.IsTerminal() && !filter.Status.IsActive() && filter.Status != entity.JobRunStatusPending {
		return nil, common.NewValidationError("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return nil, common.NewValidationError("from", "must be before to")
	}
	if filter.Limit <= 0 || filter.Limit > s.maxRows {
		filter.Limit = s.maxRows
	}

	runs, err := s.jobRuns.Find(ctx, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to query job runs", logger.ErrorField(err))
		return nil, err
	}

	out := make([]dto.RunResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, dto.ToRunResponse(r))
	}
	return out, nil
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
