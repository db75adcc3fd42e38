package repository

import (
	"context"
	"time"

	"golang-market-insight/internal/entity"
	"golang-market-insight/internal/executor/dto"
)

// MarketDataSource fetches normalized bars from an external provider.
// Errors wrap common.ErrSourceUnavailable (retryable) or common.ErrInvalidSymbol.
type MarketDataSource interface {
	Fetch(ctx context.Context, req dto.FetchRequest) ([]entity.MarketDataPoint, error)
	Name() string
}

// MarketDataRepository is the time-series store. Upsert is its only mutation.
type MarketDataRepository interface {
	Upsert(ctx context.Context, points []entity.MarketDataPoint) error
	QueryRange(ctx context.Context, symbol string, start, end time.Time) ([]entity.MarketDataPoint, error)
	LatestPeriod(ctx context.Context, symbol string) (*time.Time, error)
}

// JobRunRepository persists job runs. Every state change after the claim is
// conditioned on the claim token, so a run that lost ownership cannot be moved.
type JobRunRepository interface {
	CreateIfAbsent(ctx context.Context, run *entity.JobRun) error
	Claim(ctx context.Context, key entity.JobRunKey, token string) (bool, error)
	Transition(ctx context.Context, key entity.JobRunKey, token string, status entity.JobRunStatus) error
	Release(ctx context.Context, key entity.JobRunKey, token string, cause error) error
	Complete(ctx context.Context, key entity.JobRunKey, token string, outcome entity.JobRunOutcome, insightSource entity.InsightSource) error
	Fail(ctx context.Context, key entity.JobRunKey, token string, reason entity.FailureReason, cause error) (bool, error)
	Skip(ctx context.Context, key entity.JobRunKey) error
	Get(ctx context.Context, key entity.JobRunKey) (*entity.JobRun, error)
	Find(ctx context.Context, filter entity.JobRunFilter) ([]entity.JobRun, error)
	LatestPeriodEnd(ctx context.Context, symbol string) (*time.Time, error)
	FailStale(ctx context.Context, updatedBefore time.Time) (int64, error)
}

// AnalyticsResultRepository keeps one result per (symbol, period start).
type AnalyticsResultRepository interface {
	Replace(ctx context.Context, result *entity.AnalyticsResult) error
	FindByRange(ctx context.Context, symbol string, from, to time.Time) ([]entity.AnalyticsResult, error)
}

// InsightRepository appends insights; reads return the newest per period.
type InsightRepository interface {
	Create(ctx context.Context, insight *entity.Insight) error
	FindCurrentByRange(ctx context.Context, symbol string, from, to time.Time) ([]entity.Insight, error)
}

// AIRepository is an insight text provider. Errors wrap common.ErrProviderTimeout,
// common.ErrProviderRateLimited or common.ErrProviderError.
type AIRepository interface {
	GenerateInsight(ctx context.Context, prompt string) (string, error)
	Provider() string
	Model() string
}

// EventPublisher announces terminal job runs to downstream consumers.
type EventPublisher interface {
	PublishRunEvent(ctx context.Context, event dto.RunEvent) error
}

// DedupePoints keeps the last point per (symbol, timestamp), preserving first-seen order.
// A single INSERT ... ON CONFLICT statement cannot touch the same key twice.
func DedupePoints(points []entity.MarketDataPoint) []entity.MarketDataPoint {
	type key struct {
		symbol string
		ts     int64
	}
	index := make(map[key]int, len(points))
	out := make([]entity.MarketDataPoint, 0, len(points))
	for _, p := range points {
		k := key{symbol: p.Symbol, ts: p.Timestamp.UnixNano()}
		if i, ok := index[k]; ok {
			out[i] = p
			continue
		}
		index[k] = len(out)
		out = append(out, p)
	}
	return out
}
