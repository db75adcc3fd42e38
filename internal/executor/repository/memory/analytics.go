package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang-market-insight/internal/entity"
	"golang-market-insight/internal/executor/repository"
)

type analyticsKey struct {
	symbol string
	start  int64
}

type analyticsResultRepository struct {
	mu      sync.RWMutex
	results map[analyticsKey]entity.AnalyticsResult
}

func NewAnalyticsResultRepository() repository.AnalyticsResultRepository {
	return &analyticsResultRepository{results: make(map[analyticsKey]entity.AnalyticsResult)}
}

func (r *analyticsResultRepository) Replace(ctx context.Context, result *entity.AnalyticsResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[analyticsKey{symbol: result.Symbol, start: result.PeriodStart.UnixNano()}] = *result
	return nil
}

func (r *analyticsResultRepository) FindByRange(ctx context.Context, symbol string, from, to time.Time) ([]entity.AnalyticsResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []entity.AnalyticsResult
	for _, res := range r.results {
		if res.Symbol != symbol || res.PeriodStart.Before(from) || !res.PeriodStart.Before(to) {
			continue
		}
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.Before(out[j].PeriodStart) })
	return out, nil
}

type insightRepository struct {
	mu       sync.RWMutex
	nextID   uint
	insights []entity.Insight
}

func NewInsightRepository() repository.InsightRepository {
	return &insightRepository{}
}

func (r *insightRepository) Create(ctx context.Context, insight *entity.Insight) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	insight.ID = r.nextID
	r.insights = append(r.insights, *insight)
	return nil
}

func (r *insightRepository) FindCurrentByRange(ctx context.Context, symbol string, from, to time.Time) ([]entity.Insight, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	current := make(map[int64]entity.Insight)
	for _, in := range r.insights {
		if in.Symbol != symbol || in.PeriodStart.Before(from) || !in.PeriodStart.Before(to) {
			continue
		}
		// Later appends win, which matches ORDER BY id DESC in SQL.
		current[in.PeriodStart.UnixNano()] = in
	}
	out := make([]entity.Insight, 0, len(current))
	for _, in := range current {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.Before(out[j].PeriodStart) })
	return out, nil
}
