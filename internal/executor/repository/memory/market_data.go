// Package memory holds in-process implementations of the executor repositories.
// They back the "memory" store driver and the orchestrator tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang-market-insight/internal/entity"
	"golang-market-insight/internal/executor/repository"
)

type pointKey struct {
	symbol string
	ts     int64
}

type marketDataRepository struct {
	mu     sync.RWMutex
	points map[pointKey]entity.MarketDataPoint
}

func NewMarketDataRepository() repository.MarketDataRepository {
	return &marketDataRepository{points: make(map[pointKey]entity.MarketDataPoint)}
}

func (r *marketDataRepository) Upsert(ctx context.Context, points []entity.MarketDataPoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range points {
		p.Timestamp = p.Timestamp.UTC()
		p.UpdatedAt = now
		r.points[pointKey{symbol: p.Symbol, ts: p.Timestamp.UnixNano()}] = p
	}
	return nil
}

func (r *marketDataRepository) QueryRange(ctx context.Context, symbol string, start, end time.Time) ([]entity.MarketDataPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []entity.MarketDataPoint
	for k, p := range r.points {
		if k.symbol != symbol || p.Timestamp.Before(start) || !p.Timestamp.Before(end) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *marketDataRepository) LatestPeriod(ctx context.Context, symbol string) (*time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *time.Time
	for k, p := range r.points {
		if k.symbol != symbol {
			continue
		}
		if latest == nil || p.Timestamp.After(*latest) {
			ts := p.Timestamp
			latest = &ts
		}
	}
	return latest, nil
}
