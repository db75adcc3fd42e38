package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang-market-insight/internal/entity"
	"golang-market-insight/internal/executor/repository"
	"golang-market-insight/pkg/logger"
)

// ResumeDefinitions seeds the next-due-time of every enabled definition from
// stored history, so periods that elapsed while the service was down reach
// Tick and are handled by the missed period policy. The newest job run wins;
// without one, the period holding the newest stored bar is due again.
// Definitions without history are returned unchanged.
func ResumeDefinitions(ctx context.Context, defs []entity.JobDefinition, runs repository.JobRunRepository,
	bars repository.MarketDataRepository, log *logger.Logger) ([]entity.JobDefinition, error) {
	out := make([]entity.JobDefinition, len(defs))
	copy(out, defs)

	for i := range out {
		def := &out[i]
		if !def.Enabled || def.Interval <= 0 || !def.NextDueTime.IsZero() {
			continue
		}
		symbol := strings.ToUpper(strings.TrimSpace(def.Symbol))

		next, err := resumePoint(ctx, symbol, def.Interval, runs, bars)
		if err != nil {
			return nil, fmt.Errorf("resume %s: %w", symbol, err)
		}
		if next.IsZero() {
			continue
		}
		def.NextDueTime = next
		log.Info("Job resumed from stored history",
			logger.StringField("symbol", symbol),
			logger.Field("next_due_time", next))
	}
	return out, nil
}

func resumePoint(ctx context.Context, symbol string, interval time.Duration,
	runs repository.JobRunRepository, bars repository.MarketDataRepository) (time.Time, error) {
	lastEnd, err := runs.LatestPeriodEnd(ctx, symbol)
	if err != nil {
		return time.Time{}, err
	}
	if lastEnd != nil {
		return lastEnd.UTC().Add(interval), nil
	}

	latest, err := bars.LatestPeriod(ctx, symbol)
	if err != nil {
		return time.Time{}, err
	}
	if latest == nil {
		return time.Time{}, nil
	}
	return latest.UTC().Truncate(interval).Add(interval), nil
}
