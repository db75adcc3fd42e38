package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang-market-insight/internal/entity"
	executorconfig "golang-market-insight/internal/executor/config"
	"golang-market-insight/internal/executor/dto"
	"golang-market-insight/internal/executor/repository"
	"golang-market-insight/internal/executor/worker"
	"golang-market-insight/pkg/common"
	"golang-market-insight/pkg/logger"
	"golang-market-insight/pkg/metrics"
)

// InsightGenerator turns an analytics result into an insight. It never fails:
// when the provider is unavailable the insight comes from a fixed template.
type InsightGenerator interface {
	Generate(ctx context.Context, req dto.InsightRequest) *entity.Insight
}

type insightGenerator struct {
	ai       repository.AIRepository
	cfg      executorconfig.AI
	logger   *logger.Logger
	recorder *metrics.Recorder
	now      func() time.Time
}

// NewInsightGenerator creates a generator. ai may be nil, in which case every
// insight uses the fallback template.
func NewInsightGenerator(ai repository.AIRepository, cfg executorconfig.AI, log *logger.Logger, recorder *metrics.Recorder) InsightGenerator {
	return &insightGenerator{
		ai:       ai,
		cfg:      cfg,
		logger:   log,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (g *insightGenerator) Generate(ctx context.Context, req dto.InsightRequest) *entity.Insight {
	result := req.Result
	prompt, hash := repository.BuildInsightPrompt(result)

	insight := &entity.Insight{
		Symbol:      result.Symbol,
		PeriodStart: result.PeriodStart,
		PeriodEnd:   result.PeriodEnd,
		PromptHash:  hash,
	}

	if g.ai != nil {
		text, err := g.callProvider(ctx, prompt)
		if err == nil && strings.TrimSpace(text) == "" {
			err = fmt.Errorf("%w: empty response", common.ErrProviderError)
		}
		if err == nil {
			insight.Source = entity.InsightSourceLLM
			insight.Provider = g.ai.Provider()
			insight.Model = g.ai.Model()
			if rec, ok := repository.ParseRecommendation(text); ok {
				insight.Text = rec.Explanation
				insight.Action = rec.Action
				insight.Confidence = rec.Confidence
			} else {
				insight.Text = strings.TrimSpace(text)
			}
			insight.GeneratedAt = g.now()
			g.recorder.RecordInsight(string(insight.Source))
			return insight
		}

		g.logger.WarnContext(ctx, "Insight provider unavailable, using fallback",
			logger.StringField("provider", g.ai.Provider()),
			logger.ErrorField(err))
	}

	rec := repository.BuildFallbackInsight(result)
	insight.Source = entity.InsightSourceFallback
	insight.Text = rec.Explanation
	insight.Action = rec.Action
	insight.Confidence = rec.Confidence
	insight.GeneratedAt = g.now()
	g.recorder.RecordInsight(string(insight.Source))
	return insight
}

// callProvider retries timeouts and rate limits with capped backoff. Any other
// provider error is returned at once.
func (g *insightGenerator) callProvider(ctx context.Context, prompt string) (string, error) {
	backoff := worker.Config{
		BackoffBase:   g.cfg.BackoffBase,
		BackoffFactor: 2,
		BackoffMax:    g.cfg.BackoffMax,
	}

	for attempt := 1; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		text, err := g.ai.GenerateInsight(callCtx, prompt)
		cancel()
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", err
		}

		retryable := errors.Is(err, common.ErrProviderTimeout) || errors.Is(err, common.ErrProviderRateLimited)
		if !retryable || attempt > g.cfg.MaxRetries {
			return "", err
		}

		delay := worker.Backoff(backoff, attempt)
		g.logger.DebugContext(ctx, "Retrying insight provider",
			logger.IntField("attempt", attempt),
			logger.Field("backoff", delay.String()),
			logger.ErrorField(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}
