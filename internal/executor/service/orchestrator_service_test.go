package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-market-insight/internal/analytics"
	"golang-market-insight/internal/entity"
	executorconfig "golang-market-insight/internal/executor/config"
	"golang-market-insight/internal/executor/dto"
	"golang-market-insight/internal/executor/repository"
	"golang-market-insight/internal/executor/repository/memory"
	"golang-market-insight/internal/executor/worker"
	schedulerdto "golang-market-insight/internal/scheduler/dto"
	"golang-market-insight/pkg/common"
	"golang-market-insight/pkg/logger"
)

var periodStart = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

type harness struct {
	orchestrator OrchestratorService
	source       *fakeSource
	ai           *fakeAI
	publisher    *fakePublisher
	notifier     *fakeNotifier
	marketData   repository.MarketDataRepository
	jobRuns      repository.JobRunRepository
	results      repository.AnalyticsResultRepository
	insights     repository.InsightRepository
	pool         *worker.Pool
}

func newHarness(t *testing.T, cfg executorconfig.Pipeline, opts ...func(*harness)) *harness {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BarInterval == 0 {
		cfg.BarInterval = 24 * time.Hour
	}

	h := &harness{
		source: &fakeSource{fetch: func(ctx context.Context, call int, req dto.FetchRequest) ([]entity.MarketDataPoint, error) {
			return []entity.MarketDataPoint{{Symbol: req.Symbol, Timestamp: req.Start, Open: 1, High: 2, Low: 1, Close: 2, Volume: 10}}, nil
		}},
		ai: &fakeAI{generate: func(ctx context.Context, call int) (string, error) {
			return `{"action":"hold","confidence":0.5,"explanation":"range bound"}`, nil
		}},
		publisher:  &fakePublisher{},
		notifier:   &fakeNotifier{},
		marketData: memory.NewMarketDataRepository(),
		jobRuns:    memory.NewJobRunRepository(),
		results:    memory.NewAnalyticsResultRepository(),
		insights:   memory.NewInsightRepository(),
	}
	for _, opt := range opts {
		opt(h)
	}

	log := logger.NewNop()
	h.pool = worker.NewPool(worker.Config{
		Workers:       2,
		QueueSize:     8,
		MaxRetries:    3,
		BackoffBase:   time.Millisecond,
		BackoffFactor: 2,
		BackoffMax:    5 * time.Millisecond,
	}, log, nil)

	aiCfg := executorconfig.AI{Timeout: time.Second, MaxRetries: 0}
	tokens := 0
	var tokenMu sync.Mutex
	h.orchestrator = NewOrchestratorService(Dependencies{
		Source:     h.source,
		MarketData: h.marketData,
		JobRuns:    h.jobRuns,
		Analytics:  h.results,
		Insights:   h.insights,
		Publisher:  h.publisher,
		Engine:     analytics.NewEngine(analytics.DefaultConfig()),
		Generator:  NewInsightGenerator(h.ai, aiCfg, log, nil),
		Pool:       h.pool,
		Notifier:   h.notifier,
		Logger:     log,
		Config:     cfg,
		NewToken: func() string {
			tokenMu.Lock()
			defer tokenMu.Unlock()
			tokens++
			return fmt.Sprintf("token-%d", tokens)
		},
	})
	return h
}

func candidate() schedulerdto.Candidate {
	return schedulerdto.Candidate{Symbol: "ABC", PeriodStart: periodStart, PeriodEnd: periodStart.Add(24 * time.Hour)}
}

func (h *harness) run(t *testing.T) *entity.JobRun {
	t.Helper()
	c := candidate()
	run, err := h.jobRuns.Get(context.Background(), entity.JobRunKey{Symbol: c.Symbol, PeriodStart: c.PeriodStart, PeriodEnd: c.PeriodEnd})
	require.NoError(t, err)
	require.NotNil(t, run)
	return run
}

func TestProcess_Succeeds(t *testing.T) {
	h := newHarness(t, executorconfig.Pipeline{NotifyInsights: true})
	ctx := context.Background()
	require.NoError(t, h.marketData.Upsert(ctx, dailyBars("ABC", periodStart, 60)))

	require.NoError(t, h.orchestrator.Process(ctx, candidate(), 1))

	run := h.run(t)
	assert.Equal(t, entity.JobRunStatusSucceeded, run.Status)
	assert.Equal(t, entity.JobRunOutcomeCompleted, run.Outcome)
	assert.Equal(t, string(entity.InsightSourceLLM), run.InsightSource)
	assert.Equal(t, 1, run.AttemptCount)
	assert.Empty(t, run.ClaimToken)

	results, err := h.results.FindByRange(ctx, "ABC", periodStart, periodStart.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 61, results[0].DataPoints)
	assert.Contains(t, results[0].MetricSet().Absent(), "sma_100")
	_, ok := results[0].MetricSet().Get("sma_50")
	assert.True(t, ok)

	insights, err := h.insights.FindCurrentByRange(ctx, "ABC", periodStart, periodStart.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, "range bound", insights[0].Text)

	assert.Equal(t, []string{"succeeded"}, h.publisher.statuses())
	assert.Len(t, h.notifier.messages, 1)
}

func TestProcess_NoDataAvailable(t *testing.T) {
	h := newHarness(t, executorconfig.Pipeline{})
	h.source.fetch = func(ctx context.Context, call int, req dto.FetchRequest) ([]entity.MarketDataPoint, error) {
		return nil, nil
	}
	ctx := context.Background()

	require.NoError(t, h.orchestrator.Process(ctx, candidate(), 1))

	run := h.run(t)
	assert.Equal(t, entity.JobRunStatusSucceeded, run.Status)
	assert.Equal(t, entity.JobRunOutcomeNoDataAvailable, run.Outcome)

	results, err := h.results.FindByRange(ctx, "ABC", periodStart, periodStart.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, results)
	insights, err := h.insights.FindCurrentByRange(ctx, "ABC", periodStart, periodStart.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, insights)
	assert.Zero(t, h.ai.calls.Load())
}

func TestProcess_FallbackInsightWhenProviderFails(t *testing.T) {
	h := newHarness(t, executorconfig.Pipeline{})
	h.ai.generate = func(ctx context.Context, call int) (string, error) {
		return "", common.ErrProviderError
	}

	require.NoError(t, h.orchestrator.Process(context.Background(), candidate(), 1))

	run := h.run(t)
	assert.Equal(t, entity.JobRunStatusSucceeded, run.Status)
	assert.Equal(t, string(entity.InsightSourceFallback), run.InsightSource)
}

func TestProcess_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	h := newHarness(t, executorconfig.Pipeline{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.orchestrator.Process(ctx, candidate(), 1))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), h.source.calls.Load())
	run := h.run(t)
	assert.Equal(t, entity.JobRunStatusSucceeded, run.Status)
	assert.Equal(t, 1, run.AttemptCount)

	insights, err := h.insights.FindCurrentByRange(ctx, "ABC", periodStart, periodStart.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, insights, 1)
}

func TestProcess_RerunOfFinishedPeriodIsNoop(t *testing.T) {
	h := newHarness(t, executorconfig.Pipeline{})
	ctx := context.Background()

	require.NoError(t, h.orchestrator.Process(ctx, candidate(), 1))
	require.NoError(t, h.orchestrator.Process(ctx, candidate(), 1))

	assert.Equal(t, int32(1), h.source.calls.Load())
	assert.Equal(t, int32(1), h.ai.calls.Load())
	assert.Equal(t, []string{"succeeded"}, h.publisher.statuses())
}

func TestProcess_DeadlineFailsWithTimeout(t *testing.T) {
	h := newHarness(t, executorconfig.Pipeline{Timeout: 30 * time.Millisecond, NotifyFailures: true})
	h.source.fetch = func(ctx context.Context, call int, req dto.FetchRequest) ([]entity.MarketDataPoint, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	err := h.orchestrator.Process(context.Background(), candidate(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTimeout)
	assert.False(t, common.IsTransient(err))

	run := h.run(t)
	assert.Equal(t, entity.JobRunStatusFailed, run.Status)
	assert.Equal(t, string(entity.FailureReasonTimeout), run.FailureReason)
	assert.Equal(t, []string{"failed"}, h.publisher.statuses())
	assert.Len(t, h.notifier.messages, 1)
}

func TestProcess_CancelIsHonouredAtNextStage(t *testing.T) {
	h := newHarness(t, executorconfig.Pipeline{})
	fetching := make(chan struct{})
	resume := make(chan struct{})
	base := h.source.fetch
	h.source.fetch = func(ctx context.Context, call int, req dto.FetchRequest) ([]entity.MarketDataPoint, error) {
		close(fetching)
		<-resume
		return base(ctx, call, req)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- h.orchestrator.Process(context.Background(), candidate(), 1) }()

	<-fetching
	assert.True(t, h.orchestrator.Cancel("ABC", periodStart))
	assert.False(t, h.orchestrator.Cancel("XYZ", periodStart))
	close(resume)

	err := <-errCh
	assert.ErrorIs(t, err, common.ErrCancelled)

	run := h.run(t)
	assert.Equal(t, entity.JobRunStatusFailed, run.Status)
	assert.Equal(t, string(entity.FailureReasonCancelled), run.FailureReason)

	points, err := h.marketData.QueryRange(context.Background(), "ABC", periodStart, periodStart.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, points, "cancelled before storing")
}

func TestDispatch_TransientErrorsAreRetried(t *testing.T) {
	h := newHarness(t, executorconfig.Pipeline{})
	h.source.fetch = func(ctx context.Context, call int, req dto.FetchRequest) ([]entity.MarketDataPoint, error) {
		if call < 3 {
			return nil, fmt.Errorf("%w: upstream 503", common.ErrSourceUnavailable)
		}
		return []entity.MarketDataPoint{{Symbol: req.Symbol, Timestamp: req.Start, Close: 1}}, nil
	}

	h.pool.Start(context.Background())
	require.NoError(t, h.orchestrator.Dispatch(context.Background(), candidate()))
	h.pool.Stop()

	run := h.run(t)
	assert.Equal(t, entity.JobRunStatusSucceeded, run.Status)
	assert.Equal(t, 3, run.AttemptCount)
	assert.Equal(t, "source unavailable: upstream 503", run.LastError.String)
}

func TestDispatch_GivesUpAfterMaxRetries(t *testing.T) {
	h := newHarness(t, executorconfig.Pipeline{})
	h.source.fetch = func(ctx context.Context, call int, req dto.FetchRequest) ([]entity.MarketDataPoint, error) {
		return nil, common.ErrSourceUnavailable
	}

	h.pool.Start(context.Background())
	require.NoError(t, h.orchestrator.Dispatch(context.Background(), candidate()))
	h.pool.Stop()

	run := h.run(t)
	assert.Equal(t, entity.JobRunStatusFailed, run.Status)
	assert.Equal(t, string(entity.FailureReasonError), run.FailureReason)
	assert.Equal(t, 4, run.AttemptCount)
	assert.Equal(t, int32(4), h.source.calls.Load())
	assert.Equal(t, []string{"failed"}, h.publisher.statuses())
}

func TestDispatch_RetryAfterAnalyticsKeepsOneCurrentResult(t *testing.T) {
	insights := &flakyInsights{InsightRepository: memory.NewInsightRepository()}
	insights.failures.Store(1)
	h := newHarness(t, executorconfig.Pipeline{}, func(h *harness) { h.insights = insights })

	h.pool.Start(context.Background())
	require.NoError(t, h.orchestrator.Dispatch(context.Background(), candidate()))
	h.pool.Stop()

	run := h.run(t)
	assert.Equal(t, entity.JobRunStatusSucceeded, run.Status)
	assert.Equal(t, 2, run.AttemptCount)
	assert.Equal(t, int32(2), insights.calls.Load())

	ctx := context.Background()
	results, err := h.results.FindByRange(ctx, "ABC", periodStart, periodStart.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, results, 1)
	current, err := h.insights.FindCurrentByRange(ctx, "ABC", periodStart, periodStart.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, current, 1)
	assert.Equal(t, []string{"succeeded"}, h.publisher.statuses())
}

func TestDispatch_CancelledPoolStillRecordsFailure(t *testing.T) {
	h := newHarness(t, executorconfig.Pipeline{})
	poolCtx, cancel := context.WithCancel(context.Background())
	cancel()

	h.pool.Start(poolCtx)
	require.NoError(t, h.orchestrator.Dispatch(context.Background(), candidate()))
	h.pool.Stop()

	run := h.run(t)
	assert.Equal(t, entity.JobRunStatusFailed, run.Status)
	assert.Equal(t, string(entity.FailureReasonCancelled), run.FailureReason)
	assert.Zero(t, h.source.calls.Load())
	assert.Equal(t, []string{"failed"}, h.publisher.statuses())
}

func TestDispatch_InvalidSymbolFailsWithoutRetry(t *testing.T) {
	h := newHarness(t, executorconfig.Pipeline{})
	h.source.fetch = func(ctx context.Context, call int, req dto.FetchRequest) ([]entity.MarketDataPoint, error) {
		return nil, common.ErrInvalidSymbol
	}

	h.pool.Start(context.Background())
	require.NoError(t, h.orchestrator.Dispatch(context.Background(), candidate()))
	h.pool.Stop()

	run := h.run(t)
	assert.Equal(t, entity.JobRunStatusFailed, run.Status)
	assert.Equal(t, int32(1), h.source.calls.Load())
	assert.Equal(t, "invalid symbol", run.LastError.String)
}

func TestDispatch_MissedCandidateIsSkipped(t *testing.T) {
	h := newHarness(t, executorconfig.Pipeline{})
	c := candidate()
	c.Missed = true

	require.NoError(t, h.orchestrator.Dispatch(context.Background(), c))

	run := h.run(t)
	assert.Equal(t, entity.JobRunStatusSkipped, run.Status)
	assert.Equal(t, entity.JobRunOutcomeMissed, run.Outcome)
	assert.Zero(t, h.source.calls.Load())
	assert.Equal(t, []string{"skipped"}, h.publisher.statuses())
}
