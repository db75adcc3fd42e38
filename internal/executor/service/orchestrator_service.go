package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"golang-market-insight/internal/analytics"
	"golang-market-insight/internal/entity"
	executorconfig "golang-market-insight/internal/executor/config"
	"golang-market-insight/internal/executor/dto"
	"golang-market-insight/internal/executor/repository"
	"golang-market-insight/internal/executor/worker"
	schedulerdto "golang-market-insight/internal/scheduler/dto"
	"golang-market-insight/pkg/common"
	"golang-market-insight/pkg/logger"
	"golang-market-insight/pkg/metrics"
	"golang-market-insight/pkg/telegram"
)

// TaskSubmitter is the part of the worker pool the orchestrator needs.
type TaskSubmitter interface {
	Submit(ctx context.Context, task worker.Task) error
}

// OrchestratorService drives one (symbol, period) through fetch, store,
// analyze and insight generation.
type OrchestratorService interface {
	// Dispatch hands a scheduler candidate to the pool, or records it as skipped when it was missed.
	Dispatch(ctx context.Context, candidate schedulerdto.Candidate) error
	// Process runs a single attempt. It is what pool tasks execute.
	Process(ctx context.Context, candidate schedulerdto.Candidate, attempt int) error
	// Cancel flags an in-flight run. The flag is honoured at the next stage boundary.
	Cancel(symbol string, periodStart time.Time) bool
}

// Dependencies groups the collaborators of the orchestrator.
type Dependencies struct {
	Source      repository.MarketDataSource
	MarketData  repository.MarketDataRepository
	JobRuns     repository.JobRunRepository
	Analytics   repository.AnalyticsResultRepository
	Insights    repository.InsightRepository
	Publisher   repository.EventPublisher
	Engine      *analytics.Engine
	Generator   InsightGenerator
	Pool        TaskSubmitter
	Notifier    telegram.Notifier
	Recorder    *metrics.Recorder
	Logger      *logger.Logger
	Config      executorconfig.Pipeline
	NewToken    func() string
	CurrentTime func() time.Time
}

type orchestratorService struct {
	Dependencies

	mu       sync.Mutex
	inFlight map[entity.JobRunKey]*atomic.Bool
}

const (
	stageFetching          = "fetching"
	stageStoring           = "storing"
	stageAnalyzing         = "analyzing"
	stageGeneratingInsight = "generating_insight"
)

// NewOrchestratorService creates a new OrchestratorService.
func NewOrchestratorService(deps Dependencies) OrchestratorService {
	if deps.NewToken == nil {
		deps.NewToken = uuid.NewString
	}
	if deps.CurrentTime == nil {
		deps.CurrentTime = func() time.Time { return time.Now().UTC() }
	}
	if deps.Notifier == nil {
		deps.Notifier = telegram.NewNoop()
	}
	if deps.Publisher == nil {
		deps.Publisher = repository.NewNoopEventPublisher()
	}
	return &orchestratorService{
		Dependencies: deps,
		inFlight:     make(map[entity.JobRunKey]*atomic.Bool),
	}
}

func candidateKey(c schedulerdto.Candidate) entity.JobRunKey {
	return entity.JobRunKey{Symbol: c.Symbol, PeriodStart: c.PeriodStart.UTC(), PeriodEnd: c.PeriodEnd.UTC()}
}

func (s *orchestratorService) Dispatch(ctx context.Context, candidate schedulerdto.Candidate) error {
	if candidate.Missed {
		return s.recordMissed(ctx, candidate)
	}
	return s.Pool.Submit(ctx, &pipelineTask{orchestrator: s, candidate: candidate})
}

func (s *orchestratorService) recordMissed(ctx context.Context, candidate schedulerdto.Candidate) error {
	key := candidateKey(candidate)
	if err := s.JobRuns.Skip(ctx, key); err != nil {
		s.Logger.ErrorContext(ctx, "Failed to record missed period",
			logger.StringField("symbol", key.Symbol),
			logger.Field("period_start", key.PeriodStart),
			logger.ErrorField(err))
		return err
	}
	s.Recorder.RecordRun(string(entity.JobRunStatusSkipped), string(entity.JobRunOutcomeMissed))
	s.publish(ctx, key, dto.RunEvent{
		Status:  string(entity.JobRunStatusSkipped),
		Outcome: string(entity.JobRunOutcomeMissed),
	})
	return nil
}

func (s *orchestratorService) Cancel(symbol string, periodStart time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for key, flag := range s.inFlight {
		if key.Symbol == symbol && key.PeriodStart.Equal(periodStart) {
			flag.Store(true)
			found = true
		}
	}
	return found
}

func (s *orchestratorService) track(key entity.JobRunKey, flag *atomic.Bool) {
	s.mu.Lock()
	s.inFlight[key] = flag
	s.mu.Unlock()
}

func (s *orchestratorService) forget(key entity.JobRunKey) {
	s.mu.Lock()
	delete(s.inFlight, key)
	s.mu.Unlock()
}

func (s *orchestratorService) Process(ctx context.Context, candidate schedulerdto.Candidate, attempt int) error {
	t := &pipelineTask{orchestrator: s, candidate: candidate}
	return t.Execute(ctx, attempt)
}

// pipelineTask carries per-run state across pool attempts.
type pipelineTask struct {
	orchestrator *orchestratorService
	candidate    schedulerdto.Candidate

	token     string
	deadline  time.Time
	cancelled atomic.Bool
}

func (t *pipelineTask) Name() string {
	return fmt.Sprintf("pipeline:%s:%s", t.candidate.Symbol, t.candidate.PeriodStart.UTC().Format(time.RFC3339))
}

func (t *pipelineTask) Execute(ctx context.Context, attempt int) error {
	return t.orchestrator.run(ctx, t, attempt)
}

// OnFailure is called by the pool once it gives up. The run is usually
// pending again (released after a transient error) or already failed. It may
// also not exist yet when the pool was cancelled before the first attempt
// reached the store, so it is created first.
func (t *pipelineTask) OnFailure(ctx context.Context, err error) {
	s := t.orchestrator
	key := candidateKey(t.candidate)
	if createErr := s.JobRuns.CreateIfAbsent(ctx, pendingRun(key)); createErr != nil {
		s.Logger.ErrorContext(ctx, "Failed to create job run for failure",
			logger.StringField("symbol", key.Symbol),
			logger.Field("period_start", key.PeriodStart),
			logger.ErrorField(createErr))
	}
	s.fail(ctx, key, t.token, failureReason(err), err)
	s.forget(key)
}

func pendingRun(key entity.JobRunKey) *entity.JobRun {
	return &entity.JobRun{
		JobID:       key.Symbol,
		PeriodStart: key.PeriodStart,
		PeriodEnd:   key.PeriodEnd,
		Status:      entity.JobRunStatusPending,
	}
}

func failureReason(err error) entity.FailureReason {
	switch {
	case errors.Is(err, common.ErrCancelled):
		return entity.FailureReasonCancelled
	case errors.Is(err, common.ErrTimeout):
		return entity.FailureReasonTimeout
	default:
		return entity.FailureReasonError
	}
}

func (s *orchestratorService) run(ctx context.Context, t *pipelineTask, attempt int) error {
	key := candidateKey(t.candidate)
	ctx = logger.ContextWithFields(ctx,
		logger.StringField("symbol", key.Symbol),
		logger.Field("period_start", key.PeriodStart),
		logger.IntField("attempt", attempt))

	if err := s.JobRuns.CreateIfAbsent(ctx, pendingRun(key)); err != nil {
		return fmt.Errorf("%w: create job run: %v", common.ErrTransient, err)
	}

	token := s.NewToken()
	claimed, err := s.JobRuns.Claim(ctx, key, token)
	if err != nil {
		return fmt.Errorf("%w: claim job run: %v", common.ErrTransient, err)
	}
	if !claimed {
		s.Recorder.RecordClaimConflict()
		s.Logger.InfoContext(ctx, "Job run claimed elsewhere or already finished, skipping")
		return nil
	}
	t.token = token
	s.track(key, &t.cancelled)

	if t.deadline.IsZero() {
		t.deadline = time.Now().Add(s.Config.Timeout)
	}
	runCtx, cancel := context.WithDeadline(ctx, t.deadline)
	defer cancel()

	outcome, insight, score, err := s.pipeline(runCtx, t, key)
	if err != nil {
		return s.handleError(ctx, runCtx, t, key, err)
	}

	persistCtx := context.WithoutCancel(runCtx)
	source := entity.InsightSource("")
	if insight != nil {
		source = insight.Source
	}
	if err := s.JobRuns.Complete(persistCtx, key, t.token, outcome, source); err != nil {
		return s.handleError(ctx, runCtx, t, key, err)
	}
	s.forget(key)

	s.Recorder.RecordRun(string(entity.JobRunStatusSucceeded), string(outcome))
	s.Logger.InfoContext(ctx, "Job run succeeded", logger.StringField("outcome", string(outcome)))
	s.publish(persistCtx, key, dto.RunEvent{
		Status:        string(entity.JobRunStatusSucceeded),
		Outcome:       string(outcome),
		InsightSource: string(source),
		Score:         score,
	})
	if insight != nil && s.Config.NotifyInsights {
		s.notify(persistCtx, telegram.FormatInsightMessage(insight, *score))
	}
	return nil
}

// pipeline runs the stages in order. A nil insight with no error means there was no data.
func (s *orchestratorService) pipeline(ctx context.Context, t *pipelineTask, key entity.JobRunKey) (entity.JobRunOutcome, *entity.Insight, *int, error) {
	if err := s.enter(ctx, t, key, entity.JobRunStatusFetching); err != nil {
		return "", nil, nil, err
	}
	started := time.Now()
	points, err := s.Source.Fetch(ctx, dto.FetchRequest{Symbol: key.Symbol, Start: key.PeriodStart, End: key.PeriodEnd})
	s.Recorder.ObserveStage(stageFetching, time.Since(started).Seconds())
	if err != nil {
		return "", nil, nil, err
	}
	if len(points) == 0 {
		s.Logger.InfoContext(ctx, "No market data for period")
		return entity.JobRunOutcomeNoDataAvailable, nil, nil, nil
	}

	if err := s.enter(ctx, t, key, entity.JobRunStatusStoring); err != nil {
		return "", nil, nil, err
	}
	started = time.Now()
	store := dto.StoreRequest{Points: points}
	if err := s.MarketData.Upsert(ctx, store.Points); err != nil {
		return "", nil, nil, storageError("upsert market data", err)
	}
	s.Recorder.ObserveStage(stageStoring, time.Since(started).Seconds())

	if err := s.enter(ctx, t, key, entity.JobRunStatusAnalyzing); err != nil {
		return "", nil, nil, err
	}
	started = time.Now()
	analyze := dto.AnalyzeRequest{
		Symbol:        key.Symbol,
		PeriodStart:   key.PeriodStart,
		PeriodEnd:     key.PeriodEnd,
		LookbackStart: key.PeriodStart.Add(-s.Engine.Lookback(s.Config.BarInterval)),
	}
	window, err := s.MarketData.QueryRange(ctx, analyze.Symbol, analyze.LookbackStart, analyze.PeriodEnd)
	if err != nil {
		return "", nil, nil, storageError("query market data", err)
	}
	result := s.Engine.Compute(analyze.Symbol, analyze.PeriodStart, analyze.PeriodEnd, window)
	if err := s.Analytics.Replace(ctx, result); err != nil {
		return "", nil, nil, storageError("replace analytics result", err)
	}
	s.Recorder.ObserveStage(stageAnalyzing, time.Since(started).Seconds())

	if err := s.enter(ctx, t, key, entity.JobRunStatusGeneratingInsight); err != nil {
		return "", nil, nil, err
	}
	started = time.Now()
	insight := s.Generator.Generate(ctx, dto.InsightRequest{Result: result})
	if err := s.Insights.Create(ctx, insight); err != nil {
		return "", nil, nil, storageError("create insight", err)
	}
	s.Recorder.ObserveStage(stageGeneratingInsight, time.Since(started).Seconds())

	score := result.Score
	return entity.JobRunOutcomeCompleted, insight, &score, nil
}

// enter checks cancellation and the deadline, then moves the run to status.
func (s *orchestratorService) enter(ctx context.Context, t *pipelineTask, key entity.JobRunKey, status entity.JobRunStatus) error {
	if t.cancelled.Load() {
		return fmt.Errorf("%w: cancelled before %s", common.ErrCancelled, status)
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: deadline reached before %s", common.ErrTimeout, status)
		}
		return fmt.Errorf("%w: %v", common.ErrCancelled, err)
	}
	return s.JobRuns.Transition(ctx, key, t.token, status)
}

// storageError marks store failures as retryable unless the context ended.
func storageError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", common.ErrTransient, op, err)
}

func (s *orchestratorService) handleError(ctx, runCtx context.Context, t *pipelineTask, key entity.JobRunKey, err error) error {
	persistCtx := context.WithoutCancel(ctx)

	switch {
	case errors.Is(err, common.ErrClaimConflict):
		// Another actor, usually the stale-run reconciler, took the run over.
		s.Recorder.RecordClaimConflict()
		s.forget(key)
		s.Logger.WarnContext(ctx, "Lost ownership of job run", logger.ErrorField(err))
		return nil
	case errors.Is(err, common.ErrCancelled), t.cancelled.Load():
		s.fail(persistCtx, key, t.token, entity.FailureReasonCancelled, err)
		s.forget(key)
		if !errors.Is(err, common.ErrCancelled) {
			err = fmt.Errorf("%w: %v", common.ErrCancelled, err)
		}
		return err
	case errors.Is(err, common.ErrTimeout), errors.Is(runCtx.Err(), context.DeadlineExceeded):
		s.fail(persistCtx, key, t.token, entity.FailureReasonTimeout, err)
		s.forget(key)
		if !errors.Is(err, common.ErrTimeout) {
			err = fmt.Errorf("%w: %v", common.ErrTimeout, err)
		}
		return err
	case errors.Is(runCtx.Err(), context.Canceled):
		err = fmt.Errorf("%w: %v", common.ErrCancelled, err)
		s.fail(persistCtx, key, t.token, entity.FailureReasonCancelled, err)
		s.forget(key)
		return err
	case common.IsTransient(err):
		s.Logger.WarnContext(ctx, "Transient stage failure, releasing job run", logger.ErrorField(err))
		if relErr := s.JobRuns.Release(persistCtx, key, t.token, err); relErr != nil {
			s.Logger.ErrorContext(ctx, "Failed to release job run", logger.ErrorField(relErr))
		}
		t.token = ""
		return err
	default:
		s.fail(persistCtx, key, t.token, entity.FailureReasonError, err)
		s.forget(key)
		return err
	}
}

// fail marks the run failed. Publishing and notification only happen when the
// row actually changed, so repeated calls for the same run are harmless.
func (s *orchestratorService) fail(ctx context.Context, key entity.JobRunKey, token string, reason entity.FailureReason, cause error) {
	changed, err := s.JobRuns.Fail(ctx, key, token, reason, cause)
	if err != nil {
		s.Logger.ErrorContext(ctx, "Failed to mark job run failed",
			logger.StringField("symbol", key.Symbol),
			logger.ErrorField(err))
		return
	}
	if !changed {
		return
	}

	s.Recorder.RecordRun(string(entity.JobRunStatusFailed), "")
	s.Logger.ErrorContext(ctx, "Job run failed",
		logger.StringField("symbol", key.Symbol),
		logger.Field("period_start", key.PeriodStart),
		logger.StringField("reason", string(reason)),
		logger.ErrorField(cause))

	s.publish(ctx, key, dto.RunEvent{
		Status:        string(entity.JobRunStatusFailed),
		FailureReason: string(reason),
		Error:         errorText(cause),
	})

	if s.Config.NotifyFailures {
		run, getErr := s.JobRuns.Get(ctx, key)
		if getErr == nil && run != nil {
			s.notify(ctx, telegram.FormatRunFailureMessage(run))
		}
	}
}

func (s *orchestratorService) publish(ctx context.Context, key entity.JobRunKey, event dto.RunEvent) {
	event.EventID = s.NewToken()
	event.Symbol = key.Symbol
	event.PeriodStart = key.PeriodStart
	event.PeriodEnd = key.PeriodEnd
	event.OccurredAt = s.CurrentTime()
	if err := s.Publisher.PublishRunEvent(ctx, event); err != nil {
		s.Logger.WarnContext(ctx, "Failed to publish run event", logger.ErrorField(err))
	}
}

func (s *orchestratorService) notify(ctx context.Context, text string) {
	if err := s.Notifier.SendMessage(text); err != nil {
		s.Logger.WarnContext(ctx, "Failed to send telegram notification", logger.ErrorField(err))
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
