package service

import (
	"context"
	"errors"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"golang-market-insight/internal/entity"
	"golang-market-insight/internal/scheduler/config"
	"golang-market-insight/internal/scheduler/dto"
	"golang-market-insight/pkg/common"
	"golang-market-insight/pkg/logger"
	"golang-market-insight/pkg/metrics"
)

// Dispatcher receives every candidate produced by a tick.
type Dispatcher func(ctx context.Context, candidate dto.Candidate) error

// SchedulerService owns the job definition registry and decides which periods are due.
type SchedulerService interface {
	Register(def entity.JobDefinition) error
	SetEnabled(symbol string, enabled bool) bool
	Sync(defs []entity.JobDefinition) error
	Jobs() []entity.JobDefinition
	Tick(now time.Time) iter.Seq[dto.Candidate]
	Start(ctx context.Context, dispatch Dispatcher)
}

// NewSchedulerService creates a new scheduler service.
func NewSchedulerService(cfg config.Scheduler, log *logger.Logger, recorder *metrics.Recorder) SchedulerService {
	return &schedulerService{
		cfg:      cfg,
		logger:   log,
		recorder: recorder,
		validate: validator.New(),
		jobs:     make(map[string]*entity.JobDefinition),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type schedulerService struct {
	cfg      config.Scheduler
	logger   *logger.Logger
	recorder *metrics.Recorder
	validate *validator.Validate
	now      func() time.Time

	mu   sync.Mutex
	jobs map[string]*entity.JobDefinition
}

// Register adds a job or updates the one with the same symbol. An update keeps
// the current next-due-time unless the interval changed or one is given explicitly.
func (s *schedulerService) Register(def entity.JobDefinition) error {
	def.Symbol = strings.ToUpper(strings.TrimSpace(def.Symbol))
	if err := s.validate.Struct(def); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return common.NewValidationError(strings.ToLower(fe.Field()), "failed "+fe.Tag()+" check")
		}
		return common.NewValidationError("job", err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[def.Symbol]; ok {
		intervalChanged := existing.Interval != def.Interval
		existing.Enabled = def.Enabled
		existing.Interval = def.Interval
		switch {
		case !def.NextDueTime.IsZero():
			existing.NextDueTime = def.NextDueTime
		case intervalChanged:
			existing.NextDueTime = s.alignedDue(def.Interval)
		}
		s.logger.Info("Job definition updated",
			logger.StringField("symbol", def.Symbol),
			logger.Field("interval", def.Interval.String()),
			logger.Field("next_due_time", existing.NextDueTime))
		return nil
	}

	if def.NextDueTime.IsZero() {
		def.NextDueTime = s.alignedDue(def.Interval)
	}
	s.jobs[def.Symbol] = &def
	s.logger.Info("Job definition registered",
		logger.StringField("symbol", def.Symbol),
		logger.Field("interval", def.Interval.String()),
		logger.Field("next_due_time", def.NextDueTime))
	return nil
}

// alignedDue is the latest interval boundary not after now, so the most
// recently closed period is due immediately.
func (s *schedulerService) alignedDue(interval time.Duration) time.Time {
	return s.now().Truncate(interval)
}

func (s *schedulerService) SetEnabled(symbol string, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[strings.ToUpper(symbol)]
	if !ok {
		return false
	}
	job.Enabled = enabled
	return true
}

// Sync registers every definition and disables jobs no longer configured.
func (s *schedulerService) Sync(defs []entity.JobDefinition) error {
	var errs []error
	keep := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		if err := s.Register(def); err != nil {
			errs = append(errs, err)
			continue
		}
		keep[strings.ToUpper(strings.TrimSpace(def.Symbol))] = struct{}{}
	}

	s.mu.Lock()
	for symbol, job := range s.jobs {
		if _, ok := keep[symbol]; !ok && job.Enabled {
			job.Enabled = false
			s.logger.Info("Job definition disabled", logger.StringField("symbol", symbol))
		}
	}
	s.mu.Unlock()

	return errors.Join(errs...)
}

// Jobs returns a snapshot of the registry ordered by symbol.
func (s *schedulerService) Jobs() []entity.JobDefinition {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]entity.JobDefinition, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Tick lazily yields the candidates due at now, ordered by symbol. Each
// candidate advances its job's next-due-time as it is yielded, so a consumer
// that stops early leaves the remaining periods due for the next tick.
func (s *schedulerService) Tick(now time.Time) iter.Seq[dto.Candidate] {
	return func(yield func(dto.Candidate) bool) {
		for _, symbol := range s.dueSymbols(now) {
			for {
				candidate, ok := s.next(symbol, now)
				if !ok {
					break
				}
				if candidate.Missed {
					s.logger.Warn("MissedPeriodWarning",
						logger.StringField("symbol", candidate.Symbol),
						logger.Field("period_start", candidate.PeriodStart),
						logger.Field("period_end", candidate.PeriodEnd))
					s.recorder.RecordMissedPeriod(candidate.Symbol)
				}
				if !yield(candidate) {
					return
				}
			}
		}
	}
}

func (s *schedulerService) dueSymbols(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var symbols []string
	for symbol, job := range s.jobs {
		if job.Enabled && !now.Before(job.NextDueTime) {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// next pops the oldest outstanding period of a job and advances its next-due-time.
func (s *schedulerService) next(symbol string, now time.Time) (dto.Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[symbol]
	if !ok || !job.Enabled || now.Before(job.NextDueTime) {
		return dto.Candidate{}, false
	}

	// Periods whose end is <= now, counting the current one.
	elapsed := int(now.Sub(job.NextDueTime)/job.Interval) + 1
	replay := 1
	if s.cfg.CatchUp() {
		replay = min(elapsed, max(s.cfg.MaxCatchUp, 1))
	}

	due := job.NextDueTime
	candidate := dto.Candidate{
		Symbol:      job.Symbol,
		PeriodStart: due.Add(-job.Interval),
		PeriodEnd:   due,
		Missed:      elapsed > replay,
	}
	job.NextDueTime = due.Add(job.Interval)
	return candidate, true
}

// Start ticks on the polling interval until ctx is done, handing every
// candidate to dispatch. The first tick runs immediately.
func (s *schedulerService) Start(ctx context.Context, dispatch Dispatcher) {
	ticker := time.NewTicker(s.cfg.PollingInterval)
	defer ticker.Stop()

	s.logger.Info("Scheduler service started", logger.Field("polling_interval", s.cfg.PollingInterval.String()))
	for {
		s.processDue(ctx, dispatch)

		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler service stopping")
			return
		case <-ticker.C:
		}
	}
}

func (s *schedulerService) processDue(ctx context.Context, dispatch Dispatcher) {
	for candidate := range s.Tick(s.now()) {
		if err := dispatch(ctx, candidate); err != nil {
			s.logger.Error("Failed to dispatch candidate",
				logger.ErrorField(err),
				logger.StringField("symbol", candidate.Symbol),
				logger.Field("period_start", candidate.PeriodStart))
			if ctx.Err() != nil {
				return
			}
		}
	}
}
