package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	executorconfig "golang-market-insight/internal/executor/config"
	"golang-market-insight/internal/executor/repository"
	"golang-market-insight/pkg/logger"
)

// ReconcilerService fails runs left active by a process that died mid-pipeline,
// so their periods do not stay claimed forever.
type ReconcilerService interface {
	Start(ctx context.Context) error
	Stop()
	Reconcile(ctx context.Context) (int64, error)
}

type reconcilerService struct {
	jobRuns repository.JobRunRepository
	cfg     executorconfig.Pipeline
	logger  *logger.Logger
	cron    *cron.Cron
	now     func() time.Time
}

func NewReconcilerService(jobRuns repository.JobRunRepository, cfg executorconfig.Pipeline, log *logger.Logger) ReconcilerService {
	return &reconcilerService{
		jobRuns: jobRuns,
		cfg:     cfg,
		logger:  log,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *reconcilerService) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.cfg.ReconcileSchedule, func() {
		if _, err := s.Reconcile(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Failed to reconcile stale job runs", logger.ErrorField(err))
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("Stale run reconciler started", logger.StringField("schedule", s.cfg.ReconcileSchedule))
	return nil
}

func (s *reconcilerService) Stop() {
	<-s.cron.Stop().Done()
}

// Reconcile fails every active run whose last update is older than the stale threshold.
func (s *reconcilerService) Reconcile(ctx context.Context) (int64, error) {
	threshold := s.cfg.StaleAfter
	if threshold < s.cfg.Timeout {
		threshold = s.cfg.Timeout
	}
	n, err := s.jobRuns.FailStale(ctx, s.now().Add(-threshold))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.WarnContext(ctx, "Failed stale job runs", logger.Field("count", n))
	}
	return n, nil
}
