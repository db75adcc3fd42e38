package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang-market-insight/internal/entity"
	"golang-market-insight/internal/executor/repository"
	"golang-market-insight/pkg/common"
)

type runKey struct {
	symbol string
	start  int64
	end    int64
}

func keyOf(k entity.JobRunKey) runKey {
	return runKey{symbol: k.Symbol, start: k.PeriodStart.UnixNano(), end: k.PeriodEnd.UnixNano()}
}

type jobRunRepository struct {
	mu     sync.Mutex
	nextID uint
	runs   map[runKey]*entity.JobRun
	now    func() time.Time
}

func NewJobRunRepository() repository.JobRunRepository {
	return &jobRunRepository{
		runs: make(map[runKey]*entity.JobRun),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *jobRunRepository) insertIfAbsent(run *entity.JobRun) {
	k := keyOf(run.Key())
	if _, ok := r.runs[k]; ok {
		return
	}
	r.nextID++
	now := r.now()
	cp := *run
	cp.ID = r.nextID
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.runs[k] = &cp
	run.ID = cp.ID
}

func (r *jobRunRepository) CreateIfAbsent(ctx context.Context, run *entity.JobRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertIfAbsent(run)
	return nil
}

func (r *jobRunRepository) Claim(ctx context.Context, key entity.JobRunKey, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[keyOf(key)]
	if !ok || run.Status != entity.JobRunStatusPending {
		return false, nil
	}
	now := r.now()
	run.Status = entity.JobRunStatusClaimed
	run.ClaimToken = token
	run.AttemptCount++
	run.ClaimedAt = &now
	run.UpdatedAt = now
	return true, nil
}

// owned returns the run if token still owns it. The caller holds mu.
func (r *jobRunRepository) owned(key entity.JobRunKey, token string) (*entity.JobRun, error) {
	run, ok := r.runs[keyOf(key)]
	if !ok || run.ClaimToken != token || !run.Status.IsActive() {
		return nil, fmt.Errorf("%w: run %s no longer owned", common.ErrClaimConflict, key.Symbol)
	}
	return run, nil
}

func (r *jobRunRepository) Transition(ctx context.Context, key entity.JobRunKey, token string, status entity.JobRunStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, err := r.owned(key, token)
	if err != nil {
		return err
	}
	run.Status = status
	run.UpdatedAt = r.now()
	return nil
}

func (r *jobRunRepository) Release(ctx context.Context, key entity.JobRunKey, token string, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, err := r.owned(key, token)
	if err != nil {
		return err
	}
	run.Status = entity.JobRunStatusPending
	run.ClaimToken = ""
	run.LastError = nullString(cause)
	run.UpdatedAt = r.now()
	return nil
}

func (r *jobRunRepository) Complete(ctx context.Context, key entity.JobRunKey, token string, outcome entity.JobRunOutcome, insightSource entity.InsightSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, err := r.owned(key, token)
	if err != nil {
		return err
	}
	now := r.now()
	run.Status = entity.JobRunStatusSucceeded
	run.Outcome = outcome
	run.InsightSource = string(insightSource)
	run.ClaimToken = ""
	run.CompletedAt = &now
	run.UpdatedAt = now
	return nil
}

func (r *jobRunRepository) Fail(ctx context.Context, key entity.JobRunKey, token string, reason entity.FailureReason, cause error) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[keyOf(key)]
	if !ok || run.Status.IsTerminal() {
		return false, nil
	}
	if run.Status != entity.JobRunStatusPending && run.ClaimToken != token {
		return false, nil
	}
	now := r.now()
	run.Status = entity.JobRunStatusFailed
	run.FailureReason = string(reason)
	run.LastError = nullString(cause)
	run.ClaimToken = ""
	run.CompletedAt = &now
	run.UpdatedAt = now
	return true, nil
}

func (r *jobRunRepository) Skip(ctx context.Context, key entity.JobRunKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.insertIfAbsent(&entity.JobRun{
		JobID:       key.Symbol,
		PeriodStart: key.PeriodStart,
		PeriodEnd:   key.PeriodEnd,
		Status:      entity.JobRunStatusSkipped,
		Outcome:     entity.JobRunOutcomeMissed,
		CompletedAt: &now,
	})
	return nil
}

func (r *jobRunRepository) Get(ctx context.Context, key entity.JobRunKey) (*entity.JobRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[keyOf(key)]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (r *jobRunRepository) Find(ctx context.Context, filter entity.JobRunFilter) ([]entity.JobRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.JobRun
	for _, run := range r.runs {
		if filter.Symbol != "" && run.JobID != filter.Symbol {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && run.PeriodStart.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !run.PeriodStart.Before(filter.To) {
			continue
		}
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PeriodStart.Equal(out[j].PeriodStart) {
			return out[i].PeriodStart.Before(out[j].PeriodStart)
		}
		return out[i].JobID < out[j].JobID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *jobRunRepository) LatestPeriodEnd(ctx context.Context, symbol string) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *time.Time
	for _, run := range r.runs {
		if run.JobID != symbol {
			continue
		}
		if latest == nil || run.PeriodEnd.After(*latest) {
			end := run.PeriodEnd
			latest = &end
		}
	}
	return latest, nil
}

func (r *jobRunRepository) FailStale(ctx context.Context, updatedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	now := r.now()
	for _, run := range r.runs {
		if !run.Status.IsActive() || !run.UpdatedAt.Before(updatedBefore) {
			continue
		}
		run.Status = entity.JobRunStatusFailed
		run.FailureReason = string(entity.FailureReasonTimeout)
		run.LastError = sql.NullString{String: "run abandoned by its owner", Valid: true}
		run.ClaimToken = ""
		run.CompletedAt = &now
		run.UpdatedAt = now
		n++
	}
	return n, nil
}

func nullString(err error) sql.NullString {
	if err == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: err.Error(), Valid: true}
}
