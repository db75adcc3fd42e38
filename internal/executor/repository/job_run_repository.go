package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"golang-market-insight/internal/entity"
	"golang-market-insight/pkg/common"
)

// NewJobRunRepository creates a new GORM-based job run repository.
func NewJobRunRepository(db *gorm.DB) JobRunRepository {
	return &jobRunRepository{db: db}
}

type jobRunRepository struct {
	db *gorm.DB
}

var terminalStatuses = []entity.JobRunStatus{
	entity.JobRunStatusSucceeded,
	entity.JobRunStatusFailed,
	entity.JobRunStatusSkipped,
}

func (r *jobRunRepository) byKey(ctx context.Context, key entity.JobRunKey) *gorm.DB {
	return r.db.WithContext(ctx).Model(&entity.JobRun{}).
		Where("job_id = ? AND period_start = ? AND period_end = ?", key.Symbol, key.PeriodStart, key.PeriodEnd)
}

func periodConflict() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}, {Name: "period_start"}, {Name: "period_end"}},
		DoNothing: true,
	}
}

// CreateIfAbsent inserts run unless a run for the same period already exists.
func (r *jobRunRepository) CreateIfAbsent(ctx context.Context, run *entity.JobRun) error {
	return r.db.WithContext(ctx).Clauses(periodConflict()).Create(run).Error
}

// Claim moves a pending run to claimed. It reports false when the run was not pending.
func (r *jobRunRepository) Claim(ctx context.Context, key entity.JobRunKey, token string) (bool, error) {
	now := time.Now().UTC()
	res := r.byKey(ctx, key).
		Where("status = ?", entity.JobRunStatusPending).
		Updates(map[string]interface{}{
			"status":        entity.JobRunStatusClaimed,
			"claim_token":   token,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"claimed_at":    now,
			"updated_at":    now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *jobRunRepository) owned(ctx context.Context, key entity.JobRunKey, token string) *gorm.DB {
	return r.byKey(ctx, key).Where("claim_token = ? AND status IN ?", token, entity.ActiveJobRunStatuses)
}

func (r *jobRunRepository) Transition(ctx context.Context, key entity.JobRunKey, token string, status entity.JobRunStatus) error {
	res := r.owned(ctx, key, token).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: run %s no longer owned", common.ErrClaimConflict, key.Symbol)
	}
	return nil
}

// Release hands an owned run back to pending so a retry can claim it again.
func (r *jobRunRepository) Release(ctx context.Context, key entity.JobRunKey, token string, cause error) error {
	res := r.owned(ctx, key, token).Updates(map[string]interface{}{
		"status":      entity.JobRunStatusPending,
		"claim_token": "",
		"last_error":  errorString(cause),
		"updated_at":  time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: run %s no longer owned", common.ErrClaimConflict, key.Symbol)
	}
	return nil
}

func (r *jobRunRepository) Complete(ctx context.Context, key entity.JobRunKey, token string, outcome entity.JobRunOutcome, insightSource entity.InsightSource) error {
	now := time.Now().UTC()
	res := r.owned(ctx, key, token).Updates(map[string]interface{}{
		"status":         entity.JobRunStatusSucceeded,
		"outcome":        outcome,
		"insight_source": string(insightSource),
		"claim_token":    "",
		"completed_at":   now,
		"updated_at":     now,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: run %s no longer owned", common.ErrClaimConflict, key.Symbol)
	}
	return nil
}

// Fail marks a run failed when it is owned by token or pending with no owner.
// It reports whether a row changed; failing an already terminal run is a no-op.
func (r *jobRunRepository) Fail(ctx context.Context, key entity.JobRunKey, token string, reason entity.FailureReason, cause error) (bool, error) {
	now := time.Now().UTC()
	res := r.byKey(ctx, key).
		Where("status NOT IN ?", terminalStatuses).
		Where("status = ? OR claim_token = ?", entity.JobRunStatusPending, token).
		Updates(map[string]interface{}{
			"status":         entity.JobRunStatusFailed,
			"failure_reason": string(reason),
			"last_error":     errorString(cause),
			"claim_token":    "",
			"completed_at":   now,
			"updated_at":     now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Skip records a missed period. An existing run for the period is left untouched.
func (r *jobRunRepository) Skip(ctx context.Context, key entity.JobRunKey) error {
	now := time.Now().UTC()
	run := &entity.JobRun{
		JobID:       key.Symbol,
		PeriodStart: key.PeriodStart,
		PeriodEnd:   key.PeriodEnd,
		Status:      entity.JobRunStatusSkipped,
		Outcome:     entity.JobRunOutcomeMissed,
		CompletedAt: &now,
	}
	return r.db.WithContext(ctx).Clauses(periodConflict()).Create(run).Error
}

func (r *jobRunRepository) Get(ctx context.Context, key entity.JobRunKey) (*entity.JobRun, error) {
	var run entity.JobRun
	err := r.byKey(ctx, key).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (r *jobRunRepository) Find(ctx context.Context, filter entity.JobRunFilter) ([]entity.JobRun, error) {
	query := r.db.WithContext(ctx).Model(&entity.JobRun{})
	if filter.Symbol != "" {
		query = query.Where("job_id = ?", filter.Symbol)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if !filter.From.IsZero() {
		query = query.Where("period_start >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("period_start < ?", filter.To)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var runs []entity.JobRun
	err := query.Order("period_start ASC").Order("job_id ASC").Find(&runs).Error
	return runs, err
}

// FailStale times out active runs that have not moved since updatedBefore,
// for example after the owning process crashed mid-pipeline.
// LatestPeriodEnd returns the end of the newest period recorded for symbol, in any status.
func (r *jobRunRepository) LatestPeriodEnd(ctx context.Context, symbol string) (*time.Time, error) {
	var latest sql.NullTime
	err := r.db.WithContext(ctx).
		Model(&entity.JobRun{}).
		Select("MAX(period_end)").
		Where("job_id = ?", symbol).
		Scan(&latest).Error
	if err != nil {
		return nil, err
	}
	if !latest.Valid {
		return nil, nil
	}
	t := latest.Time.UTC()
	return &t, nil
}

func (r *jobRunRepository) FailStale(ctx context.Context, updatedBefore time.Time) (int64, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&entity.JobRun{}).
		Where("status IN ? AND updated_at < ?", entity.ActiveJobRunStatuses, updatedBefore).
		Updates(map[string]interface{}{
			"status":         entity.JobRunStatusFailed,
			"failure_reason": string(entity.FailureReasonTimeout),
			"last_error":     sql.NullString{String: "run abandoned by its owner", Valid: true},
			"claim_token":    "",
			"completed_at":   now,
			"updated_at":     now,
		})
	return res.RowsAffected, res.Error
}

func errorString(err error) sql.NullString {
	if err == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: err.Error(), Valid: true}
}
