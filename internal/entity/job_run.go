package entity

import (
	"database/sql"
	"time"
)

type JobRunStatus string

const (
	JobRunStatusPending           JobRunStatus = "pending"
	JobRunStatusClaimed           JobRunStatus = "claimed"
	JobRunStatusFetching          JobRunStatus = "fetching"
	JobRunStatusStoring           JobRunStatus = "storing"
	JobRunStatusAnalyzing         JobRunStatus = "analyzing"
	JobRunStatusGeneratingInsight JobRunStatus = "generating_insight"
	JobRunStatusSucceeded         JobRunStatus = "succeeded"
	JobRunStatusFailed            JobRunStatus = "failed"
	JobRunStatusSkipped           JobRunStatus = "skipped"
)

// ActiveJobRunStatuses are the states in which a run is owned by an orchestrator.
var ActiveJobRunStatuses = []JobRunStatus{
	JobRunStatusClaimed,
	JobRunStatusFetching,
	JobRunStatusStoring,
	JobRunStatusAnalyzing,
	JobRunStatusGeneratingInsight,
}

func (s JobRunStatus) IsTerminal() bool {
	return s == JobRunStatusSucceeded || s == JobRunStatusFailed || s == JobRunStatusSkipped
}

func (s JobRunStatus) IsActive() bool {
	for _, a := range ActiveJobRunStatuses {
		if s == a {
			return true
		}
	}
	return false
}

type JobRunOutcome string

const (
	JobRunOutcomeCompleted       JobRunOutcome = "completed"
	JobRunOutcomeNoDataAvailable JobRunOutcome = "no_data_available"
	JobRunOutcomeMissed          JobRunOutcome = "missed"
)

type FailureReason string

const (
	FailureReasonError     FailureReason = "Error"
	FailureReasonTimeout   FailureReason = "Timeout"
	FailureReasonCancelled FailureReason = "Cancelled"
)

// JobRun tracks one (symbol, period) through the pipeline.
type JobRun struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	JobID         string         `gorm:"column:job_id;size:32;not null;uniqueIndex:idx_job_runs_period" json:"job_id"`
	PeriodStart   time.Time      `gorm:"not null;uniqueIndex:idx_job_runs_period" json:"period_start"`
	PeriodEnd     time.Time      `gorm:"not null;uniqueIndex:idx_job_runs_period" json:"period_end"`
	Status        JobRunStatus   `gorm:"size:32;not null;index" json:"status"`
	AttemptCount  int            `gorm:"not null;default:0" json:"attempt_count"`
	LastError     sql.NullString `json:"last_error"`
	FailureReason string         `gorm:"size:32" json:"failure_reason,omitempty"`
	Outcome       JobRunOutcome  `gorm:"size:32" json:"outcome,omitempty"`
	InsightSource string         `gorm:"size:16" json:"insight_source,omitempty"`
	ClaimToken    string         `gorm:"size:64" json:"-"`
	ClaimedAt     *time.Time     `json:"claimed_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (JobRun) TableName() string {
	return "job_runs"
}

// JobRunKey identifies a JobRun by symbol and period.
type JobRunKey struct {
	Symbol      string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

func (r *JobRun) Key() JobRunKey {
	return JobRunKey{Symbol: r.JobID, PeriodStart: r.PeriodStart, PeriodEnd: r.PeriodEnd}
}

// JobRunFilter narrows operator queries over job runs.
type JobRunFilter struct {
	Symbol string
	Status JobRunStatus
	From   time.Time
	To     time.Time
	Limit  int
}
