package dto

import (
	"time"

	"golang-market-insight/internal/entity"
)

// RangeQuery is the common symbol and period filter of output endpoints.
type RangeQuery struct {
	Symbol string
	From   time.Time
	To     time.Time
}

// AnalyticsResponse represents one computed period.
type AnalyticsResponse struct {
	Symbol        string              `json:"symbol"`
	PeriodStart   time.Time           `json:"period_start"`
	PeriodEnd     time.Time           `json:"period_end"`
	Metrics       map[string]*float64 `json:"metrics"`
	AbsentMetrics []string            `json:"absent_metrics"`
	Score         int                 `json:"score"`
	DataPoints    int                 `json:"data_points"`
	ComputedAt    time.Time           `json:"computed_at"`
}

// InsightResponse represents the current insight of a period.
type InsightResponse struct {
	Symbol      string    `json:"symbol"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Text        string    `json:"text"`
	Action      string    `json:"action,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	Source      string    `json:"source"`
	Provider    string    `json:"provider,omitempty"`
	Model       string    `json:"model,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// RunResponse is the operator view of a job run.
type RunResponse struct {
	Symbol        string     `json:"symbol"`
	PeriodStart   time.Time  `json:"period_start"`
	PeriodEnd     time.Time  `json:"period_end"`
	Status        string     `json:"status"`
	Outcome       string     `json:"outcome,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	AttemptCount  int        `json:"attempt_count"`
	LastError     string     `json:"last_error,omitempty"`
	InsightSource string     `json:"insight_source,omitempty"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// JobResponse represents a registered job definition.
type JobResponse struct {
	Symbol      string    `json:"symbol"`
	Interval    string    `json:"interval"`
	Enabled     bool      `json:"enabled"`
	NextDueTime time.Time `json:"next_due_time"`
}

// ReloadResponse reports the job set after a reload.
type ReloadResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// CancelResponse reports whether an in-flight run was flagged.
type CancelResponse struct {
	Symbol      string    `json:"symbol"`
	PeriodStart time.Time `json:"period_start"`
	Cancelled   bool      `json:"cancelled"`
}

func ToAnalyticsResponse(r entity.AnalyticsResult) AnalyticsResponse {
	absent := []string(r.AbsentMetrics)
	if absent == nil {
		absent = []string{}
	}
	return AnalyticsResponse{
		Symbol:        r.Symbol,
		PeriodStart:   r.PeriodStart,
		PeriodEnd:     r.PeriodEnd,
		Metrics:       r.MetricSet(),
		AbsentMetrics: absent,
		Score:         r.Score,
		DataPoints:    r.DataPoints,
		ComputedAt:    r.ComputedAt,
	}
}

func ToInsightResponse(i entity.Insight) InsightResponse {
	return InsightResponse{
		Symbol:      i.Symbol,
		PeriodStart: i.PeriodStart,
		PeriodEnd:   i.PeriodEnd,
		Text:        i.Text,
		Action:      i.Action,
		Confidence:  i.Confidence,
		Source:      string(i.Source),
		Provider:    i.Provider,
		Model:       i.Model,
		GeneratedAt: i.GeneratedAt,
	}
}

func ToRunResponse(r entity.JobRun) RunResponse {
	return RunResponse{
		Symbol:        r.JobID,
		PeriodStart:   r.PeriodStart,
		PeriodEnd:     r.PeriodEnd,
		Status:        string(r.Status),
		Outcome:       string(r.Outcome),
		FailureReason: r.FailureReason,
		AttemptCount:  r.AttemptCount,
		LastError:     r.LastError.String,
		InsightSource: r.InsightSource,
		ClaimedAt:     r.ClaimedAt,
		CompletedAt:   r.CompletedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func ToJobResponse(d entity.JobDefinition) JobResponse {
	return JobResponse{
		Symbol:      d.Symbol,
		Interval:    d.Interval.String(),
		Enabled:     d.Enabled,
		NextDueTime: d.NextDueTime,
	}
}
