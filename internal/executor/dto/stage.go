package dto

import (
	"time"

	"golang-market-insight/internal/entity"
)

// Stage inputs. Each pipeline stage takes exactly one of these.

// FetchRequest asks the data source for the bars of [Start, End).
type FetchRequest struct {
	Symbol string
	Start  time.Time
	End    time.Time
}

// StoreRequest carries normalized points to upsert.
type StoreRequest struct {
	Points []entity.MarketDataPoint
}

// AnalyzeRequest covers the period plus its trailing lookback window.
type AnalyzeRequest struct {
	Symbol        string
	PeriodStart   time.Time
	PeriodEnd     time.Time
	LookbackStart time.Time
}

// InsightRequest hands a computed result to the insight generator.
type InsightRequest struct {
	Result *entity.AnalyticsResult
}

// RunEvent is published when a run reaches a terminal state.
type RunEvent struct {
	EventID       string    `json:"event_id"`
	Symbol        string    `json:"symbol"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	Status        string    `json:"status"`
	Outcome       string    `json:"outcome,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	Error         string    `json:"error,omitempty"`
	InsightSource string    `json:"insight_source,omitempty"`
	Score         *int      `json:"score,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
