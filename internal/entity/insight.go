package entity

import (
	"time"
)

type InsightSource string

const (
	InsightSourceLLM      InsightSource = "llm"
	InsightSourceFallback InsightSource = "fallback"
)

// Insight is an immutable generated text for one (symbol, period).
// Regeneration appends a new row; the newest row is the current one.
type Insight struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	Symbol      string        `gorm:"size:32;not null;index:idx_insights_period" json:"symbol"`
	PeriodStart time.Time     `gorm:"not null;index:idx_insights_period" json:"period_start"`
	PeriodEnd   time.Time     `gorm:"not null" json:"period_end"`
	Text        string        `gorm:"type:text;not null" json:"text"`
	Action      string        `gorm:"size:16" json:"action,omitempty"`
	Confidence  float64       `json:"confidence,omitempty"`
	Source      InsightSource `gorm:"size:16;not null" json:"source"`
	Provider    string        `gorm:"size:32" json:"provider,omitempty"`
	Model       string        `gorm:"size:64" json:"model,omitempty"`
	PromptHash  string        `gorm:"size:64" json:"prompt_hash"`
	GeneratedAt time.Time     `gorm:"not null" json:"generated_at"`
}

func (Insight) TableName() string {
	return "insights"
}
