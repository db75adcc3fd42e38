package entity

import (
	"sort"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// MetricSet maps a metric name to its value. A nil value means the metric
// could not be computed for the window, which is different from zero.
type MetricSet map[string]*float64

// Get returns the value and whether it was computed.
func (m MetricSet) Get(name string) (float64, bool) {
	v, ok := m[name]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// Names returns all metric names in ascending order.
func (m MetricSet) Names() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Absent returns the names of metrics that were not computed, sorted.
func (m MetricSet) Absent() []string {
	var absent []string
	for _, name := range m.Names() {
		if m[name] == nil {
			absent = append(absent, name)
		}
	}
	return absent
}

// AnalyticsResult holds the metrics computed for one (symbol, period).
// It is replaced wholesale when the period is recomputed.
type AnalyticsResult struct {
	ID            uint                          `gorm:"primaryKey" json:"id"`
	Symbol        string                        `gorm:"size:32;not null;uniqueIndex:idx_analytics_period" json:"symbol"`
	PeriodStart   time.Time                     `gorm:"not null;uniqueIndex:idx_analytics_period" json:"period_start"`
	PeriodEnd     time.Time                     `gorm:"not null" json:"period_end"`
	Metrics       datatypes.JSONType[MetricSet] `gorm:"type:jsonb" json:"metrics"`
	AbsentMetrics pq.StringArray                `gorm:"type:text[]" json:"absent_metrics"`
	Score         int                           `json:"score"`
	DataPoints    int                           `json:"data_points"`
	ComputedAt    time.Time                     `json:"computed_at"`
	CreatedAt     time.Time                     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time                     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AnalyticsResult) TableName() string {
	return "analytics_results"
}

// MetricSet returns the decoded metric map.
func (a *AnalyticsResult) MetricSet() MetricSet {
	return a.Metrics.Data()
}
