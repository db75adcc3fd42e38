package entity

import (
	"time"
)

// JobDefinition is a periodic ingestion job owned by the scheduler registry.
type JobDefinition struct {
	Symbol      string        `json:"symbol" validate:"required"`
	Interval    time.Duration `json:"interval" validate:"gt=0"`
	Enabled     bool          `json:"enabled"`
	NextDueTime time.Time     `json:"next_due_time"`
}
