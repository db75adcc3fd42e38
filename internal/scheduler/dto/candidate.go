package dto

import (
	"time"
)

// Candidate is a (symbol, period) the scheduler found due. Missed candidates
// are periods skipped by the missed-period policy and must not be processed.
type Candidate struct {
	Symbol      string    `json:"symbol"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Missed      bool      `json:"missed"`
}
