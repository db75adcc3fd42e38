package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"golang-market-insight/internal/entity"
	"golang-market-insight/pkg/common"
)

// Job is one entry of the `scheduler.jobs` list.
type Job struct {
	Symbol   string `mapstructure:"symbol" validate:"required"`
	Interval string `mapstructure:"interval" validate:"required"`
	Enabled  *bool  `mapstructure:"enabled"`
	StartAt  string `mapstructure:"start_at"`
}

// Scheduler holds scheduler-specific configuration.
type Scheduler struct {
	PollingInterval    time.Duration `mapstructure:"polling_interval" default:"30s" validate:"gt=0"`
	MissedPeriodPolicy string        `mapstructure:"missed_period_policy" default:"skip" validate:"oneof=skip catch_up"`
	MaxCatchUp         int           `mapstructure:"max_catch_up" default:"10" validate:"gte=1"`
	Jobs               []Job         `mapstructure:"jobs" validate:"dive"`
}

// CatchUp reports whether missed periods are replayed instead of skipped.
func (s Scheduler) CatchUp() bool {
	return s.MissedPeriodPolicy == common.MissedPeriodPolicyCatchUp
}

// Definitions converts the configured jobs into scheduler definitions.
// NextDueTime stays zero unless start_at is set, letting the scheduler align it.
func (s Scheduler) Definitions() ([]entity.JobDefinition, error) {
	defs := make([]entity.JobDefinition, 0, len(s.Jobs))
	for _, job := range s.Jobs {
		interval, err := ParseInterval(job.Interval)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", job.Symbol, err)
		}

		def := entity.JobDefinition{
			Symbol:   job.Symbol,
			Interval: interval,
			Enabled:  job.Enabled == nil || *job.Enabled,
		}
		if job.StartAt != "" {
			start, err := time.Parse(time.RFC3339, job.StartAt)
			if err != nil {
				return nil, fmt.Errorf("job %s: invalid start_at: %w", job.Symbol, err)
			}
			def.NextDueTime = start.UTC()
		}
		defs = append(defs, def)
	}
	return defs, nil
}

var descriptorParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseInterval accepts a Go duration ("24h") or a cron descriptor with a fixed
// period ("@daily", "@hourly", "@every 15m").
func ParseInterval(spec string) (time.Duration, error) {
	spec = strings.TrimSpace(spec)
	if d, err := time.ParseDuration(spec); err == nil {
		if d <= 0 {
			return 0, common.NewValidationError("interval", "must be positive")
		}
		return d, nil
	}

	schedule, err := descriptorParser.Parse(spec)
	if err != nil {
		return 0, common.NewValidationError("interval", fmt.Sprintf("cannot parse %q", spec))
	}
	if every, ok := schedule.(cron.ConstantDelaySchedule); ok {
		return every.Delay, nil
	}

	// Descriptors such as @daily are SpecSchedules; accept them only when
	// consecutive firings are evenly spaced.
	ref := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := schedule.Next(ref)
	t2 := schedule.Next(t1)
	t3 := schedule.Next(t2)
	if t2.Sub(t1) != t3.Sub(t2) || t2.Sub(t1) <= 0 {
		return 0, common.NewValidationError("interval", fmt.Sprintf("%q has no fixed period", spec))
	}
	return t2.Sub(t1), nil
}
