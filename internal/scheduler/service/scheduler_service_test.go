package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-market-insight/internal/entity"
	"golang-market-insight/internal/scheduler/config"
	"golang-market-insight/internal/scheduler/dto"
	"golang-market-insight/pkg/common"
	"golang-market-insight/pkg/logger"
)

const day = 24 * time.Hour

var t0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, cfg config.Scheduler, now time.Time) *schedulerService {
	t.Helper()
	if cfg.PollingInterval == 0 {
		cfg.PollingInterval = time.Second
	}
	if cfg.MissedPeriodPolicy == "" {
		cfg.MissedPeriodPolicy = common.MissedPeriodPolicySkip
	}
	svc := NewSchedulerService(cfg, logger.NewNop(), nil).(*schedulerService)
	svc.now = func() time.Time { return now }
	return svc
}

func collect(seq func(func(dto.Candidate) bool)) []dto.Candidate {
	var out []dto.Candidate
	for c := range seq {
		out = append(out, c)
	}
	return out
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestScheduler(t, config.Scheduler{}, t0)

	tests := []struct {
		name string
		def  entity.JobDefinition
	}{
		{name: "empty symbol", def: entity.JobDefinition{Symbol: "  ", Interval: day, Enabled: true}},
		{name: "zero interval", def: entity.JobDefinition{Symbol: "ABC", Interval: 0, Enabled: true}},
		{name: "negative interval", def: entity.JobDefinition{Symbol: "ABC", Interval: -time.Hour, Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Register(tt.def)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrValidation)

			var vErr *common.ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}
	assert.Empty(t, svc.Jobs())
}

func TestTick_DailyJobYieldsOneCandidatePerPeriod(t *testing.T) {
	svc := newTestScheduler(t, config.Scheduler{}, t0)
	require.NoError(t, svc.Register(entity.JobDefinition{Symbol: "ABC", Interval: day, Enabled: true, NextDueTime: t0}))

	first := collect(svc.Tick(t0))
	require.Len(t, first, 1)
	assert.Equal(t, dto.Candidate{Symbol: "ABC", PeriodStart: t0.Add(-day), PeriodEnd: t0}, first[0])

	assert.Empty(t, collect(svc.Tick(t0.Add(12*time.Hour))))

	second := collect(svc.Tick(t0.Add(day)))
	require.Len(t, second, 1)
	assert.Equal(t, t0, second[0].PeriodStart)
	assert.Equal(t, t0.Add(day), second[0].PeriodEnd)
	assert.False(t, second[0].Missed)
}

func TestTick_OrdersBySymbol(t *testing.T) {
	svc := newTestScheduler(t, config.Scheduler{}, t0)
	for _, symbol := range []string{"msft", "AAPL", "GOOG"} {
		require.NoError(t, svc.Register(entity.JobDefinition{Symbol: symbol, Interval: day, Enabled: true, NextDueTime: t0}))
	}

	var symbols []string
	for c := range svc.Tick(t0) {
		symbols = append(symbols, c.Symbol)
	}
	assert.Equal(t, []string{"AAPL", "GOOG", "MSFT"}, symbols)
}

func TestTick_SkipsMissedPeriods(t *testing.T) {
	svc := newTestScheduler(t, config.Scheduler{}, t0)
	require.NoError(t, svc.Register(entity.JobDefinition{Symbol: "ABC", Interval: day, Enabled: true, NextDueTime: t0}))

	now := t0.Add(3*day + time.Hour)
	got := collect(svc.Tick(now))
	require.Len(t, got, 4)

	for i, c := range got[:3] {
		assert.True(t, c.Missed, "candidate %d", i)
		assert.Equal(t, t0.Add(time.Duration(i-1)*day), c.PeriodStart)
	}
	assert.False(t, got[3].Missed)
	assert.Equal(t, t0.Add(2*day), got[3].PeriodStart)
	assert.Equal(t, t0.Add(3*day), got[3].PeriodEnd)

	assert.Empty(t, collect(svc.Tick(now)))
	assert.Equal(t, t0.Add(4*day), svc.Jobs()[0].NextDueTime)
}

func TestTick_CatchUpPolicyReplaysRecentPeriods(t *testing.T) {
	svc := newTestScheduler(t, config.Scheduler{
		MissedPeriodPolicy: common.MissedPeriodPolicyCatchUp,
		MaxCatchUp:         2,
	}, t0)
	require.NoError(t, svc.Register(entity.JobDefinition{Symbol: "ABC", Interval: day, Enabled: true, NextDueTime: t0}))

	got := collect(svc.Tick(t0.Add(3 * day)))
	require.Len(t, got, 4)

	missed := 0
	for _, c := range got {
		if c.Missed {
			missed++
		}
	}
	assert.Equal(t, 2, missed)
	assert.True(t, got[0].Missed)
	assert.True(t, got[1].Missed)
	assert.False(t, got[2].Missed)
	assert.False(t, got[3].Missed)
	assert.True(t, got[2].PeriodStart.Before(got[3].PeriodStart))
}

func TestTick_StoppingEarlyLeavesRemainingJobsDue(t *testing.T) {
	svc := newTestScheduler(t, config.Scheduler{}, t0)
	require.NoError(t, svc.Register(entity.JobDefinition{Symbol: "AAA", Interval: day, Enabled: true, NextDueTime: t0}))
	require.NoError(t, svc.Register(entity.JobDefinition{Symbol: "BBB", Interval: day, Enabled: true, NextDueTime: t0}))

	for c := range svc.Tick(t0) {
		assert.Equal(t, "AAA", c.Symbol)
		break
	}

	rest := collect(svc.Tick(t0))
	require.Len(t, rest, 1)
	assert.Equal(t, "BBB", rest[0].Symbol)
}

func TestTick_DisabledJobsAreNotDue(t *testing.T) {
	svc := newTestScheduler(t, config.Scheduler{}, t0)
	require.NoError(t, svc.Register(entity.JobDefinition{Symbol: "ABC", Interval: day, Enabled: false, NextDueTime: t0}))
	assert.Empty(t, collect(svc.Tick(t0)))

	require.True(t, svc.SetEnabled("abc", true))
	assert.Len(t, collect(svc.Tick(t0)), 1)
	assert.False(t, svc.SetEnabled("XYZ", true))
}

func TestRegister_UpdateKeepsNextDueTime(t *testing.T) {
	svc := newTestScheduler(t, config.Scheduler{}, t0)
	require.NoError(t, svc.Register(entity.JobDefinition{Symbol: "ABC", Interval: day, Enabled: true, NextDueTime: t0.Add(day)}))
	require.NoError(t, svc.Register(entity.JobDefinition{Symbol: "ABC", Interval: day, Enabled: false}))

	jobs := svc.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, t0.Add(day), jobs[0].NextDueTime)
	assert.False(t, jobs[0].Enabled)
}

func TestRegister_AlignsNextDueTimeToInterval(t *testing.T) {
	now := t0.Add(15*time.Hour + 7*time.Minute)
	svc := newTestScheduler(t, config.Scheduler{}, now)

	require.NoError(t, svc.Register(entity.JobDefinition{Symbol: "ABC", Interval: day, Enabled: true}))
	assert.Equal(t, t0, svc.Jobs()[0].NextDueTime)

	got := collect(svc.Tick(now))
	require.Len(t, got, 1)
	assert.Equal(t, t0.Add(-day), got[0].PeriodStart)
}

func TestSync_DisablesRemovedJobs(t *testing.T) {
	svc := newTestScheduler(t, config.Scheduler{}, t0)
	require.NoError(t, svc.Sync([]entity.JobDefinition{
		{Symbol: "AAA", Interval: day, Enabled: true},
		{Symbol: "BBB", Interval: day, Enabled: true},
	}))

	err := svc.Sync([]entity.JobDefinition{
		{Symbol: "AAA", Interval: day, Enabled: true},
		{Symbol: "", Interval: day, Enabled: true},
	})
	assert.ErrorIs(t, err, common.ErrValidation)

	jobs := svc.Jobs()
	require.Len(t, jobs, 2)
	assert.True(t, jobs[0].Enabled)
	assert.False(t, jobs[1].Enabled)
}

func TestStart_DispatchesDueCandidates(t *testing.T) {
	svc := newTestScheduler(t, config.Scheduler{PollingInterval: 10 * time.Millisecond}, t0)
	require.NoError(t, svc.Register(entity.JobDefinition{Symbol: "ABC", Interval: day, Enabled: true, NextDueTime: t0}))

	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu  sync.Mutex
		got []dto.Candidate
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Start(ctx, func(_ context.Context, c dto.Candidate) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, c)
			return nil
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "ABC", got[0].Symbol)
}
