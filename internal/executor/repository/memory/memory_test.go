package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-market-insight/internal/entity"
	"golang-market-insight/pkg/common"
)

var day = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestMarketData_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMarketDataRepository()

	points := []entity.MarketDataPoint{
		{Symbol: "ABC", Timestamp: day, Close: 10},
		{Symbol: "ABC", Timestamp: day.Add(24 * time.Hour), Close: 11},
	}
	require.NoError(t, repo.Upsert(ctx, points))
	require.NoError(t, repo.Upsert(ctx, points))

	got, err := repo.QueryRange(ctx, "ABC", day, day.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, repo.Upsert(ctx, []entity.MarketDataPoint{{Symbol: "ABC", Timestamp: day, Close: 12}}))
	got, err = repo.QueryRange(ctx, "ABC", day, day.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 12.0, got[0].Close)

	latest, err := repo.LatestPeriod(ctx, "ABC")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, day.Add(24*time.Hour), *latest)

	none, err := repo.LatestPeriod(ctx, "XYZ")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestJobRun_ClaimOnlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRunRepository()
	key := entity.JobRunKey{Symbol: "ABC", PeriodStart: day, PeriodEnd: day.Add(24 * time.Hour)}
	run := &entity.JobRun{JobID: key.Symbol, PeriodStart: key.PeriodStart, PeriodEnd: key.PeriodEnd, Status: entity.JobRunStatusPending}

	require.NoError(t, repo.CreateIfAbsent(ctx, run))
	require.NoError(t, repo.CreateIfAbsent(ctx, run))

	ok, err := repo.Claim(ctx, key, "t1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(ctx, key, "t2")
	require.NoError(t, err)
	assert.False(t, ok)

	err = repo.Transition(ctx, key, "t2", entity.JobRunStatusFetching)
	assert.True(t, errors.Is(err, common.ErrClaimConflict))

	require.NoError(t, repo.Release(ctx, key, "t1", common.ErrSourceUnavailable))
	got, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, entity.JobRunStatusPending, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	assert.Equal(t, "source unavailable", got.LastError.String)

	ok, err = repo.Claim(ctx, key, "t3")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, repo.Complete(ctx, key, "t3", entity.JobRunOutcomeCompleted, entity.InsightSourceLLM))

	changed, err := repo.Fail(ctx, key, "t3", entity.FailureReasonError, errors.New("late"))
	require.NoError(t, err)
	assert.False(t, changed)

	got, err = repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, entity.JobRunStatusSucceeded, got.Status)
	assert.Equal(t, 2, got.AttemptCount)
}

func TestJobRun_SkipDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRunRepository()
	key := entity.JobRunKey{Symbol: "ABC", PeriodStart: day, PeriodEnd: day.Add(24 * time.Hour)}

	require.NoError(t, repo.CreateIfAbsent(ctx, &entity.JobRun{JobID: "ABC", PeriodStart: key.PeriodStart, PeriodEnd: key.PeriodEnd, Status: entity.JobRunStatusPending}))
	require.NoError(t, repo.Skip(ctx, key))

	got, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, entity.JobRunStatusPending, got.Status)

	other := entity.JobRunKey{Symbol: "ABC", PeriodStart: day.Add(24 * time.Hour), PeriodEnd: day.Add(48 * time.Hour)}
	require.NoError(t, repo.Skip(ctx, other))
	got, err = repo.Get(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, entity.JobRunStatusSkipped, got.Status)
	assert.Equal(t, entity.JobRunOutcomeMissed, got.Outcome)
}

func TestJobRun_FailStale(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRunRepository().(*jobRunRepository)
	key := entity.JobRunKey{Symbol: "ABC", PeriodStart: day, PeriodEnd: day.Add(24 * time.Hour)}

	clock := day
	repo.now = func() time.Time { return clock }
	require.NoError(t, repo.CreateIfAbsent(ctx, &entity.JobRun{JobID: "ABC", PeriodStart: key.PeriodStart, PeriodEnd: key.PeriodEnd, Status: entity.JobRunStatusPending}))
	ok, err := repo.Claim(ctx, key, "t1")
	require.NoError(t, err)
	require.True(t, ok)

	n, err := repo.FailStale(ctx, day)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock = day.Add(time.Hour)
	n, err = repo.FailStale(ctx, day.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, entity.JobRunStatusFailed, got.Status)
	assert.Equal(t, string(entity.FailureReasonTimeout), got.FailureReason)
}

func TestInsights_NewestPerPeriod(t *testing.T) {
	ctx := context.Background()
	repo := NewInsightRepository()

	require.NoError(t, repo.Create(ctx, &entity.Insight{Symbol: "ABC", PeriodStart: day, Text: "first"}))
	require.NoError(t, repo.Create(ctx, &entity.Insight{Symbol: "ABC", PeriodStart: day, Text: "second"}))
	require.NoError(t, repo.Create(ctx, &entity.Insight{Symbol: "ABC", PeriodStart: day.Add(24 * time.Hour), Text: "next"}))

	got, err := repo.FindCurrentByRange(ctx, "ABC", day, day.Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Text)
	assert.Equal(t, "next", got[1].Text)
}
