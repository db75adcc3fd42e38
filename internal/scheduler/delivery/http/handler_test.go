package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-market-insight/internal/entity"
	"golang-market-insight/internal/executor/repository/memory"
	schedulerconfig "golang-market-insight/internal/scheduler/config"
	"golang-market-insight/internal/scheduler/dto"
	"golang-market-insight/internal/scheduler/service"
	"golang-market-insight/pkg/logger"
)

type stubCanceller struct {
	symbol string
	start  time.Time
}

func (s *stubCanceller) Cancel(symbol string, periodStart time.Time) bool {
	return symbol == s.symbol && periodStart.Equal(s.start)
}

func newTestServer(t *testing.T, reload Reloader) (*echo.Echo, service.SchedulerService) {
	t.Helper()
	log := logger.NewNop()

	insights := memory.NewInsightRepository()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, insights.Create(context.Background(), &entity.Insight{Symbol: "ABC", PeriodStart: start, PeriodEnd: start.Add(24 * time.Hour), Text: "old", Source: entity.InsightSourceFallback}))
	require.NoError(t, insights.Create(context.Background(), &entity.Insight{Symbol: "ABC", PeriodStart: start, PeriodEnd: start.Add(24 * time.Hour), Text: "new", Source: entity.InsightSourceLLM}))

	query := service.NewQueryService(memory.NewAnalyticsResultRepository(), insights, memory.NewJobRunRepository(), log, time.Minute, 100)
	scheduler := service.NewSchedulerService(schedulerconfig.Scheduler{MissedPeriodPolicy: "skip"}, log, nil)
	require.NoError(t, scheduler.Register(entity.JobDefinition{Symbol: "abc", Interval: 24 * time.Hour, Enabled: true, NextDueTime: start}))

	if reload == nil {
		reload = func(ctx context.Context) error { return nil }
	}

	e := echo.New()
	api := e.Group("/api/v1")
	NewOutputHandler(query, log).RegisterRoutes(api)
	NewRunHandler(query, &stubCanceller{symbol: "ABC", start: start}, log).RegisterRoutes(api.Group("/runs"))
	NewJobHandler(scheduler, reload, log).RegisterRoutes(api.Group("/jobs"))
	return e, scheduler
}

func do(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGetInsights_ReturnsCurrentPerPeriod(t *testing.T) {
	e, _ := newTestServer(t, nil)

	rec := do(e, http.MethodGet, "/api/v1/insights/abc?from=2024-01-01&to=2024-01-05")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []dto.InsightResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "new", body[0].Text)
	assert.Equal(t, "llm", body[0].Source)
}

func TestGetAnalytics_BadRange(t *testing.T) {
	e, _ := newTestServer(t, nil)

	rec := do(e, http.MethodGet, "/api/v1/analytics/ABC?from=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/analytics/ABC?from=2024-02-01&to=2024-01-01")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRuns_EmptyListIsArray(t *testing.T) {
	e, _ := newTestServer(t, nil)

	rec := do(e, http.MethodGet, "/api/v1/runs?symbol=ABC")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(e, http.MethodGet, "/api/v1/runs?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelRun(t *testing.T) {
	e, _ := newTestServer(t, nil)

	rec := do(e, http.MethodPost, "/api/v1/runs/abc/cancel?period_start=2024-01-01")
	require.Equal(t, http.StatusOK, rec.Code)
	var body dto.CancelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Cancelled)

	rec = do(e, http.MethodPost, "/api/v1/runs/abc/cancel?period_start=2024-01-02")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodPost, "/api/v1/runs/abc/cancel")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobs_ListAndReload(t *testing.T) {
	reloaded := false
	var e *echo.Echo
	var scheduler service.SchedulerService
	e, scheduler = newTestServer(t, func(ctx context.Context) error {
		reloaded = true
		return scheduler.Register(entity.JobDefinition{Symbol: "XYZ", Interval: time.Hour, Enabled: true})
	})

	rec := do(e, http.MethodGet, "/api/v1/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []dto.JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "ABC", jobs[0].Symbol)
	assert.Equal(t, "24h0m0s", jobs[0].Interval)

	rec = do(e, http.MethodPost, "/api/v1/jobs/reload")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reloaded)
	var resp dto.ReloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Jobs, 2)
}

func TestJobs_ReloadFailure(t *testing.T) {
	e, _ := newTestServer(t, func(ctx context.Context) error { return errors.New("boom") })

	rec := do(e, http.MethodPost, "/api/v1/jobs/reload")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
