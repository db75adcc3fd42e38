package repository

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-market-insight/internal/executor/config"
	"golang-market-insight/internal/executor/dto"
	"golang-market-insight/pkg/common"
	"golang-market-insight/pkg/logger"
)

func newPolygonTestRepo(t *testing.T, handler http.HandlerFunc) MarketDataSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.Source.Polygon = config.Polygon{
		BaseURL:             srv.URL,
		APIKey:              "secret",
		Multiplier:          1,
		Timespan:            "day",
		MaxRequestPerMinute: 6000,
		Timeout:             5 * time.Second,
	}
	return NewPolygonRepository(cfg, logger.NewNop())
}

func TestPolygonFetch_NormalizesAndFiltersBars(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)

	repo := newPolygonTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v2/aggs/ticker/ABC/range/1/day/"))
		assert.Equal(t, "asc", r.URL.Query().Get("sort"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ticker":"ABC","status":"OK","resultsCount":3,"results":[
			{"o":10,"h":11,"l":9,"c":10.5,"v":1000,"vw":10.2,"n":42,"t":1704067200000},
			{"o":10.5,"h":12,"l":10,"c":11.5,"v":1500,"vw":11.1,"n":50,"t":1704153600000},
			{"o":11.5,"h":13,"l":11,"c":12.5,"v":900,"vw":12.0,"n":30,"t":1704240000000}
		]}`))
	})

	points, err := repo.Fetch(context.Background(), dto.FetchRequest{Symbol: "abc", Start: start, End: end})
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, "ABC", points[0].Symbol)
	assert.Equal(t, start, points[0].Timestamp)
	assert.Equal(t, 10.5, points[0].Close)
	assert.Equal(t, int64(42), points[0].Trades)
	assert.Equal(t, 10.2, points[0].VWAP)
	assert.Equal(t, common.SourceProviderPolygon, points[0].Source)
	assert.Equal(t, start.Add(24*time.Hour), points[1].Timestamp)
}

func TestPolygonFetch_EmptyResults(t *testing.T) {
	repo := newPolygonTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ticker":"ABC","status":"OK","resultsCount":0}`))
	})

	start := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
	points, err := repo.Fetch(context.Background(), dto.FetchRequest{Symbol: "ABC", Start: start, End: start.Add(24 * time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestPolygonFetch_ClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   error
		transient bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, wantErr: common.ErrSourceUnavailable, transient: true},
		{name: "server error", status: http.StatusBadGateway, wantErr: common.ErrSourceUnavailable, transient: true},
		{name: "unknown ticker", status: http.StatusNotFound, wantErr: common.ErrInvalidSymbol},
		{name: "bad request", status: http.StatusBadRequest, wantErr: common.ErrInvalidSymbol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newPolygonTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"status":"ERROR","error":"nope"}`))
			})

			start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			_, err := repo.Fetch(context.Background(), dto.FetchRequest{Symbol: "ABC", Start: start, End: start.Add(24 * time.Hour)})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.transient, common.IsTransient(err))
		})
	}
}

func TestPolygonFetch_RejectsEmptySymbol(t *testing.T) {
	repo := newPolygonTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := repo.Fetch(context.Background(), dto.FetchRequest{Symbol: "  "})
	assert.ErrorIs(t, err, common.ErrInvalidSymbol)
}
