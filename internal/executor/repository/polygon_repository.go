package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"golang-market-insight/internal/entity"
	"golang-market-insight/internal/executor/config"
	"golang-market-insight/internal/executor/dto"
	"golang-market-insight/pkg/common"
	"golang-market-insight/pkg/logger"
)

type polygonRepository struct {
	cfg            *config.Config
	log            *logger.Logger
	httpClient     *http.Client
	requestLimiter *rate.Limiter
}

// NewPolygonRepository creates a MarketDataSource backed by the Polygon aggregates API.
func NewPolygonRepository(cfg *config.Config, log *logger.Logger) MarketDataSource {
	secondsPerRequest := time.Minute / time.Duration(cfg.Source.Polygon.MaxRequestPerMinute)
	requestLimiter := rate.NewLimiter(rate.Every(secondsPerRequest), 1)
	return &polygonRepository{
		cfg: cfg,
		log: log,
		httpClient: &http.Client{
			Timeout: cfg.Source.Polygon.Timeout,
		},
		requestLimiter: requestLimiter,
	}
}

func (r *polygonRepository) Name() string {
	return common.SourceProviderPolygon
}

func (r *polygonRepository) Fetch(ctx context.Context, req dto.FetchRequest) ([]entity.MarketDataPoint, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", common.ErrInvalidSymbol)
	}

	pcfg := r.cfg.Source.Polygon
	endpoint := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/%d/%s/%d/%d",
		strings.TrimRight(pcfg.BaseURL, "/"),
		url.PathEscape(symbol),
		pcfg.Multiplier,
		pcfg.Timespan,
		req.Start.UnixMilli(),
		req.End.UnixMilli()-1,
	)
	query := url.Values{}
	query.Set("adjusted", "true")
	query.Set("sort", "asc")
	query.Set("limit", "50000")

	body, err := r.sendRequest(ctx, endpoint+"?"+query.Encode())
	if err != nil {
		return nil, err
	}

	var response dto.PolygonAggregatesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("%w: decode polygon response: %v", common.ErrMalformedData, err)
	}
	if response.Status == "ERROR" {
		return nil, fmt.Errorf("%w: polygon: %s", common.ErrSourceUnavailable, response.Error)
	}

	points := make([]entity.MarketDataPoint, 0, len(response.Results))
	for _, bar := range response.Results {
		ts := time.UnixMilli(bar.Timestamp).UTC()
		if ts.Before(req.Start) || !ts.Before(req.End) {
			continue
		}
		points = append(points, entity.MarketDataPoint{
			Symbol:    symbol,
			Timestamp: ts,
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Volume:    bar.Volume,
			Trades:    bar.Transactions,
			VWAP:      bar.VWAP,
			Source:    r.Name(),
		})
	}

	r.log.DebugContext(ctx, "Polygon bars fetched",
		logger.StringField("symbol", symbol),
		logger.IntField("results", len(response.Results)),
		logger.IntField("kept", len(points)))

	return points, nil
}

func (r *polygonRepository) sendRequest(ctx context.Context, endpoint string) ([]byte, error) {
	fields := []zap.Field{
		zap.String("url", redactAPIKey(endpoint)),
		zap.Int("max_request_per_minute", r.cfg.Source.Polygon.MaxRequestPerMinute),
	}

	if err := r.requestLimiter.Wait(ctx); err != nil {
		fields = append(fields, zap.Error(err))
		r.log.ErrorContext(ctx, "Failed to wait for request limit", fields...)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		fields = append(fields, zap.Error(err))
		r.log.ErrorContext(ctx, "Failed to create new http request", fields...)
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if r.cfg.Source.Polygon.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Source.Polygon.APIKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		fields = append(fields, zap.Error(err))
		r.log.ErrorContext(ctx, "Failed to send request to Polygon API", fields...)
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", common.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", common.ErrSourceUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		fields = append(fields, zap.Int("status_code", resp.StatusCode), zap.ByteString("body", body))
		r.log.ErrorContext(ctx, "Received non-OK response from Polygon API", fields...)
		return nil, classifyStatus("polygon", resp.StatusCode, body)
	}

	return body, nil
}

// classifyStatus maps an HTTP status from a market data provider onto the error taxonomy.
func classifyStatus(provider string, code int, body []byte) error {
	switch {
	case code == http.StatusTooManyRequests, code >= 500, code == http.StatusRequestTimeout:
		return fmt.Errorf("%w: %s returned %d", common.ErrSourceUnavailable, provider, code)
	case code == http.StatusNotFound, code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s returned %d: %s", common.ErrInvalidSymbol, provider, code, truncate(string(body), 200))
	default:
		return fmt.Errorf("%s returned %d: %s", provider, code, truncate(string(body), 200))
	}
}

func redactAPIKey(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	if q.Has("apiKey") {
		q.Set("apiKey", "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
