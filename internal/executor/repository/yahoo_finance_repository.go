package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
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

type yahooFinanceRepository struct {
	cfg            *config.Config
	log            *logger.Logger
	httpClient     *http.Client
	requestLimiter *rate.Limiter
}

// NewYahooFinanceRepository creates a MarketDataSource backed by the Yahoo Finance chart API.
func NewYahooFinanceRepository(cfg *config.Config, log *logger.Logger) MarketDataSource {
	secondsPerRequest := time.Minute / time.Duration(cfg.Source.YahooFinance.MaxRequestPerMinute)
	return &yahooFinanceRepository{
		cfg: cfg,
		log: log,
		httpClient: &http.Client{
			Timeout: cfg.Source.YahooFinance.Timeout,
		},
		requestLimiter: rate.NewLimiter(rate.Every(secondsPerRequest), 1),
	}
}

func (r *yahooFinanceRepository) Name() string {
	return common.SourceProviderYahoo
}

func (r *yahooFinanceRepository) Fetch(ctx context.Context, req dto.FetchRequest) ([]entity.MarketDataPoint, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", common.ErrInvalidSymbol)
	}

	ycfg := r.cfg.Source.YahooFinance
	query := url.Values{}
	query.Set("period1", strconv.FormatInt(req.Start.Unix(), 10))
	query.Set("period2", strconv.FormatInt(req.End.Unix(), 10))
	query.Set("interval", ycfg.Interval)
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", strings.TrimRight(ycfg.BaseURL, "/"), url.PathEscape(symbol), query.Encode())

	fields := []zap.Field{zap.String("url", endpoint)}

	if err := r.requestLimiter.Wait(ctx); err != nil {
		fields = append(fields, zap.Error(err))
		r.log.ErrorContext(ctx, "Failed to wait for request limit", fields...)
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	httpReq.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		fields = append(fields, zap.Error(err))
		r.log.ErrorContext(ctx, "Failed to send request to Yahoo Finance API", fields...)
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
		fields = append(fields, zap.Int("status_code", resp.StatusCode))
		r.log.ErrorContext(ctx, "Received non-OK response from Yahoo Finance API", fields...)
		return nil, classifyStatus("yahoo", resp.StatusCode, body)
	}

	var chart dto.YahooChartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("%w: decode yahoo response: %v", common.ErrMalformedData, err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("%w: yahoo: %s", common.ErrInvalidSymbol, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	points := make([]entity.MarketDataPoint, 0, len(result.Timestamp))
	for i, unix := range result.Timestamp {
		ts := time.Unix(unix, 0).UTC()
		if ts.Before(req.Start) || !ts.Before(req.End) {
			continue
		}
		closePrice, ok := valueAt(quote.Close, i)
		if !ok {
			// Yahoo emits null rows for halted sessions.
			continue
		}
		open, _ := valueAt(quote.Open, i)
		high, _ := valueAt(quote.High, i)
		low, _ := valueAt(quote.Low, i)
		volume, _ := valueAt(quote.Volume, i)
		points = append(points, entity.MarketDataPoint{
			Symbol:    symbol,
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			Source:    r.Name(),
		})
	}
	return points, nil
}

func valueAt(values []*float64, i int) (float64, bool) {
	if i >= len(values) || values[i] == nil {
		return 0, false
	}
	return *values[i], true
}
