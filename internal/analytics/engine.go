// Package analytics turns an ordered window of market data into named metrics.
package analytics

import (
	"fmt"
	"sort"
	"time"

	"gorm.io/datatypes"

	"golang-market-insight/internal/entity"
)

// Metric names produced by the engine besides the windowed moving averages.
const (
	MetricRSIPrefix          = "rsi_"
	MetricMACD               = "macd"
	MetricMACDSignal         = "macd_signal"
	MetricMACDHist           = "macd_hist"
	MetricMomentumPrefix     = "momentum_"
	MetricVolatilityPrefix   = "volatility_"
	MetricVolumeAvgPrefix    = "volume_avg_"
	MetricVolumeLatest       = "volume_latest"
	MetricVolumeChangePct    = "volume_change_pct"
	MetricPriceCurrent       = "price_current"
	MetricPriceHighPrefix    = "price_high_"
	MetricPriceLowPrefix     = "price_low_"
	MetricPriceAvgPrefix     = "price_avg_"
	MetricTargetConservative = "target_conservative"
	MetricTargetAggressive   = "target_aggressive"
)

func SMAName(window int) string { return fmt.Sprintf("sma_%d", window) }
func EMAName(window int) string { return fmt.Sprintf("ema_%d", window) }

// Engine is stateless apart from its configuration and safe for concurrent use.
type Engine struct {
	cfg Config
	now func() time.Time
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// Lookback returns how far before a period start the window must reach,
// given the duration of one bar.
func (e *Engine) Lookback(barInterval time.Duration) time.Duration {
	bars := float64(e.cfg.RequiredBars()) * e.cfg.CalendarFactor
	return time.Duration(bars * float64(barInterval))
}

// Compute evaluates every configured metric over points. Metrics whose window is
// longer than the available history are present in the result with a nil value.
func (e *Engine) Compute(symbol string, periodStart, periodEnd time.Time, points []entity.MarketDataPoint) *entity.AnalyticsResult {
	bars := aggregateDaily(points)
	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	metrics := entity.MetricSet{}
	for _, w := range e.cfg.SMAWindows {
		metrics[SMAName(w)] = sma(closes, w)
	}
	for _, w := range e.cfg.EMAWindows {
		metrics[EMAName(w)] = ema(closes, w)
	}
	metrics[fmt.Sprintf("%s%d", MetricRSIPrefix, e.cfg.RSIPeriod)] = rsi(closes, e.cfg.RSIPeriod)
	metrics[MetricMACD], metrics[MetricMACDSignal], metrics[MetricMACDHist] = macd(closes, e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal)
	metrics[fmt.Sprintf("%s%d", MetricMomentumPrefix, e.cfg.MomentumPeriod)] = momentum(closes, e.cfg.MomentumPeriod)
	metrics[fmt.Sprintf("%s%d", MetricVolatilityPrefix, e.cfg.VolatilityWindow)] = volatility(closes, e.cfg.VolatilityWindow)

	vt := volumeTrendDaily(volumes, e.cfg.VolumeTrendDays)
	metrics[fmt.Sprintf("%s%d", MetricVolumeAvgPrefix, e.cfg.VolumeTrendDays)] = vt.Average
	metrics[MetricVolumeLatest] = vt.Latest
	metrics[MetricVolumeChangePct] = vt.ChangePct

	pt := fibonacciTarget(bars, e.cfg.PriceTargetDays)
	metrics[MetricPriceCurrent] = pt.Current
	metrics[fmt.Sprintf("%s%d", MetricPriceHighPrefix, e.cfg.PriceTargetDays)] = pt.High
	metrics[fmt.Sprintf("%s%d", MetricPriceLowPrefix, e.cfg.PriceTargetDays)] = pt.Low
	metrics[fmt.Sprintf("%s%d", MetricPriceAvgPrefix, e.cfg.PriceTargetDays)] = pt.Average
	metrics[MetricTargetConservative] = pt.Conservative
	metrics[MetricTargetAggressive] = pt.Aggressive

	return &entity.AnalyticsResult{
		Symbol:        symbol,
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		Metrics:       datatypes.NewJSONType(metrics),
		AbsentMetrics: metrics.Absent(),
		Score:         e.Score(metrics),
		DataPoints:    len(points),
		ComputedAt:    e.now(),
	}
}

// Score sums the bullish (+1) and bearish (-1) signals. Signals whose
// inputs are absent do not contribute.
func (e *Engine) Score(m entity.MetricSet) int {
	score := 0

	windows := append([]int(nil), e.cfg.SMAWindows...)
	sort.Ints(windows)
	for i := 0; i+1 < len(windows); i++ {
		short, okShort := m.Get(SMAName(windows[i]))
		long, okLong := m.Get(SMAName(windows[i+1]))
		if !okShort || !okLong {
			continue
		}
		if short > long {
			score++
		} else {
			score--
		}
	}

	if current, ok := m.Get(MetricPriceCurrent); ok {
		if target, ok := m.Get(MetricTargetConservative); ok {
			if current < target {
				score++
			} else {
				score--
			}
		}
	}

	if change, ok := m.Get(MetricVolumeChangePct); ok {
		switch {
		case change > e.cfg.VolumeThreshold:
			score++
		case change < -e.cfg.VolumeThreshold:
			score--
		}
	}

	if r, ok := m.Get(fmt.Sprintf("%s%d", MetricRSIPrefix, e.cfg.RSIPeriod)); ok {
		switch {
		case r > e.cfg.RSIOverbought:
			score--
		case r < e.cfg.RSIOversold:
			score++
		}
	}

	return score
}
