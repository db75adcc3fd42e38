package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"golang-market-insight/internal/entity"
)

const tradingDaysPerYear = 252

type dailyBar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// aggregateDaily folds bars into one bar per UTC date, oldest first.
func aggregateDaily(points []entity.MarketDataPoint) []dailyBar {
	sorted := make([]entity.MarketDataPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var bars []dailyBar
	for _, p := range sorted {
		ts := p.Timestamp.UTC()
		date := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		if n := len(bars); n > 0 && bars[n-1].Date.Equal(date) {
			last := &bars[n-1]
			last.High = math.Max(last.High, p.High)
			last.Low = math.Min(last.Low, p.Low)
			last.Close = p.Close
			last.Volume += p.Volume
			continue
		}
		bars = append(bars, dailyBar{
			Date:   date,
			Open:   p.Open,
			High:   p.High,
			Low:    p.Low,
			Close:  p.Close,
			Volume: p.Volume,
		})
	}
	return bars
}

func last(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	v := values[len(values)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func sma(closes []float64, window int) *float64 {
	if window <= 0 || len(closes) < window {
		return nil
	}
	return last(talib.Sma(closes, window))
}

func ema(closes []float64, window int) *float64 {
	if window <= 0 || len(closes) < window {
		return nil
	}
	return last(talib.Ema(closes, window))
}

// rsi uses Wilder smoothing and needs period+1 closes. talib writes 0 when the
// smoothed gains and losses are both zero, so a window without any decline that
// reads 0 is a flat market and reported as neutral.
func rsi(closes []float64, period int) *float64 {
	if period <= 0 || len(closes) < period+1 {
		return nil
	}
	v := last(talib.Rsi(closes, period))
	if v != nil && *v == 0 && !hasDecline(closes[len(closes)-period-1:]) {
		neutral := 50.0
		return &neutral
	}
	return v
}

func hasDecline(closes []float64) bool {
	for i := 1; i < len(closes); i++ {
		if closes[i] < closes[i-1] {
			return true
		}
	}
	return false
}

// macd runs the signal EMA over the MACD line from bar slow-1 onward, not over
// the zero padding talib.Macd feeds it.
func macd(closes []float64, fast, slow, signal int) (line, sig, hist *float64) {
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < slow+signal-1 {
		return nil, nil, nil
	}
	fastEMA := talib.Ema(closes, fast)
	slowEMA := talib.Ema(closes, slow)
	macdLine := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		macdLine = append(macdLine, fastEMA[i]-slowEMA[i])
	}
	signalLine := talib.Ema(macdLine, signal)

	line, sig = last(macdLine), last(signalLine)
	if line == nil || sig == nil {
		return line, nil, nil
	}
	h := *line - *sig
	return line, sig, &h
}

func momentum(closes []float64, period int) *float64 {
	if period <= 0 || len(closes) < period+1 {
		return nil
	}
	return last(talib.Roc(closes, period))
}

// volatility is the annualized standard deviation of daily log returns.
func volatility(closes []float64, window int) *float64 {
	if window < 2 || len(closes) < window+1 {
		return nil
	}
	tail := closes[len(closes)-window-1:]
	returns := make([]float64, 0, window)
	for i := 1; i < len(tail); i++ {
		if tail[i-1] <= 0 || tail[i] <= 0 {
			return nil
		}
		returns = append(returns, math.Log(tail[i]/tail[i-1]))
	}
	v := stat.StdDev(returns, nil) * math.Sqrt(tradingDaysPerYear)
	return &v
}

type volumeTrend struct {
	Average   *float64
	Latest    *float64
	ChangePct *float64
}

// volumeTrendDaily compares the latest day's volume with the average of the days before it.
func volumeTrendDaily(volumes []float64, days int) volumeTrend {
	if days <= 0 || len(volumes) < days+1 {
		return volumeTrend{}
	}
	latest := volumes[len(volumes)-1]
	avg := stat.Mean(volumes[len(volumes)-days-1:len(volumes)-1], nil)
	trend := volumeTrend{Average: &avg, Latest: &latest}
	if avg != 0 {
		change := (latest - avg) / avg * 100
		trend.ChangePct = &change
	}
	return trend
}

type priceTarget struct {
	Current      *float64
	High         *float64
	Low          *float64
	Average      *float64
	Conservative *float64
	Aggressive   *float64
}

// fibonacciTarget projects 38.2% and 61.8% of the period range above the current close.
func fibonacciTarget(bars []dailyBar, days int) priceTarget {
	if len(bars) == 0 || days <= 0 {
		return priceTarget{}
	}
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}

	current := bars[len(bars)-1].Close
	high, low := bars[0].High, bars[0].Low
	closes := make([]float64, len(bars))
	for i, b := range bars {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
		closes[i] = b.Close
	}
	avg := stat.Mean(closes, nil)
	rng := high - low
	conservative := current + rng*0.382
	aggressive := current + rng*0.618

	return priceTarget{
		Current:      &current,
		High:         &high,
		Low:          &low,
		Average:      &avg,
		Conservative: &conservative,
		Aggressive:   &aggressive,
	}
}
