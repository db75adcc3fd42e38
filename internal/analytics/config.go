package analytics

// Config sets the window of every indicator, in daily bars.
type Config struct {
	SMAWindows       []int   `mapstructure:"sma_windows" default:"[5,20,50,100,200]" validate:"dive,gt=0"`
	EMAWindows       []int   `mapstructure:"ema_windows" default:"[12,26]" validate:"dive,gt=0"`
	RSIPeriod        int     `mapstructure:"rsi_period" default:"14" validate:"gt=0"`
	MACDFast         int     `mapstructure:"macd_fast" default:"12" validate:"gt=0"`
	MACDSlow         int     `mapstructure:"macd_slow" default:"26" validate:"gtfield=MACDFast"`
	MACDSignal       int     `mapstructure:"macd_signal" default:"9" validate:"gt=0"`
	MomentumPeriod   int     `mapstructure:"momentum_period" default:"10" validate:"gt=0"`
	VolatilityWindow int     `mapstructure:"volatility_window" default:"20" validate:"gt=1"`
	VolumeTrendDays  int     `mapstructure:"volume_trend_days" default:"5" validate:"gt=0"`
	PriceTargetDays  int     `mapstructure:"price_target_days" default:"30" validate:"gt=0"`
	VolumeThreshold  float64 `mapstructure:"volume_threshold" default:"20"`
	RSIOverbought    float64 `mapstructure:"rsi_overbought" default:"70"`
	RSIOversold      float64 `mapstructure:"rsi_oversold" default:"30"`
	CalendarFactor   float64 `mapstructure:"calendar_factor" default:"1.5" validate:"gte=1"`
}

// DefaultConfig mirrors the `default` tags for callers that build a Config by hand.
func DefaultConfig() Config {
	return Config{
		SMAWindows:       []int{5, 20, 50, 100, 200},
		EMAWindows:       []int{12, 26},
		RSIPeriod:        14,
		MACDFast:         12,
		MACDSlow:         26,
		MACDSignal:       9,
		MomentumPeriod:   10,
		VolatilityWindow: 20,
		VolumeTrendDays:  5,
		PriceTargetDays:  30,
		VolumeThreshold:  20,
		RSIOverbought:    70,
		RSIOversold:      30,
		CalendarFactor:   1.5,
	}
}

// RequiredBars is the longest window any configured indicator needs.
func (c Config) RequiredBars() int {
	need := c.RSIPeriod + 1
	for _, w := range c.SMAWindows {
		need = max(need, w)
	}
	for _, w := range c.EMAWindows {
		need = max(need, w)
	}
	need = max(need, c.MACDSlow+c.MACDSignal-1)
	need = max(need, c.MomentumPeriod+1)
	need = max(need, c.VolatilityWindow+1)
	need = max(need, c.VolumeTrendDays+1)
	need = max(need, c.PriceTargetDays)
	return need
}
