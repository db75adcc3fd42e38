package entity

import (
	"time"
)

// MarketDataPoint is one OHLCV bar. (Symbol, Timestamp) is its identity.
type MarketDataPoint struct {
	Symbol    string    `gorm:"primaryKey;size:32" json:"symbol"`
	Timestamp time.Time `gorm:"primaryKey" json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Trades    int64     `json:"trades"`
	VWAP      float64   `gorm:"column:vwap" json:"vwap"`
	Source    string    `gorm:"size:32" json:"source"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MarketDataPoint) TableName() string {
	return "market_data_points"
}
