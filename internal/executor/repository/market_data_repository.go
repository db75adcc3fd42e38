package repository

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"golang-market-insight/internal/entity"
	"golang-market-insight/pkg/common"
)

type marketDataRepository struct {
	db *gorm.DB
}

// NewMarketDataRepository creates the Postgres-backed time-series store.
func NewMarketDataRepository(db *gorm.DB) MarketDataRepository {
	return &marketDataRepository{db: db}
}

func (r *marketDataRepository) Upsert(ctx context.Context, points []entity.MarketDataPoint) error {
	points = DedupePoints(points)
	if len(points) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "timestamp"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume", "trades", "vwap", "source", "updated_at"}),
		}).
		CreateInBatches(points, common.UpsertBatchSize).Error
}

func (r *marketDataRepository) QueryRange(ctx context.Context, symbol string, start, end time.Time) ([]entity.MarketDataPoint, error) {
	var points []entity.MarketDataPoint
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND timestamp >= ? AND timestamp < ?", symbol, start, end).
		Order("timestamp ASC").
		Find(&points).Error
	return points, err
}

func (r *marketDataRepository) LatestPeriod(ctx context.Context, symbol string) (*time.Time, error) {
	var latest sql.NullTime
	err := r.db.WithContext(ctx).
		Model(&entity.MarketDataPoint{}).
		Select("MAX(timestamp)").
		Where("symbol = ?", symbol).
		Scan(&latest).Error
	if err != nil {
		return nil, err
	}
	if !latest.Valid {
		return nil, nil
	}
	t := latest.Time.UTC()
	return &t, nil
}
