package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"golang-market-insight/internal/entity"
)

// NewAnalyticsResultRepository creates a new GORM-based analytics result repository.
func NewAnalyticsResultRepository(db *gorm.DB) AnalyticsResultRepository {
	return &analyticsResultRepository{db: db}
}

type analyticsResultRepository struct {
	db *gorm.DB
}

// Replace overwrites whatever result exists for the same symbol and period start.
func (r *analyticsResultRepository) Replace(ctx context.Context, result *entity.AnalyticsResult) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "period_start"}},
			DoUpdates: clause.AssignmentColumns([]string{"period_end", "metrics", "absent_metrics", "score", "data_points", "computed_at", "updated_at"}),
		}).
		Create(result).Error
}

func (r *analyticsResultRepository) FindByRange(ctx context.Context, symbol string, from, to time.Time) ([]entity.AnalyticsResult, error) {
	var results []entity.AnalyticsResult
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND period_start >= ? AND period_start < ?", symbol, from, to).
		Order("period_start ASC").
		Find(&results).Error
	return results, err
}
