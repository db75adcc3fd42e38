package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"golang-market-insight/internal/entity"
)

// NewInsightRepository creates a new GORM-based insight repository.
func NewInsightRepository(db *gorm.DB) InsightRepository {
	return &insightRepository{db: db}
}

type insightRepository struct {
	db *gorm.DB
}

// Create appends an insight. Insights are never updated in place.
func (r *insightRepository) Create(ctx context.Context, insight *entity.Insight) error {
	return r.db.WithContext(ctx).Create(insight).Error
}

// FindCurrentByRange returns the newest insight of each period in [from, to).
func (r *insightRepository) FindCurrentByRange(ctx context.Context, symbol string, from, to time.Time) ([]entity.Insight, error) {
	var insights []entity.Insight
	err := r.db.WithContext(ctx).Raw(`
		SELECT DISTINCT ON (period_start) *
		FROM insights
		WHERE symbol = ? AND period_start >= ? AND period_start < ?
		ORDER BY period_start ASC, id DESC`, symbol, from, to).
		Scan(&insights).Error
	return insights, err
}
