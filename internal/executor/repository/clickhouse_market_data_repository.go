package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang-market-insight/internal/entity"
	pkgch "golang-market-insight/pkg/clickhouse"
	"golang-market-insight/pkg/common"
	"golang-market-insight/pkg/logger"
)

// ClickHouseSchema creates the bar table. ReplacingMergeTree keeps the row with
// the newest updated_at per (symbol, timestamp), which gives last-write-wins.
var ClickHouseSchema = []string{
	`CREATE TABLE IF NOT EXISTS market_data_points (
		symbol     LowCardinality(String),
		timestamp  DateTime64(3, 'UTC'),
		open       Float64,
		high       Float64,
		low        Float64,
		close      Float64,
		volume     Float64,
		trades     Int64,
		vwap       Float64,
		source     LowCardinality(String),
		updated_at DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY (symbol, timestamp)`,
}

type clickHouseMarketDataRepository struct {
	db  *sql.DB
	log *logger.Logger
}

func NewClickHouseMarketDataRepository(ch *pkgch.Client, log *logger.Logger) MarketDataRepository {
	return &clickHouseMarketDataRepository{db: ch.DB(), log: log}
}

func (r *clickHouseMarketDataRepository) Upsert(ctx context.Context, points []entity.MarketDataPoint) error {
	points = DedupePoints(points)
	now := time.Now().UTC()

	for start := 0; start < len(points); start += common.UpsertBatchSize {
		end := min(start+common.UpsertBatchSize, len(points))
		if err := r.insertBatch(ctx, points[start:end], now); err != nil {
			r.log.ErrorContext(ctx, "Failed to insert market data batch",
				logger.ErrorField(err),
				logger.IntField("batch_size", end-start))
			return err
		}
	}
	return nil
}

func (r *clickHouseMarketDataRepository) insertBatch(ctx context.Context, points []entity.MarketDataPoint, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO market_data_points
		(symbol, timestamp, open, high, low, close, volume, trades, vwap, source, updated_at)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, p.Symbol, p.Timestamp.UTC(), p.Open, p.High, p.Low, p.Close,
			p.Volume, p.Trades, p.VWAP, p.Source, now); err != nil {
			return fmt.Errorf("append row: %w", err)
		}
	}
	return tx.Commit()
}

func (r *clickHouseMarketDataRepository) QueryRange(ctx context.Context, symbol string, start, end time.Time) ([]entity.MarketDataPoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, timestamp, open, high, low, close, volume, trades, vwap, source, updated_at
		FROM market_data_points FINAL
		WHERE symbol = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC`, symbol, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query range: %w", err)
	}
	defer rows.Close()

	var points []entity.MarketDataPoint
	for rows.Next() {
		var p entity.MarketDataPoint
		if err := rows.Scan(&p.Symbol, &p.Timestamp, &p.Open, &p.High, &p.Low, &p.Close,
			&p.Volume, &p.Trades, &p.VWAP, &p.Source, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		p.Timestamp = p.Timestamp.UTC()
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r *clickHouseMarketDataRepository) LatestPeriod(ctx context.Context, symbol string) (*time.Time, error) {
	var (
		latest time.Time
		count  uint64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT max(timestamp), count() FROM market_data_points FINAL WHERE symbol = ?`, symbol).
		Scan(&latest, &count)
	if err != nil {
		return nil, fmt.Errorf("latest period: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	latest = latest.UTC()
	return &latest, nil
}
