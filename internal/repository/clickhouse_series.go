package repository

import (
	"context"
	"fmt"
	"time"

	"FinBars/internal/domain/models"
	domrepo "FinBars/internal/domain/repository"
	pkgch "FinBars/pkg/clickhouse"
	xlogger "FinBars/pkg/logger"
)

const mergedTable = "merged_candles"

// SeriesSchema creates the merged series table. Re-running a symbol over the
// same dates replaces rows on merge.
func SeriesSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			symbol    LowCardinality(String),
			date      DateTime64(3, 'UTC'),
			open      Float64,
			high      Float64,
			low       Float64,
			close     Float64,
			volume    Float64,
			resampled Map(String, Float64),
			run_at    DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree(run_at)
		PARTITION BY toYYYYMM(date)
		ORDER BY (symbol, date)`, database, mergedTable),
	}
}

// ClickHouseSeriesStore keeps merged series in ClickHouse with the namespaced
// columns in a Map.
type ClickHouseSeriesStore struct {
	ch       *pkgch.Client
	database string
	log      *xlogger.Logger
}

func NewClickHouseSeriesStore(ch *pkgch.Client, database string, log *xlogger.Logger) *ClickHouseSeriesStore {
	return &ClickHouseSeriesStore{ch: ch, database: database, log: log}
}

var _ domrepo.SeriesStore = (*ClickHouseSeriesStore)(nil)

func (s *ClickHouseSeriesStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, SeriesSchema(s.database))
}

// SaveMerged writes all rows in one batch.
func (s *ClickHouseSeriesStore) SaveMerged(ctx context.Context, symbol string, series models.MergedSeries) error {
	if series.Len() == 0 {
		return nil
	}
	start := time.Now()
	runAt := start.UTC()

	tx, err := s.ch.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s.%s (symbol, date, open, high, low, close, volume, resampled, run_at)", s.database, mergedTable))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, r := range series.Rows {
		values := r.Resampled
		if values == nil {
			values = map[string]float64{}
		}
		if _, err := stmt.ExecContext(ctx, symbol, r.Date.UTC(), r.Open, r.High, r.Low, r.Close, r.Volume, values, runAt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	s.log.Debug("clickhouse merged series saved",
		xlogger.String("symbol", symbol),
		xlogger.Int("rows", series.Len()),
		xlogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *ClickHouseSeriesStore) GetMerged(ctx context.Context, symbol string, from, to time.Time) (models.MergedSeries, error) {
	q := fmt.Sprintf(`
		SELECT date, open, high, low, close, volume, resampled
		FROM %s.%s FINAL
		WHERE symbol = ? AND date >= ? AND date < ?
		ORDER BY date ASC`, s.database, mergedTable)

	rows, err := s.ch.DB().QueryContext(ctx, q, symbol, from.UTC(), to.UTC())
	if err != nil {
		return models.MergedSeries{}, fmt.Errorf("query merged: %w", err)
	}
	defer rows.Close()

	var out []models.MergedCandle
	for rows.Next() {
		var r models.MergedCandle
		var values map[string]float64
		if err := rows.Scan(&r.Date, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume, &values); err != nil {
			return models.MergedSeries{}, fmt.Errorf("scan merged: %w", err)
		}
		r.Date = r.Date.UTC()
		r.Resampled = values
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return models.MergedSeries{}, fmt.Errorf("rows: %w", err)
	}
	return assembleMerged(out), nil
}

func (s *ClickHouseSeriesStore) Close() error { return nil }
