package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"FinBars/internal/domain/models"
	domrepo "FinBars/internal/domain/repository"
	xlogger "FinBars/pkg/logger"

	_ "modernc.org/sqlite"
)

// SQLiteSeriesStore persists merged series to a local SQLite file. The
// namespaced columns are stored as a JSON object per row.
type SQLiteSeriesStore struct {
	db  *sql.DB
	mu  sync.Mutex
	log *xlogger.Logger
}

// NewSQLiteSeriesStore opens (or creates) the database at path. Use
// ":memory:" for a throwaway store.
func NewSQLiteSeriesStore(path string, log *xlogger.Logger) (*SQLiteSeriesStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; also keeps a :memory: database on a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	log.Info("sqlite series store opened", xlogger.String("path", path))
	return &SQLiteSeriesStore{db: db, log: log}, nil
}

var _ domrepo.SeriesStore = (*SQLiteSeriesStore)(nil)

func (s *SQLiteSeriesStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS merged_candles (
			symbol    TEXT    NOT NULL,
			ts        INTEGER NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			volume    REAL    NOT NULL,
			resampled TEXT    NOT NULL DEFAULT '{}',
			run_at    INTEGER NOT NULL,
			PRIMARY KEY (symbol, ts)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_merged_ts ON merged_candles(ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// SaveMerged upserts every row of the series in one transaction.
func (s *SQLiteSeriesStore) SaveMerged(ctx context.Context, symbol string, series models.MergedSeries) error {
	if series.Len() == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO merged_candles
		(symbol, ts, open, high, low, close, volume, resampled, run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, ts) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume,
			resampled = excluded.resampled, run_at = excluded.run_at`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	runAt := time.Now().UnixMilli()
	for _, r := range series.Rows {
		values := r.Resampled
		if values == nil {
			values = map[string]float64{}
		}
		blob, err := json.Marshal(values)
		if err != nil {
			return fmt.Errorf("encode resampled: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, symbol, r.Date.UnixMilli(), r.Open, r.High, r.Low, r.Close, r.Volume, string(blob), runAt); err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteSeriesStore) GetMerged(ctx context.Context, symbol string, from, to time.Time) (models.MergedSeries, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ts, open, high, low, close, volume, resampled
		FROM merged_candles
		WHERE symbol = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC`, symbol, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return models.MergedSeries{}, fmt.Errorf("query merged: %w", err)
	}
	defer rows.Close()

	var out []models.MergedCandle
	for rows.Next() {
		var (
			r    models.MergedCandle
			ts   int64
			blob string
		)
		if err := rows.Scan(&ts, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume, &blob); err != nil {
			return models.MergedSeries{}, fmt.Errorf("scan merged: %w", err)
		}
		r.Date = time.UnixMilli(ts).UTC()
		if err := json.Unmarshal([]byte(blob), &r.Resampled); err != nil {
			return models.MergedSeries{}, fmt.Errorf("decode resampled: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return models.MergedSeries{}, fmt.Errorf("rows: %w", err)
	}
	return assembleMerged(out), nil
}

func (s *SQLiteSeriesStore) Close() error {
	return s.db.Close()
}
