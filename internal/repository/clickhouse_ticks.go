package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FinBars/internal/domain/models"
	domrepo "FinBars/internal/domain/repository"
	pkgch "FinBars/pkg/clickhouse"
	xlogger "FinBars/pkg/logger"
)

const ticksTable = "ticks"

// TickSchema creates the raw tick table.
func TickSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			ts     DateTime64(3, 'UTC'),
			symbol LowCardinality(String),
			open   Float64,
			high   Float64,
			low    Float64,
			close  Float64,
			volume Float64,
			source LowCardinality(String)
		) ENGINE = MergeTree
		PARTITION BY toYYYYMM(ts)
		ORDER BY (symbol, ts)`, database, ticksTable),
	}
}

// ClickHouseTickStorage writes live ticks into ClickHouse.
type ClickHouseTickStorage struct {
	ch       *pkgch.Client
	database string
	source   string
}

// NewClickHouseTickStorage creates the tick writer.
func NewClickHouseTickStorage(ch *pkgch.Client, database, source string) *ClickHouseTickStorage {
	return &ClickHouseTickStorage{ch: ch, database: database, source: source}
}

var _ domrepo.TickStorage = (*ClickHouseTickStorage)(nil)

func (s *ClickHouseTickStorage) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, TickSchema(s.database))
}

func (s *ClickHouseTickStorage) StoreBatch(ctx context.Context, ticks []models.SymbolTick) error {
	const chunkSize = 2000
	for start := 0; start < len(ticks); start += chunkSize {
		end := min(start+chunkSize, len(ticks))
		q, args := buildTickInsert(s.database, s.source, ticks[start:end])
		if q == "" {
			continue
		}
		if _, err := s.ch.DB().ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert ticks: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseTickStorage) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

// Close is a no-op; the pool belongs to the clickhouse client.
func (s *ClickHouseTickStorage) Close() error { return nil }

// buildTickInsert renders a multi-row insert; ticks without symbol or
// timestamp are skipped.
func buildTickInsert(database, source string, ticks []models.SymbolTick) (string, []interface{}) {
	values := make([]string, 0, len(ticks))
	args := make([]interface{}, 0, len(ticks)*8)
	for _, t := range ticks {
		if t.Symbol == "" || t.TimestampMs == 0 {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, t.Time(), t.Symbol, t.Open, t.High, t.Low, t.Close, t.Volume, source)
	}
	if len(values) == 0 {
		return "", nil
	}
	q := fmt.Sprintf("INSERT INTO %s.%s (ts, symbol, open, high, low, close, volume, source) VALUES %s",
		database, ticksTable, strings.Join(values, ","))
	return q, args
}

// ClickHouseTickSource reads stored trades rolled up to the base timeframe,
// so every returned tick is one base bucket. Each session pins one pooled
// connection until it is closed.
type ClickHouseTickSource struct {
	ch          *pkgch.Client
	database    string
	baseMinutes int
	log         *xlogger.Logger
}

func NewClickHouseTickSource(ch *pkgch.Client, database string, baseMinutes int, log *xlogger.Logger) *ClickHouseTickSource {
	if baseMinutes < 1 {
		baseMinutes = 1
	}
	return &ClickHouseTickSource{ch: ch, database: database, baseMinutes: baseMinutes, log: log}
}

var _ domrepo.TickSource = (*ClickHouseTickSource)(nil)

func (s *ClickHouseTickSource) Name() string { return "clickhouse" }

func (s *ClickHouseTickSource) Open(ctx context.Context) (domrepo.TickSession, error) {
	conn, err := s.ch.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &clickhouseTickSession{conn: conn, query: tickQuery(s.database, s.baseMinutes), log: s.log}, nil
}

// tickQuery aggregates raw trades into base buckets with first/last by time.
func tickQuery(database string, baseMinutes int) string {
	return fmt.Sprintf(`
		SELECT
			toUnixTimestamp64Milli(toDateTime64(toStartOfInterval(ts, INTERVAL %d MINUTE), 3, 'UTC')) AS bucket,
			argMin(open, ts), max(high), min(low), argMax(close, ts), sum(volume)
		FROM %s.%s
		WHERE symbol = ? AND ts >= ? AND ts < ?
		GROUP BY bucket
		ORDER BY bucket ASC`, baseMinutes, database, ticksTable)
}

type clickhouseTickSession struct {
	conn  *sql.Conn
	query string
	log   *xlogger.Logger
}

func (s *clickhouseTickSession) Ticks(ctx context.Context, symbol string, from, to time.Time) ([]models.Tick, error) {
	start := time.Now()
	rows, err := s.conn.QueryContext(ctx, s.query, symbol, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	out := make([]models.Tick, 0, 1024)
	for rows.Next() {
		var t models.Tick
		if err := rows.Scan(&t.TimestampMs, &t.Open, &t.High, &t.Low, &t.Close, &t.Volume); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.log.Debug("clickhouse ticks loaded",
		xlogger.String("symbol", symbol),
		xlogger.Int("rows", len(out)),
		xlogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *clickhouseTickSession) Close() error {
	return s.conn.Close()
}
