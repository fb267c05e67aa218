package repository

import (
	"context"
	"time"

	"FinBars/internal/domain/models"
)

// TradeStream is a live feed of trade prints converted to ticks.
type TradeStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.SymbolTick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// TickSource opens scoped sessions against a market-data backend. Every
// session must be closed by the caller once sourcing is done.
type TickSource interface {
	Name() string
	Open(ctx context.Context) (TickSession, error)
}

// TickSession fetches raw ticks for one symbol and range [from, to).
type TickSession interface {
	Ticks(ctx context.Context, symbol string, from, to time.Time) ([]models.Tick, error)
	Close() error
}

type TickPublisher interface {
	Publish(ctx context.Context, t models.SymbolTick) error
	PublishBatch(ctx context.Context, ticks []models.SymbolTick) error
	Close() error
}

type TickStorage interface {
	Init(ctx context.Context) error
	StoreBatch(ctx context.Context, ticks []models.SymbolTick) error
	Health(ctx context.Context) error
	Close() error
}

// SeriesStore persists merged series per symbol.
type SeriesStore interface {
	Init(ctx context.Context) error
	SaveMerged(ctx context.Context, symbol string, series models.MergedSeries) error
	GetMerged(ctx context.Context, symbol string, from, to time.Time) (models.MergedSeries, error)
	Close() error
}

// SeriesPublisher ships a merged series downstream.
type SeriesPublisher interface {
	PublishMerged(ctx context.Context, symbol string, series models.MergedSeries) error
	Close() error
}

type Metrics interface {
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordRows(stage, symbol string, n int)
}
