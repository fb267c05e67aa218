package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"FinBars/internal/domain/models"
	domrepo "FinBars/internal/domain/repository"
	xlogger "FinBars/pkg/logger"
)

// BatchSink receives flushed tick batches.
type BatchSink interface {
	PublishBatch(ctx context.Context, ticks []models.SymbolTick) error
}

// TickBatcher sits between the live stream and the tick topic. It validates
// and throttles ticks, then flushes them in batches. Failed batches are kept
// for the next flush while they fit under the pending cap.
type TickBatcher struct {
	sink    BatchSink
	metrics domrepo.Metrics
	log     *xlogger.Logger

	batchSize  int
	flushEvery time.Duration
	maxPending int
	maxRPS     int

	mu       sync.Mutex
	pending  []models.SymbolTick
	lastSeen map[string]time.Time
	flushCh  chan struct{}
	backoff  time.Duration
}

type BatcherOption func(*TickBatcher)

// WithBatchSize flushes as soon as n ticks are pending.
func WithBatchSize(n int) BatcherOption {
	return func(b *TickBatcher) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithFlushInterval flushes whatever is pending every d.
func WithFlushInterval(d time.Duration) BatcherOption {
	return func(b *TickBatcher) {
		if d > 0 {
			b.flushEvery = d
		}
	}
}

// WithMaxPending caps ticks held while the sink is failing.
func WithMaxPending(n int) BatcherOption {
	return func(b *TickBatcher) {
		if n > 0 {
			b.maxPending = n
		}
	}
}

// WithMaxRPS sets the max ticks per second per symbol; 0 disables throttling.
func WithMaxRPS(n int) BatcherOption {
	return func(b *TickBatcher) {
		if n >= 0 {
			b.maxRPS = n
		}
	}
}

func NewTickBatcher(sink BatchSink, metrics domrepo.Metrics, log *xlogger.Logger, opts ...BatcherOption) *TickBatcher {
	b := &TickBatcher{
		sink:       sink,
		metrics:    metrics,
		log:        log,
		batchSize:  500,
		flushEvery: time.Second,
		maxPending: 50_000,
		lastSeen:   make(map[string]time.Time),
		flushCh:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var (
	errSymbolEmpty    = errors.New("symbol empty")
	errTimestamp      = errors.New("timestamp invalid")
	errNegativeValues = errors.New("negative price/volume")
)

func validateTick(t models.SymbolTick) error {
	if t.Symbol == "" {
		return errSymbolEmpty
	}
	if t.TimestampMs <= 0 {
		return errTimestamp
	}
	if t.Close < 0 || t.Volume < 0 {
		return errNegativeValues
	}
	return nil
}

// Add queues a tick. Invalid ticks are rejected; throttled ticks are dropped
// silently.
func (b *TickBatcher) Add(t models.SymbolTick) error {
	if err := validateTick(t); err != nil {
		b.metrics.RecordError("batcher_validate")
		return err
	}
	b.mu.Lock()
	if !b.allow(t.Symbol, time.Now()) {
		b.mu.Unlock()
		b.metrics.RecordError("batcher_throttle")
		return nil
	}
	b.pending = append(b.pending, t)
	full := len(b.pending) >= b.batchSize
	b.mu.Unlock()

	b.metrics.RecordLastPrice(t.Symbol, t.Close)
	if full {
		select {
		case b.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Pending reports the number of queued ticks.
func (b *TickBatcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Run flushes on size or interval until ctx ends, then makes a final
// best-effort flush.
func (b *TickBatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := b.Flush(final); err != nil {
				b.log.Warn("final tick flush failed", xlogger.Int("pending", b.Pending()), xlogger.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
		case <-b.flushCh:
		}
		if err := b.Flush(ctx); err != nil {
			b.log.Warn("tick flush failed", xlogger.Int("pending", b.Pending()), xlogger.Error(err))
			b.sleepBackoff(ctx)
		}
	}
}

// Flush sends all pending ticks. On failure they are put back in front of
// anything queued meanwhile, dropping the oldest past the pending cap.
func (b *TickBatcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	err := b.sink.PublishBatch(ctx, batch)
	if err == nil {
		b.backoff = 0
		b.metrics.RecordLatency("tick_flush", time.Since(start).Seconds())
		for _, t := range batch {
			b.metrics.RecordMessageSent("kafka", t.Symbol)
		}
		return nil
	}

	b.metrics.RecordError("batcher_flush")
	b.mu.Lock()
	merged := append(batch, b.pending...)
	if over := len(merged) - b.maxPending; over > 0 {
		merged = merged[over:]
		b.metrics.RecordError("batcher_drop")
		b.log.Warn("tick buffer full, dropping oldest", xlogger.Int("dropped", over))
	}
	b.pending = merged
	b.mu.Unlock()
	return err
}

func (b *TickBatcher) sleepBackoff(ctx context.Context) {
	switch {
	case b.backoff == 0:
		b.backoff = 50 * time.Millisecond
	case b.backoff < 2*time.Second:
		b.backoff *= 2
	}
	select {
	case <-ctx.Done():
	case <-time.After(b.backoff):
	}
}

// allow must be called with mu held.
func (b *TickBatcher) allow(symbol string, now time.Time) bool {
	if b.maxRPS <= 0 {
		return true
	}
	last := b.lastSeen[symbol]
	if !last.IsZero() && now.Sub(last) < time.Second/time.Duration(b.maxRPS) {
		return false
	}
	b.lastSeen[symbol] = now
	return true
}
