package usecase

import (
	"context"
	"sync"

	"FinBars/internal/domain/models"
	drepo "FinBars/internal/domain/repository"
	mid "FinBars/internal/middleware"
	xlogger "FinBars/pkg/logger"
)

// TickCollector reads the live trade stream and forwards ticks to the
// batcher, reconnecting whenever the stream fails.
type TickCollector struct {
	stream  drepo.TradeStream
	batcher *mid.TickBatcher
	metrics drepo.Metrics
	log     *xlogger.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewTickCollector(stream drepo.TradeStream, batcher *mid.TickBatcher, metrics drepo.Metrics, log *xlogger.Logger) *TickCollector {
	return &TickCollector{stream: stream, batcher: batcher, metrics: metrics, log: log}
}

// IsConnected returns true if the trade stream is connected.
func (c *TickCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects, subscribes and runs the read and flush loops in the
// background until Shutdown or ctx cancellation.
func (c *TickCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		_ = c.stream.Close()
		return err
	}
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.batcher.Run(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.consume(ctx)
	}()
	return nil
}

func (c *TickCollector) consume(ctx context.Context) {
	for {
		ticks, errs := c.stream.Read(ctx)
		c.drain(ctx, ticks, errs)
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordError("stream")
		for {
			c.log.Warn("trade stream lost, reconnecting")
			err := c.stream.Reconnect(ctx)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
			c.metrics.RecordError("stream_reconnect")
			c.log.Error("trade stream reconnect failed", xlogger.Error(err))
		}
		c.log.Info("trade stream reconnected")
	}
}

// drain returns once the stream reports an error, closes, or ctx ends.
func (c *TickCollector) drain(ctx context.Context, ticks <-chan models.SymbolTick, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if ok && err != nil {
				c.log.Warn("trade stream error", xlogger.Error(err))
			}
			return
		case t, ok := <-ticks:
			if !ok {
				return
			}
			if err := c.batcher.Add(t); err != nil {
				c.log.Debug("tick rejected", xlogger.String("symbol", t.Symbol), xlogger.Error(err))
			}
		}
	}
}

// Shutdown stops both loops, flushing pending ticks, and closes the stream.
func (c *TickCollector) Shutdown(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return c.stream.Close()
}
