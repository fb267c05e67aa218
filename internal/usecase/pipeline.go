package usecase

import (
	"context"
	"fmt"
	"time"

	"FinBars/internal/domain/models"
	domrepo "FinBars/internal/domain/repository"
	"FinBars/internal/services/candles"
	"FinBars/pkg/config"
	xlogger "FinBars/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// RunParams describes one symbol's pipeline run over [From, To).
type RunParams struct {
	Symbol        string
	From          time.Time
	To            time.Time
	Intervals     []int
	Interpolation candles.Interpolation
	Persist       bool
	Publish       bool
}

// RunResult is the merged series produced for one symbol.
type RunResult struct {
	Symbol   string
	Ticks    int
	Series   models.MergedSeries
	Duration time.Duration
}

// Summary flattens the result for API responses and logs.
func (r *RunResult) Summary() models.RunSummary {
	return models.RunSummary{
		Symbol:     r.Symbol,
		Ticks:      r.Ticks,
		BaseRows:   r.Series.Len(),
		Columns:    r.Series.Columns,
		DurationMs: r.Duration.Milliseconds(),
	}
}

// Pipeline turns raw ticks into a merged multi-interval series: Build, then
// Resample and MergeInto per interval, coarsest last.
type Pipeline struct {
	source    domrepo.TickSource
	store     domrepo.SeriesStore
	publisher domrepo.SeriesPublisher
	metrics   domrepo.Metrics
	log       *xlogger.Logger
	workers   int
}

func NewPipeline(
	source domrepo.TickSource,
	store domrepo.SeriesStore,
	publisher domrepo.SeriesPublisher,
	metrics domrepo.Metrics,
	log *xlogger.Logger,
	workers int,
) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		source:    source,
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		log:       log,
		workers:   workers,
	}
}

// Run processes a single symbol. Stages are sequential; any failure aborts
// the run with no partial output persisted.
func (p *Pipeline) Run(ctx context.Context, params RunParams) (*RunResult, error) {
	start := time.Now()
	if params.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol required", candles.ErrEmptyInput)
	}
	if !params.From.Before(params.To) {
		return nil, fmt.Errorf("%w: from must be before to", candles.ErrEmptyInput)
	}
	if err := config.ValidateIntervals(params.Intervals); err != nil {
		return nil, fmt.Errorf("%w: %v", candles.ErrInvalidInterval, err)
	}
	intervals := config.SortedIntervals(params.Intervals)

	log := p.log.With(
		xlogger.String("symbol", params.Symbol),
		xlogger.String("source", p.source.Name()),
	)

	ticks, err := p.fetch(ctx, params)
	if err != nil {
		p.metrics.RecordError("pipeline_source")
		return nil, err
	}
	p.metrics.RecordRows("ticks", params.Symbol, len(ticks))

	base, err := candles.Build(ticks)
	if err != nil {
		p.metrics.RecordError("pipeline_build")
		return nil, fmt.Errorf("build %s: %w", params.Symbol, err)
	}
	p.metrics.RecordRows("base", params.Symbol, len(base))

	merged := models.NewMergedSeries(base)
	for _, iv := range intervals {
		rs, err := candles.Resample(base, iv)
		if err != nil {
			p.metrics.RecordError("pipeline_resample")
			return nil, fmt.Errorf("resample %s to %dm: %w", params.Symbol, iv, err)
		}
		p.metrics.RecordRows(fmt.Sprintf("resample_%d", iv), params.Symbol, len(rs))

		merged, err = candles.MergeInto(merged, rs,
			candles.WithInterpolation(params.Interpolation),
			candles.WithResampledInterval(iv),
		)
		if err != nil {
			p.metrics.RecordError("pipeline_merge")
			return nil, fmt.Errorf("merge %s %dm: %w", params.Symbol, iv, err)
		}
	}
	p.metrics.RecordRows("merged", params.Symbol, merged.Len())

	if params.Persist {
		if err := p.store.SaveMerged(ctx, params.Symbol, merged); err != nil {
			p.metrics.RecordError("pipeline_persist")
			return nil, fmt.Errorf("persist %s: %w", params.Symbol, err)
		}
	}
	if params.Publish {
		if err := p.publisher.PublishMerged(ctx, params.Symbol, merged); err != nil {
			p.metrics.RecordError("pipeline_publish")
			return nil, fmt.Errorf("publish %s: %w", params.Symbol, err)
		}
		p.metrics.RecordMessageSent("kafka", params.Symbol)
	}

	res := &RunResult{
		Symbol:   params.Symbol,
		Ticks:    len(ticks),
		Series:   merged,
		Duration: time.Since(start),
	}
	if n := len(base); n > 0 {
		p.metrics.RecordLastPrice(params.Symbol, base[n-1].Close)
	}
	p.metrics.RecordLatency("pipeline_run", res.Duration.Seconds())
	log.Info("pipeline run complete",
		xlogger.Int("ticks", res.Ticks),
		xlogger.Int("rows", merged.Len()),
		xlogger.Ints("intervals", intervals),
		xlogger.String("interp", params.Interpolation.String()),
		xlogger.Duration("duration_ms", res.Duration),
	)
	return res, nil
}

// fetch opens a session for this run only and always closes it.
func (p *Pipeline) fetch(ctx context.Context, params RunParams) (ticks []models.Tick, err error) {
	sess, err := p.source.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s session: %w", p.source.Name(), err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s session: %w", p.source.Name(), cerr)
		}
	}()

	ticks, err = sess.Ticks(ctx, params.Symbol, params.From, params.To)
	if err != nil {
		return nil, fmt.Errorf("fetch ticks %s: %w", params.Symbol, err)
	}
	return ticks, nil
}

// RunAll runs every symbol with at most workers runs in flight. A failed
// symbol is reported in its summary and does not cancel the others.
// Summaries keep the order of symbols.
func (p *Pipeline) RunAll(ctx context.Context, symbols []string, tmpl RunParams) []models.RunSummary {
	out := make([]models.RunSummary, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			params := tmpl
			params.Symbol = sym
			start := time.Now()
			res, err := p.Run(gctx, params)
			if err != nil {
				p.log.Error("pipeline run failed", xlogger.String("symbol", sym), xlogger.Error(err))
				out[i] = models.RunSummary{
					Symbol:     sym,
					DurationMs: time.Since(start).Milliseconds(),
					Error:      err.Error(),
				}
				return nil
			}
			out[i] = res.Summary()
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, s := range out {
		if s.Error != "" {
			failed++
		}
	}
	p.log.Info("pipeline batch complete",
		xlogger.Int("symbols", len(symbols)),
		xlogger.Int("failed", failed),
	)
	return out
}
