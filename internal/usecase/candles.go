package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"FinBars/internal/domain/models"
	domrepo "FinBars/internal/domain/repository"
	"FinBars/internal/service/cache"
	"FinBars/internal/services/candles"
	xlogger "FinBars/pkg/logger"
)

// CandlesUseCase serves merged series to the API, either computed on demand
// through the pipeline (cached) or read back from the series store.
type CandlesUseCase struct {
	pipeline *Pipeline
	store    domrepo.SeriesStore
	cache    cache.BytesCache
	ttl      time.Duration
	log      *xlogger.Logger
}

func NewCandlesUseCase(pipeline *Pipeline, store domrepo.SeriesStore, c cache.BytesCache, ttl time.Duration, log *xlogger.Logger) *CandlesUseCase {
	return &CandlesUseCase{pipeline: pipeline, store: store, cache: c, ttl: ttl, log: log}
}

type GetMergedParams struct {
	Symbol        string
	From          time.Time
	To            time.Time
	Intervals     []int
	Interpolation candles.Interpolation
}

type GetMergedResult struct {
	Symbol    string                   `json:"symbol"`
	From      time.Time                `json:"from"`
	To        time.Time                `json:"to"`
	Intervals []int                    `json:"intervals,omitempty"`
	Columns   []string                 `json:"columns"`
	Count     int                      `json:"count"`
	Rows      []map[string]interface{} `json:"rows"`
	Cached    bool                     `json:"cached"`
}

func newMergedResult(symbol string, from, to time.Time, intervals []int, s models.MergedSeries) *GetMergedResult {
	return &GetMergedResult{
		Symbol:    symbol,
		From:      from,
		To:        to,
		Intervals: intervals,
		Columns:   s.Columns,
		Count:     s.Len(),
		Rows:      s.Records(),
	}
}

func (p GetMergedParams) cacheKey() string {
	ivs := make([]string, len(p.Intervals))
	for i, iv := range p.Intervals {
		ivs[i] = strconv.Itoa(iv)
	}
	return fmt.Sprintf("merged:%s:%d:%d:%s:%s",
		p.Symbol, p.From.Unix(), p.To.Unix(), strings.Join(ivs, ","), p.Interpolation)
}

// GetMerged runs the pipeline for one symbol without persisting. Results
// are cached for the configured TTL; cache failures only log.
func (uc *CandlesUseCase) GetMerged(ctx context.Context, p GetMergedParams) (*GetMergedResult, error) {
	key := p.cacheKey()
	var cached GetMergedResult
	if ok, err := cache.GetJSON(ctx, uc.cache, key, &cached); err != nil {
		uc.log.Warn("candles cache read failed", xlogger.String("key", key), xlogger.Error(err))
	} else if ok {
		cached.Cached = true
		return &cached, nil
	}

	res, err := uc.pipeline.Run(ctx, RunParams{
		Symbol:        p.Symbol,
		From:          p.From,
		To:            p.To,
		Intervals:     p.Intervals,
		Interpolation: p.Interpolation,
	})
	if err != nil {
		return nil, err
	}

	out := newMergedResult(p.Symbol, p.From, p.To, p.Intervals, res.Series)
	if err := cache.SetJSON(ctx, uc.cache, key, out, uc.ttl); err != nil {
		uc.log.Warn("candles cache write failed", xlogger.String("key", key), xlogger.Error(err))
	}
	return out, nil
}

// GetStored reads a previously persisted merged series.
func (uc *CandlesUseCase) GetStored(ctx context.Context, symbol string, from, to time.Time) (*GetMergedResult, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: from must be before to", candles.ErrEmptyInput)
	}
	s, err := uc.store.GetMerged(ctx, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("get stored %s: %w", symbol, err)
	}
	return newMergedResult(symbol, from, to, nil, s), nil
}
