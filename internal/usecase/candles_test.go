package usecase

import (
	"context"
	"testing"
	"time"

	"FinBars/internal/domain/models"
	"FinBars/internal/service/cache"
	"FinBars/internal/services/candles"
	xlogger "FinBars/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandlesUseCase_GetMergedCaches(t *testing.T) {
	src := &fakeSource{ticks: map[string][]models.Tick{"AAPL": minuteTicks(61)}}
	store := newFakeStore()
	p := newTestPipeline(src, store, &fakePublisher{}, newFakeMetrics())
	uc := NewCandlesUseCase(p, store, cache.NewTTLCache(16), time.Minute, xlogger.Nop())

	params := GetMergedParams{Symbol: "AAPL", From: t0, To: t0.Add(time.Hour), Intervals: []int{15}}
	first, err := uc.GetMerged(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 60, first.Count)
	require.Len(t, first.Rows, 60)
	assert.Contains(t, first.Rows[0], "resample_15_close")

	second, err := uc.GetMerged(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Columns, second.Columns)
	assert.Equal(t, first.Count, second.Count)

	opened, _ := src.counts()
	assert.Equal(t, 1, opened, "second call served from cache")
	assert.Empty(t, store.saved, "on-demand runs do not persist")

	params.Interpolation = candles.InterpolatePrevious
	_, err = uc.GetMerged(context.Background(), params)
	require.NoError(t, err)
	opened, _ = src.counts()
	assert.Equal(t, 2, opened, "interpolation is part of the cache key")
}

func TestCandlesUseCase_GetStored(t *testing.T) {
	store := newFakeStore()
	base := models.Series{{Date: t0, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3}}
	store.saved["AAPL"] = models.NewMergedSeries(base)
	uc := NewCandlesUseCase(nil, store, cache.NewTTLCache(0), time.Minute, xlogger.Nop())

	res, err := uc.GetStored(context.Background(), "AAPL", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, 1.5, res.Rows[0]["close"])

	_, err = uc.GetStored(context.Background(), "AAPL", t0, t0)
	require.True(t, candles.IsInputError(err))

	store.err = errBoom
	_, err = uc.GetStored(context.Background(), "AAPL", t0, t0.Add(time.Hour))
	require.ErrorIs(t, err, errBoom)
}
