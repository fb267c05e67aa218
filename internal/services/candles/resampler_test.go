package candles

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinBars/internal/domain/models"
)

func TestResample_InvalidInterval(t *testing.T) {
	base := minuteSeries(rangeMinutes(0, 10)...)

	testCases := []struct {
		name     string
		series   models.Series
		interval int
	}{
		{name: "zero", series: base, interval: 0},
		{name: "negative", series: base, interval: -15},
		{name: "equal to base spacing", series: base, interval: 1},
		{name: "finer than base spacing", series: minuteSeries(0, 5, 10), interval: 2},
		{name: "not a multiple of base spacing", series: minuteSeries(0, 5, 10), interval: 12},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Resample(tc.series, tc.interval)
			require.ErrorIs(t, err, ErrInvalidInterval)
		})
	}
}

func TestResample_Empty(t *testing.T) {
	_, err := Resample(nil, 5)
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestResample_Aggregates(t *testing.T) {
	base := minuteSeries(rangeMinutes(0, 10)...)

	got, err := Resample(base, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.True(t, first.Date.Equal(at(0)))
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 106.0, first.High)
	assert.Equal(t, 99.0, first.Low)
	assert.Equal(t, 105.0, first.Close)
	assert.Equal(t, 10.0+11+12+13+14, first.Volume)

	second := got[1]
	assert.True(t, second.Date.Equal(at(5)))
	assert.Equal(t, 105.0, second.Open)
	assert.Equal(t, 110.0, second.Close)
	assert.Equal(t, 15.0+16+17+18+19, second.Volume)

	// input untouched
	assert.True(t, base[5].Date.Equal(at(5)))
}

func TestResample_EpochAnchored(t *testing.T) {
	// 10:07 .. 10:20 with a 60m interval lands in the 10:00 bucket
	got, err := Resample(minuteSeries(rangeMinutes(7, 21)...), 60)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Date.Equal(t0))
	assert.Equal(t, time.UTC, got[0].Date.Location())

	// 15m buckets do not depend on where the series starts
	got, err = Resample(minuteSeries(rangeMinutes(7, 40)...), 15)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].Date.Equal(at(0)))
	assert.True(t, got[1].Date.Equal(at(15)))
	assert.True(t, got[2].Date.Equal(at(30)))
}

func TestResample_PreservesGaps(t *testing.T) {
	offsets := append(rangeMinutes(0, 5), rangeMinutes(10, 15)...)
	got, err := Resample(minuteSeries(offsets...), 5)
	require.NoError(t, err)
	require.Len(t, got, 2)

	for _, c := range got {
		assert.False(t, c.Date.Equal(at(5)), "empty bucket must be absent")
	}
	assert.True(t, got[1].Date.Equal(at(10)))
}

func TestResample_VolumeAdditivity(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	for round := 0; round < 10; round++ {
		base := randomSeries(r, 300)
		for _, iv := range []int{5, 15, 60} {
			got, err := Resample(base, iv)
			require.NoError(t, err)

			width := time.Duration(iv) * time.Minute
			for _, bucket := range got {
				end := bucket.Date.Add(width)
				var want float64
				for _, c := range base {
					if !c.Date.Before(bucket.Date) && c.Date.Before(end) {
						want += c.Volume
					}
				}
				assert.InDelta(t, want, bucket.Volume, 1e-9, "round %d interval %d bucket %s", round, iv, bucket.Date)
			}
		}
	}
}

func TestResample_PreEpochBuckets(t *testing.T) {
	start := time.Date(1969, 12, 31, 23, 50, 0, 0, time.UTC)
	var s models.Series
	for i := 0; i < 20; i++ {
		s = append(s, models.Candle{Date: start.Add(time.Duration(i) * time.Minute), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1})
	}
	got, err := Resample(s, 15)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Date.Equal(time.Date(1969, 12, 31, 23, 45, 0, 0, time.UTC)))
	assert.Equal(t, 10.0, got[0].Volume)
	assert.True(t, got[1].Date.Equal(time.Unix(0, 0)))
	assert.Equal(t, 10.0, got[1].Volume)
}
