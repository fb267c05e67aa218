package candles

import (
	"math/rand"
	"time"

	"FinBars/internal/domain/models"
)

var t0 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func at(minutes int) time.Time { return t0.Add(time.Duration(minutes) * time.Minute) }

// minuteSeries builds a 1m series with one candle per given minute offset.
// Prices follow the offset so aggregation results are easy to predict.
func minuteSeries(offsets ...int) models.Series {
	s := make(models.Series, 0, len(offsets))
	for _, m := range offsets {
		p := float64(100 + m)
		s = append(s, models.Candle{
			Date:   at(m),
			Open:   p,
			High:   p + 2,
			Low:    p - 1,
			Close:  p + 1,
			Volume: float64(10 + m),
		})
	}
	return s
}

func rangeMinutes(from, to int) []int {
	out := make([]int, 0, to-from)
	for m := from; m < to; m++ {
		out = append(out, m)
	}
	return out
}

// randomSeries returns a 1m series over n minutes with roughly 20% of rows missing.
func randomSeries(r *rand.Rand, n int) models.Series {
	offsets := make([]int, 0, n)
	for m := 0; m < n; m++ {
		if r.Float64() < 0.2 {
			continue
		}
		offsets = append(offsets, m)
	}
	s := minuteSeries(offsets...)
	for i := range s {
		s[i].Volume = float64(r.Intn(1000))
		s[i].Close = s[i].Low + r.Float64()*(s[i].High-s[i].Low)
	}
	return s
}

func secondSeries(offsets ...int) models.Series {
	s := make(models.Series, 0, len(offsets))
	for _, sec := range offsets {
		s = append(s, models.Candle{Date: t0.Add(time.Duration(sec) * time.Second), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1})
	}
	return s
}
