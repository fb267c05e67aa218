package candles

import (
	"fmt"
	"sort"

	"FinBars/internal/domain/models"
)

// Build normalizes raw ticks into a sorted, deduplicated series of closed
// candles. Ticks sharing a timestamp collapse into one row (open=first,
// high=max, low=min, close=last, volume=max). The chronologically last row is
// treated as the still-forming candle and dropped.
func Build(ticks []models.Tick) (models.Series, error) {
	if len(ticks) == 0 {
		return nil, fmt.Errorf("%w: no ticks", ErrEmptyInput)
	}

	sorted := make([]models.Tick, len(ticks))
	copy(sorted, ticks)
	sort.Slice(sorted, func(i, j int) bool { return tickLess(sorted[i], sorted[j]) })

	out := make(models.Series, 0, len(sorted))
	for i := 0; i < len(sorted); {
		t := sorted[i]
		c := models.Candle{
			Date:   t.Time(),
			Open:   t.Open,
			High:   t.High,
			Low:    t.Low,
			Close:  t.Close,
			Volume: t.Volume,
		}
		j := i + 1
		for ; j < len(sorted) && sorted[j].TimestampMs == t.TimestampMs; j++ {
			d := sorted[j]
			if d.High > c.High {
				c.High = d.High
			}
			if d.Low < c.Low {
				c.Low = d.Low
			}
			c.Close = d.Close
			// duplicates repeat the same window, so volume is not additive here
			if d.Volume > c.Volume {
				c.Volume = d.Volume
			}
		}
		out = append(out, c)
		i = j
	}

	// drop partial candle
	out = out[:len(out)-1]
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: need at least 2 distinct timestamps, got 1", ErrEmptyInput)
	}
	return out, nil
}

// tickLess orders by timestamp and breaks ties on the OHLCV tuple, so the
// result does not depend on the order ticks arrived in.
func tickLess(a, b models.Tick) bool {
	if a.TimestampMs != b.TimestampMs {
		return a.TimestampMs < b.TimestampMs
	}
	if a.Open != b.Open {
		return a.Open < b.Open
	}
	if a.High != b.High {
		return a.High < b.High
	}
	if a.Low != b.Low {
		return a.Low < b.Low
	}
	if a.Close != b.Close {
		return a.Close < b.Close
	}
	return a.Volume < b.Volume
}
