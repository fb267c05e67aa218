package candles

import (
	"fmt"
	"time"

	"FinBars/internal/domain/models"
)

// Resample aggregates a base series into fixed-width buckets of
// intervalMinutes, anchored at the Unix epoch so a 60 minute interval always
// starts on the hour. Each non-empty bucket yields one row dated at the
// bucket start (open=first, high=max, low=min, close=last, volume=sum).
// Empty buckets are omitted, not zero-filled.
func Resample(s models.Series, intervalMinutes int) (models.Series, error) {
	if intervalMinutes <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive, got %d", ErrInvalidInterval, intervalMinutes)
	}
	if len(s) == 0 {
		return nil, fmt.Errorf("%w: no candles to resample", ErrEmptyInput)
	}

	width := time.Duration(intervalMinutes) * time.Minute
	if spacing, ok := InferInterval(s); ok {
		if width <= spacing {
			return nil, fmt.Errorf("%w: %dm is not coarser than base spacing %s", ErrInvalidInterval, intervalMinutes, spacing)
		}
		if width%spacing != 0 {
			return nil, fmt.Errorf("%w: %dm is not a multiple of base spacing %s", ErrInvalidInterval, intervalMinutes, spacing)
		}
	}

	out := make(models.Series, 0, len(s)/2+1)
	cur := bucketIndex(s[0].Date, width)
	agg := s[0]
	agg.Date = bucketTime(cur, width)

	for _, c := range s[1:] {
		idx := bucketIndex(c.Date, width)
		if idx != cur {
			out = append(out, agg)
			cur = idx
			agg = c
			agg.Date = bucketTime(cur, width)
			continue
		}
		if c.High > agg.High {
			agg.High = c.High
		}
		if c.Low < agg.Low {
			agg.Low = c.Low
		}
		agg.Close = c.Close
		agg.Volume += c.Volume
	}
	out = append(out, agg)
	return out, nil
}
