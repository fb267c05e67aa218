package candles

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"FinBars/internal/domain/models"
)

// Interpolation selects how a coarse value is projected onto base timestamps.
type Interpolation int

const (
	// InterpolateNearest takes the temporally closest resampled row; ties go
	// to the earlier row.
	InterpolateNearest Interpolation = iota
	// InterpolatePrevious takes the latest resampled row starting at or before
	// the base timestamp (as-of, no look-ahead).
	InterpolatePrevious
)

func (i Interpolation) String() string {
	switch i {
	case InterpolateNearest:
		return "nearest"
	case InterpolatePrevious:
		return "previous"
	default:
		return fmt.Sprintf("interpolation(%d)", int(i))
	}
}

// ParseInterpolation parses "nearest" or "previous"; empty means nearest.
func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nearest":
		return InterpolateNearest, nil
	case "previous", "asof", "ffill":
		return InterpolatePrevious, nil
	default:
		return 0, fmt.Errorf("unknown interpolation %q", s)
	}
}

// MergeOption configures Merge and MergeInto.
type MergeOption func(*mergeConfig)

type mergeConfig struct {
	interp            Interpolation
	resampledInterval time.Duration
}

// WithInterpolation sets the projection mode (default nearest).
func WithInterpolation(i Interpolation) MergeOption {
	return func(c *mergeConfig) {
		c.interp = i
	}
}

// WithResampledInterval uses a known resampled interval instead of inferring
// it; a single-row resampled series needs this.
func WithResampledInterval(minutes int) MergeOption {
	return func(c *mergeConfig) {
		if minutes > 0 {
			c.resampledInterval = time.Duration(minutes) * time.Minute
		}
	}
}

// Merge realigns a resampled series onto the base timeline. The result keeps
// every base row in order and adds resample_{interval}_{open,high,low,close}.
func Merge(base, resampled models.Series, opts ...MergeOption) (models.MergedSeries, error) {
	return MergeInto(models.NewMergedSeries(base), resampled, opts...)
}

// MergeInto realigns another resampled series onto an already merged one.
// The input is not modified.
func MergeInto(merged models.MergedSeries, resampled models.Series, opts ...MergeOption) (models.MergedSeries, error) {
	cfg := &mergeConfig{interp: InterpolateNearest}
	for _, opt := range opts {
		opt(cfg)
	}

	if merged.Len() == 0 {
		return models.MergedSeries{}, fmt.Errorf("%w: base series is empty", ErrEmptyInput)
	}
	if len(resampled) == 0 {
		return models.MergedSeries{}, fmt.Errorf("%w: resampled series is empty", ErrEmptyInput)
	}

	base := merged.Base()
	baseIv, ok := InferInterval(base)
	if !ok {
		return models.MergedSeries{}, fmt.Errorf("%w: cannot infer base interval from %d rows", ErrIncompatibleSeries, len(base))
	}
	rsIv := cfg.resampledInterval
	if rsIv == 0 {
		if rsIv, ok = InferInterval(resampled); !ok {
			return models.MergedSeries{}, fmt.Errorf("%w: cannot infer resampled interval from %d rows", ErrIncompatibleSeries, len(resampled))
		}
	}
	if rsIv <= baseIv {
		return models.MergedSeries{}, fmt.Errorf("%w: resampled interval %s is not coarser than base interval %s (arguments swapped?)",
			ErrIncompatibleSeries, rsIv, baseIv)
	}
	if rsIv%time.Minute != 0 {
		return models.MergedSeries{}, fmt.Errorf("%w: resampled interval %s is not a whole number of minutes", ErrIncompatibleSeries, rsIv)
	}
	minutes := int(rsIv / time.Minute)

	var cols [len(resampledFields)]string
	for i, f := range resampledFields {
		cols[i] = ColumnName(minutes, f)
		if merged.HasColumn(cols[i]) {
			return models.MergedSeries{}, fmt.Errorf("%w: column %s already merged", ErrIncompatibleSeries, cols[i])
		}
	}

	g := grid{
		dates:  resampled.Dates(),
		step:   baseIv,
		span:   rsIv,
		interp: cfg.interp,
	}

	out := models.MergedSeries{
		Columns: append(append(make([]string, 0, len(merged.Columns)+len(cols)), merged.Columns...), cols[:]...),
		Rows:    make([]models.MergedCandle, len(merged.Rows)),
	}
	for i, row := range merged.Rows {
		ext := make(map[string]float64, len(row.Resampled)+len(cols))
		for k, v := range row.Resampled {
			ext[k] = v
		}
		if j, ok := g.lookup(row.Date); ok {
			r := resampled[j]
			ext[cols[0]] = r.Open
			ext[cols[1]] = r.High
			ext[cols[2]] = r.Low
			ext[cols[3]] = r.Close
		}
		out.Rows[i] = models.MergedCandle{Candle: row.Candle, Resampled: ext}
	}
	return out, nil
}

// grid is the resampled series re-expanded at the base spacing. Points are
// start, start+step, ... up to the last resampled date (nearest) or the end of
// the last bucket (previous). Lookups are resolved per base row, which is the
// same as materialising the grid and hash-joining on date.
type grid struct {
	dates  []time.Time
	step   time.Duration
	span   time.Duration
	interp Interpolation
}

// lookup returns the resampled row index for base timestamp t, or false when t
// is not a grid point.
func (g grid) lookup(t time.Time) (int, bool) {
	n := len(g.dates)
	first := g.dates[0]
	if t.Before(first) {
		return 0, false
	}
	if t.Sub(first)%g.step != 0 {
		return 0, false
	}

	switch g.interp {
	case InterpolatePrevious:
		if !t.Before(g.dates[n-1].Add(g.span)) {
			return 0, false
		}
		i := sort.Search(n, func(i int) bool { return g.dates[i].After(t) })
		return i - 1, true
	default:
		if t.After(g.dates[n-1]) {
			return 0, false
		}
		i := sort.Search(n, func(i int) bool { return !g.dates[i].Before(t) })
		if i == n {
			return n - 1, true
		}
		if i == 0 || g.dates[i].Equal(t) {
			return i, true
		}
		if t.Sub(g.dates[i-1]) <= g.dates[i].Sub(t) {
			return i - 1, true
		}
		return i, true
	}
}
