package candles

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"FinBars/internal/domain/models"
)

// InferInterval returns the grid spacing of a series: the minimum strictly
// positive gap between consecutive dates. Missing rows only widen gaps, so any
// adjacent pair present in the data pins the true spacing. The second result is
// false when the series has no positive gap to measure.
func InferInterval(s models.Series) (time.Duration, bool) {
	var best time.Duration
	for i := 1; i < len(s); i++ {
		gap := s[i].Date.Sub(s[i-1].Date)
		if gap <= 0 {
			continue
		}
		if best == 0 || gap < best {
			best = gap
		}
	}
	return best, best > 0
}

// ColumnName returns the namespaced column for a resampled field.
func ColumnName(intervalMinutes int, field string) string {
	return fmt.Sprintf("resample_%d_%s", intervalMinutes, field)
}

// resampledFields are the fields carried into a merged series; volume is excluded.
var resampledFields = [...]string{"open", "high", "low", "close"}

// ParseColumnName splits a namespaced column back into interval and field.
func ParseColumnName(column string) (int, string, bool) {
	rest, ok := strings.CutPrefix(column, "resample_")
	if !ok {
		return 0, "", false
	}
	num, field, ok := strings.Cut(rest, "_")
	if !ok {
		return 0, "", false
	}
	minutes, err := strconv.Atoi(num)
	if err != nil || minutes <= 0 || fieldRank(field) < 0 {
		return 0, "", false
	}
	return minutes, field, true
}

// SortColumns orders namespaced columns by interval, then open/high/low/close.
// Unknown names sort last, alphabetically.
func SortColumns(cols []string) {
	sort.SliceStable(cols, func(i, j int) bool {
		mi, fi, oki := ParseColumnName(cols[i])
		mj, fj, okj := ParseColumnName(cols[j])
		switch {
		case oki && okj:
			if mi != mj {
				return mi < mj
			}
			return fieldRank(fi) < fieldRank(fj)
		case oki != okj:
			return oki
		default:
			return cols[i] < cols[j]
		}
	})
}

func fieldRank(field string) int {
	for i, f := range resampledFields {
		if f == field {
			return i
		}
	}
	return -1
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// bucketIndex returns the epoch-anchored bucket number of t.
func bucketIndex(t time.Time, width time.Duration) int64 {
	return floorDiv(t.UnixNano(), int64(width))
}

// bucketTime returns the UTC start instant of bucket idx.
func bucketTime(idx int64, width time.Duration) time.Time {
	return time.Unix(0, idx*int64(width)).UTC()
}
