package models

import "time"

// MergedCandle is a base candle plus the namespaced values realigned from
// coarser series. A column missing from Resampled is null for this row.
type MergedCandle struct {
	Candle
	Resampled map[string]float64 `json:"resampled,omitempty"`
}

// Value returns the namespaced column value and whether it is present.
func (m MergedCandle) Value(column string) (float64, bool) {
	v, ok := m.Resampled[column]
	return v, ok
}

// MergedSeries is the base timeline joined with one or more resampled series.
type MergedSeries struct {
	Columns []string       `json:"columns"`
	Rows    []MergedCandle `json:"rows"`
}

// NewMergedSeries wraps a base series with no extra columns yet.
func NewMergedSeries(base Series) MergedSeries {
	rows := make([]MergedCandle, len(base))
	for i, c := range base {
		rows[i] = MergedCandle{Candle: c}
	}
	return MergedSeries{Rows: rows}
}

// Base returns the underlying base series.
func (m MergedSeries) Base() Series {
	out := make(Series, len(m.Rows))
	for i, r := range m.Rows {
		out[i] = r.Candle
	}
	return out
}

// HasColumn reports whether the namespaced column was already merged.
func (m MergedSeries) HasColumn(column string) bool {
	for _, c := range m.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Len returns the number of base rows.
func (m MergedSeries) Len() int { return len(m.Rows) }

// Records flattens rows into column maps; absent values are emitted as nil.
func (m MergedSeries) Records() []map[string]any {
	out := make([]map[string]any, len(m.Rows))
	for i, r := range m.Rows {
		rec := make(map[string]any, 6+len(m.Columns))
		rec["date"] = r.Date.UTC().Format(time.RFC3339)
		rec["open"] = r.Open
		rec["high"] = r.High
		rec["low"] = r.Low
		rec["close"] = r.Close
		rec["volume"] = r.Volume
		for _, col := range m.Columns {
			if v, ok := r.Resampled[col]; ok {
				rec[col] = v
			} else {
				rec[col] = nil
			}
		}
		out[i] = rec
	}
	return out
}
