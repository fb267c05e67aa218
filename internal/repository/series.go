package repository

import (
	"FinBars/internal/domain/models"
	"FinBars/internal/services/candles"
)

// assembleMerged rebuilds the column list from the keys present in rows.
// A column that is null on every loaded row does not come back.
func assembleMerged(rows []models.MergedCandle) models.MergedSeries {
	seen := map[string]struct{}{}
	var cols []string
	for _, r := range rows {
		for k := range r.Resampled {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				cols = append(cols, k)
			}
		}
	}
	candles.SortColumns(cols)
	return models.MergedSeries{Columns: cols, Rows: rows}
}
