package candles

import "errors"

var (
	// ErrEmptyInput is returned when there is nothing to build or merge.
	ErrEmptyInput = errors.New("candles: empty input")
	// ErrInvalidInterval is returned when a resample interval cannot aggregate the series.
	ErrInvalidInterval = errors.New("candles: invalid interval")
	// ErrIncompatibleSeries is returned when a base/resampled pair cannot be realigned.
	ErrIncompatibleSeries = errors.New("candles: incompatible series")
)

// IsInputError reports whether err was caused by caller-supplied data rather
// than an infrastructure failure.
func IsInputError(err error) bool {
	return errors.Is(err, ErrEmptyInput) ||
		errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrIncompatibleSeries)
}
