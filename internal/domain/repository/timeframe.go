package repository

import (
	"fmt"
	"strconv"
	"strings"
)

// Timeframe is the resolution requested from a tick source, e.g. "1m".
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF1d  Timeframe = "1d"
)

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1m, TF5m, TF15m, TF30m, TF1h, TF1d:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1m }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(strings.ToLower(s))
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Minutes returns the timeframe width in minutes.
func (tf Timeframe) Minutes() int {
	s := string(tf)
	if len(s) < 2 {
		return 0
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0
	}
	switch s[len(s)-1] {
	case 'm':
		return n
	case 'h':
		return n * 60
	case 'd':
		return n * 1440
	}
	return 0
}

// FinnhubResolution maps the timeframe to the /stock/candle resolution value.
func (tf Timeframe) FinnhubResolution() (string, error) {
	switch tf {
	case TF1d:
		return "D", nil
	case TF1m, TF5m, TF15m, TF30m, TF1h:
		return strconv.Itoa(tf.Minutes()), nil
	}
	return "", fmt.Errorf("unsupported timeframe %q", tf)
}
