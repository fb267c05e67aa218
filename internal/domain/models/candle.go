package models

import "time"

// Tick is a raw price/volume observation as delivered by a market-data source.
// TimestampMs is epoch milliseconds; ticks are neither unique nor sorted.
type Tick struct {
	TimestampMs int64   `json:"t"`
	Open        float64 `json:"o"`
	High        float64 `json:"h"`
	Low         float64 `json:"l"`
	Close       float64 `json:"c"`
	Volume      float64 `json:"v"`
}

// Time returns the tick timestamp as a UTC instant.
func (t Tick) Time() time.Time {
	return time.UnixMilli(t.TimestampMs).UTC()
}

// TradeTick converts a single trade print into a tick.
func TradeTick(tsMs int64, price, volume float64) Tick {
	return Tick{TimestampMs: tsMs, Open: price, High: price, Low: price, Close: price, Volume: volume}
}

// Candle represents an OHLCV record.
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Series is an ascending, duplicate-free run of closed candles.
type Series []Candle

// Dates returns the candle dates in order.
func (s Series) Dates() []time.Time {
	out := make([]time.Time, len(s))
	for i, c := range s {
		out[i] = c.Date
	}
	return out
}

// SymbolTick is a tick tagged with its instrument, as carried on the tick topic.
type SymbolTick struct {
	Symbol string `json:"s"`
	Tick
}
