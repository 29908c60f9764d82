package models

import "time"

// Candle represents an OHLCV aggregate for a fixed time window.
// Within one dataset from a single provider candles are ordered by Time
// ascending with no duplicate timestamps.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}
