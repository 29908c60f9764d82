package pricedata

import (
	"context"
	"fmt"
	"sort"
	"time"

	"paper-trade-bot-go/internal/models"
)

// Provider fetches historical OHLC candles for an instrument and time range
// from a single external source. Each call returns a finite, non-restartable
// dataset; a fresh call is required per range.
type Provider interface {
	Name() string
	GetHistoricalCandles(ctx context.Context, instrument string, start, end time.Time, resolution Resolution) ([]models.Candle, error)
}

// Resolution identifies a candle interval. Only the enumerated values are
// accepted; adapters map them to their native interval labels.
type Resolution string

const (
	Resolution1m  Resolution = "1m"
	Resolution5m  Resolution = "5m"
	Resolution15m Resolution = "15m"
	Resolution1h  Resolution = "1h"
	Resolution4h  Resolution = "4h"
	Resolution1d  Resolution = "1d"
)

var resolutionDurations = map[Resolution]time.Duration{
	Resolution1m:  time.Minute,
	Resolution5m:  5 * time.Minute,
	Resolution15m: 15 * time.Minute,
	Resolution1h:  time.Hour,
	Resolution4h:  4 * time.Hour,
	Resolution1d:  24 * time.Hour,
}

// ParseResolution validates a resolution label from configuration.
func ParseResolution(s string) (Resolution, error) {
	r := Resolution(s)
	if _, ok := resolutionDurations[r]; !ok {
		return "", fmt.Errorf("unknown resolution %q", s)
	}
	return r, nil
}

// Duration returns the candle width for the resolution, or zero for an
// unknown value.
func (r Resolution) Duration() time.Duration {
	return resolutionDurations[r]
}

// normalize sorts candles ascending by time and drops duplicate timestamps,
// keeping the first occurrence. Providers returning reverse-chronological
// data pass through here before reaching callers.
func normalize(candles []models.Candle) []models.Candle {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Time.Before(candles[j].Time)
	})

	out := candles[:0]
	var last time.Time
	for i, c := range candles {
		if i > 0 && c.Time.Equal(last) {
			continue
		}
		out = append(out, c)
		last = c.Time
	}
	return out
}
