package pricedata

import (
	"context"
	"time"

	"go.uber.org/zap"

	"paper-trade-bot-go/internal/models"
)

// Cascade tries an ordered list of providers until one returns a non-empty,
// well-formed dataset. Provider failures are logged and recovered here; they
// never propagate to callers. When every source is exhausted the cascade
// returns an empty slice and no error; callers must treat that as "outcome
// unknown", never as "trade still open" or "trade lost".
type Cascade struct {
	providers []Provider
	logger    *zap.Logger
}

// ensure the cascade itself satisfies the Provider contract
var _ Provider = (*Cascade)(nil)

// NewCascade creates a cascade over the given providers, tried in order.
func NewCascade(logger *zap.Logger, providers ...Provider) *Cascade {
	return &Cascade{
		providers: providers,
		logger:    logger.Named("pricedata"),
	}
}

// Name identifies the cascade in logs.
func (c *Cascade) Name() string { return "cascade" }

// GetHistoricalCandles walks the provider list and returns the first
// non-empty result. A single provider is never retried directly; recovery is
// only via falling through to the next source.
func (c *Cascade) GetHistoricalCandles(ctx context.Context, instrument string, start, end time.Time, resolution Resolution) ([]models.Candle, error) {
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			c.logger.Warn("Candle fetch abandoned", zap.Error(err))
			return nil, nil
		}

		candles, err := p.GetHistoricalCandles(ctx, instrument, start, end, resolution)
		if err != nil {
			c.logger.Warn("Provider failed, falling through",
				zap.String("provider", p.Name()),
				zap.String("instrument", instrument),
				zap.Error(err),
			)
			continue
		}

		candles = normalize(candles)
		if len(candles) == 0 {
			c.logger.Warn("Provider returned no candles, falling through",
				zap.String("provider", p.Name()),
				zap.String("instrument", instrument),
			)
			continue
		}

		c.logger.Debug("Candles fetched",
			zap.String("provider", p.Name()),
			zap.String("instrument", instrument),
			zap.Int("count", len(candles)),
		)
		return candles, nil
	}

	c.logger.Warn("All price providers exhausted",
		zap.String("instrument", instrument),
		zap.Time("start", start),
		zap.Time("end", end),
	)
	return nil, nil
}
