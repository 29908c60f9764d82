package pricedata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"paper-trade-bot-go/internal/models"
)

const coinbaseBaseURL = "https://api.exchange.coinbase.com"

// Coinbase granularity is expressed in seconds and only supports a fixed
// set of buckets; 4h in particular has no native equivalent.
var coinbaseGranularities = map[Resolution]int{
	Resolution1m:  60,
	Resolution5m:  300,
	Resolution15m: 900,
	Resolution1h:  3600,
	Resolution1d:  86400,
}

// knownQuotes are the quote assets recognised when translating a compact
// instrument symbol like BTCUSDT into a dashed product id.
var knownQuotes = []string{"USDT", "USDC", "USD", "EUR", "GBP", "BTC", "ETH"}

// CoinbaseProvider fetches native OHLC candles from the Coinbase Exchange API.
type CoinbaseProvider struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

var _ Provider = (*CoinbaseProvider)(nil)

// NewCoinbaseProvider creates a Coinbase candle provider with the given rate
// limit and per-request timeout.
func NewCoinbaseProvider(logger *zap.Logger, requestTimeout time.Duration, rateLimit float64, burst int) *CoinbaseProvider {
	client := resty.New().
		SetBaseURL(coinbaseBaseURL).
		SetTimeout(requestTimeout)

	return &CoinbaseProvider{
		client:  client,
		logger:  logger.Named("coinbase"),
		limiter: rate.NewLimiter(rate.Limit(rateLimit), burst),
	}
}

// Name identifies the provider in cascade logs.
func (p *CoinbaseProvider) Name() string { return "coinbase" }

// GetHistoricalCandles fetches candles for the range. Coinbase answers
// newest-first with rows of [time, low, high, open, close, volume]; the
// cascade re-sorts ascending.
func (p *CoinbaseProvider) GetHistoricalCandles(ctx context.Context, instrument string, start, end time.Time, resolution Resolution) ([]models.Candle, error) {
	granularity, ok := coinbaseGranularities[resolution]
	if !ok {
		return nil, fmt.Errorf("coinbase does not support resolution %q", resolution)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var raw [][]float64
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"granularity": strconv.Itoa(granularity),
			"start":       start.UTC().Format(time.RFC3339),
			"end":         end.UTC().Format(time.RFC3339),
		}).
		SetResult(&raw).
		Get("/products/" + productID(instrument) + "/candles")
	if err != nil {
		return nil, fmt.Errorf("coinbase candles request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("coinbase candles request failed with status %s: %s", resp.Status(), resp.String())
	}

	candles := make([]models.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			p.logger.Warn("Skipping malformed candle row", zap.Int("fields", len(row)))
			continue
		}
		candles = append(candles, models.Candle{
			Time:   time.Unix(int64(row[0]), 0).UTC(),
			Low:    row[1],
			High:   row[2],
			Open:   row[3],
			Close:  row[4],
			Volume: row[5],
		})
	}

	return candles, nil
}

// productID translates a compact symbol like BTCUSDT into the dashed form
// Coinbase expects (BTC-USDT). Symbols already containing a dash pass
// through unchanged.
func productID(instrument string) string {
	if strings.Contains(instrument, "-") {
		return instrument
	}
	upper := strings.ToUpper(instrument)
	for _, quote := range knownQuotes {
		if strings.HasSuffix(upper, quote) && len(upper) > len(quote) {
			return upper[:len(upper)-len(quote)] + "-" + quote
		}
	}
	return upper
}
