package pricedata

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"paper-trade-bot-go/internal/models"
)

const binanceBaseURL = "https://api.binance.com/api/v3"

// binanceMaxKlines is the per-request row cap of the klines endpoint. Wider
// windows are fetched in pages; a 24h window at 1m resolution needs two.
const binanceMaxKlines = 1000

// binance kline labels happen to match our resolution labels exactly.
var binanceIntervals = map[Resolution]string{
	Resolution1m:  "1m",
	Resolution5m:  "5m",
	Resolution15m: "15m",
	Resolution1h:  "1h",
	Resolution4h:  "4h",
	Resolution1d:  "1d",
}

// BinanceProvider fetches native OHLC klines from the Binance public API.
type BinanceProvider struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

var _ Provider = (*BinanceProvider)(nil)

// NewBinanceProvider creates a Binance candle provider with the given rate
// limit and per-request timeout.
func NewBinanceProvider(logger *zap.Logger, requestTimeout time.Duration, rateLimit float64, burst int) *BinanceProvider {
	client := resty.New().
		SetBaseURL(binanceBaseURL).
		SetTimeout(requestTimeout)

	return &BinanceProvider{
		client:  client,
		logger:  logger.Named("binance"),
		limiter: rate.NewLimiter(rate.Limit(rateLimit), burst),
	}
}

// Name identifies the provider in cascade logs.
func (p *BinanceProvider) Name() string { return "binance" }

// GetHistoricalCandles fetches klines for the range, paginating until the
// requested window is covered. Binance returns an array of arrays with
// numeric timestamps and string prices.
func (p *BinanceProvider) GetHistoricalCandles(ctx context.Context, instrument string, start, end time.Time, resolution Resolution) ([]models.Candle, error) {
	interval, ok := binanceIntervals[resolution]
	if !ok {
		return nil, fmt.Errorf("binance does not support resolution %q", resolution)
	}
	width := resolution.Duration()

	var candles []models.Candle
	cursor := start
	for cursor.Before(end) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		var raw [][]any
		resp, err := p.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"symbol":    instrument,
				"interval":  interval,
				"startTime": strconv.FormatInt(cursor.UnixMilli(), 10),
				"endTime":   strconv.FormatInt(end.UnixMilli(), 10),
				"limit":     strconv.Itoa(binanceMaxKlines),
			}).
			SetResult(&raw).
			Get("/klines")
		if err != nil {
			return nil, fmt.Errorf("binance klines request failed: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("binance klines request failed with status %s: %s", resp.Status(), resp.String())
		}
		if len(raw) == 0 {
			break
		}

		var lastOpen time.Time
		for _, row := range raw {
			candle, err := parseBinanceKline(row)
			if err != nil {
				p.logger.Warn("Skipping malformed kline row", zap.Error(err))
				continue
			}
			candles = append(candles, candle)
			lastOpen = candle.Time
		}

		if len(raw) < binanceMaxKlines {
			break
		}
		// A full page means the window may continue past it; resume from the
		// candle after the last one returned.
		next := lastOpen.Add(width)
		if !next.After(cursor) {
			break
		}
		cursor = next
	}

	return candles, nil
}

// parseBinanceKline adapts one kline row into the common candle schema.
// Row layout: [openTime, open, high, low, close, volume, ...].
func parseBinanceKline(row []any) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, fmt.Errorf("kline row has %d fields, want at least 6", len(row))
	}

	openTime, ok := row[0].(float64)
	if !ok {
		return models.Candle{}, fmt.Errorf("kline open time is %T, want number", row[0])
	}

	prices := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		s, ok := row[i].(string)
		if !ok {
			return models.Candle{}, fmt.Errorf("kline field %d is %T, want string", i, row[i])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Candle{}, fmt.Errorf("failed to parse kline field %d: %w", i, err)
		}
		prices[i-1] = v
	}

	return models.Candle{
		Time:   time.UnixMilli(int64(openTime)).UTC(),
		Open:   prices[0],
		High:   prices[1],
		Low:    prices[2],
		Close:  prices[3],
		Volume: prices[4],
	}, nil
}
