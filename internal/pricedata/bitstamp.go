package pricedata

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"paper-trade-bot-go/internal/models"
)

const bitstampBaseURL = "https://www.bitstamp.net/api/v2"

// BitstampProvider reconstructs candles from raw trade ticks. Bitstamp has
// no public historical OHLC endpoint for arbitrary ranges, so ticks are
// bucketed into fixed-width windows: open is the first tick in the bucket,
// high/low are running extremes, close is the last tick, volume is the sum
// of tick sizes.
type BitstampProvider struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

var _ Provider = (*BitstampProvider)(nil)

// NewBitstampProvider creates a Bitstamp tick provider with the given rate
// limit and per-request timeout.
func NewBitstampProvider(logger *zap.Logger, requestTimeout time.Duration, rateLimit float64, burst int) *BitstampProvider {
	client := resty.New().
		SetBaseURL(bitstampBaseURL).
		SetTimeout(requestTimeout)

	return &BitstampProvider{
		client:  client,
		logger:  logger.Named("bitstamp"),
		limiter: rate.NewLimiter(rate.Limit(rateLimit), burst),
	}
}

// Name identifies the provider in cascade logs.
func (p *BitstampProvider) Name() string { return "bitstamp" }

// bitstampTransaction is a single trade tick from the transactions endpoint.
// All numeric fields arrive as strings.
type bitstampTransaction struct {
	Date   string `json:"date"`
	TID    string `json:"tid"`
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

// tick is a parsed trade used for candle reconstruction.
type tick struct {
	time   time.Time
	price  float64
	amount float64
}

// GetHistoricalCandles fetches recent trade ticks and buckets them into
// candles of the requested resolution. The transactions endpoint only
// reaches back one day, so older ranges come back empty and the cascade
// falls through to the next source.
func (p *BitstampProvider) GetHistoricalCandles(ctx context.Context, instrument string, start, end time.Time, resolution Resolution) ([]models.Candle, error) {
	width := resolution.Duration()
	if width == 0 {
		return nil, fmt.Errorf("bitstamp does not support resolution %q", resolution)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	window := "day"
	if time.Since(start) <= time.Hour {
		window = "hour"
	}

	var raw []bitstampTransaction
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("time", window).
		SetResult(&raw).
		Get("/transactions/" + currencyPair(instrument) + "/")
	if err != nil {
		return nil, fmt.Errorf("bitstamp transactions request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bitstamp transactions request failed with status %s: %s", resp.Status(), resp.String())
	}

	ticks := make([]tick, 0, len(raw))
	for _, tx := range raw {
		parsed, err := parseTransaction(tx)
		if err != nil {
			p.logger.Warn("Skipping malformed transaction", zap.Error(err))
			continue
		}
		if parsed.time.Before(start) || !parsed.time.Before(end) {
			continue
		}
		ticks = append(ticks, parsed)
	}

	return bucketTicks(ticks, width), nil
}

func parseTransaction(tx bitstampTransaction) (tick, error) {
	sec, err := strconv.ParseInt(tx.Date, 10, 64)
	if err != nil {
		return tick{}, fmt.Errorf("failed to parse transaction date %q: %w", tx.Date, err)
	}
	price, err := strconv.ParseFloat(tx.Price, 64)
	if err != nil {
		return tick{}, fmt.Errorf("failed to parse transaction price %q: %w", tx.Price, err)
	}
	amount, err := strconv.ParseFloat(tx.Amount, 64)
	if err != nil {
		return tick{}, fmt.Errorf("failed to parse transaction amount %q: %w", tx.Amount, err)
	}
	return tick{time: time.Unix(sec, 0).UTC(), price: price, amount: amount}, nil
}

// bucketTicks folds trade ticks into fixed-width candles. Ticks are sorted
// ascending first so open/close reflect actual trade order.
func bucketTicks(ticks []tick, width time.Duration) []models.Candle {
	if len(ticks) == 0 {
		return nil
	}

	sort.SliceStable(ticks, func(i, j int) bool {
		return ticks[i].time.Before(ticks[j].time)
	})

	var candles []models.Candle
	var current *models.Candle
	for _, tk := range ticks {
		bucket := tk.time.Truncate(width)
		if current == nil || !current.Time.Equal(bucket) {
			candles = append(candles, models.Candle{
				Time: bucket,
				Open: tk.price, High: tk.price, Low: tk.price, Close: tk.price,
				Volume: tk.amount,
			})
			current = &candles[len(candles)-1]
			continue
		}
		if tk.price > current.High {
			current.High = tk.price
		}
		if tk.price < current.Low {
			current.Low = tk.price
		}
		current.Close = tk.price
		current.Volume += tk.amount
	}

	return candles
}

// currencyPair translates a compact symbol like BTCUSDT into the lowercase
// pair Bitstamp expects. USDT quotes map to the USD books.
func currencyPair(instrument string) string {
	upper := strings.ToUpper(instrument)
	upper = strings.ReplaceAll(upper, "-", "")
	if strings.HasSuffix(upper, "USDT") {
		upper = strings.TrimSuffix(upper, "USDT") + "USD"
	}
	return strings.ToLower(upper)
}
