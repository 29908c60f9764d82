package pricedata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupBinanceTest creates a BinanceProvider pointed at a test server.
func setupBinanceTest(handler http.Handler) (*BinanceProvider, *httptest.Server) {
	server := httptest.NewServer(handler)
	provider := &BinanceProvider{
		client:  resty.New().SetBaseURL(server.URL),
		logger:  zap.NewNop(),
		limiter: rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
	}
	return provider, server
}

func TestBinanceProvider_GetHistoricalCandles(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		mockResponse := `[
			[1717243200000, "50000.0", "50600.0", "49900.0", "50500.0", "12.5", 1717243259999, "0", 0, "0", "0", "0"],
			[1717243260000, "50500.0", "50550.0", "49650.0", "49700.0", "8.25", 1717243319999, "0", 0, "0", "0", "0"]
		]`
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/klines", r.URL.Path)
			assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
			assert.Equal(t, "1m", r.URL.Query().Get("interval"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(mockResponse))
		})

		provider, server := setupBinanceTest(handler)
		defer server.Close()

		// Act
		start := time.UnixMilli(1717243200000)
		candles, err := provider.GetHistoricalCandles(context.Background(), "BTCUSDT", start, start.Add(time.Hour), Resolution1m)

		// Assert
		assert.NoError(t, err)
		if assert.Len(t, candles, 2) {
			assert.Equal(t, time.UnixMilli(1717243200000).UTC(), candles[0].Time)
			assert.Equal(t, 50000.0, candles[0].Open)
			assert.Equal(t, 50600.0, candles[0].High)
			assert.Equal(t, 49900.0, candles[0].Low)
			assert.Equal(t, 50500.0, candles[0].Close)
			assert.Equal(t, 12.5, candles[0].Volume)
			assert.Equal(t, 49700.0, candles[1].Close)
		}
	})

	t.Run("PaginatesWideWindows", func(t *testing.T) {
		// A 24h window at 1m resolution spans 1440 candles, more than one
		// 1000-row page. A take-profit spike sitting past the first page must
		// still be visible in the combined result.
		base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		spikeMinute := int64(1200)

		requests := 0
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			startMs, err := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
			require.NoError(t, err)
			endMs, err := strconv.ParseInt(r.URL.Query().Get("endTime"), 10, 64)
			require.NoError(t, err)

			var sb strings.Builder
			sb.WriteString("[")
			rows := 0
			for ts := startMs; ts < endMs && rows < 1000; ts += 60_000 {
				high := "50100.0"
				if (ts-base.UnixMilli())/60_000 == spikeMinute {
					high = "50600.0"
				}
				if rows > 0 {
					sb.WriteString(",")
				}
				fmt.Fprintf(&sb, `[%d, "50000.0", "%s", "49900.0", "50050.0", "1.0"]`, ts, high)
				rows++
			}
			sb.WriteString("]")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(sb.String()))
		})

		provider, server := setupBinanceTest(handler)
		defer server.Close()

		candles, err := provider.GetHistoricalCandles(context.Background(), "BTCUSDT", base, base.Add(24*time.Hour), Resolution1m)

		assert.NoError(t, err)
		assert.Equal(t, 2, requests)
		require.Len(t, candles, 1440)

		spike := candles[spikeMinute]
		assert.Equal(t, base.Add(time.Duration(spikeMinute)*time.Minute), spike.Time)
		assert.Equal(t, 50600.0, spike.High)
	})

	t.Run("APIError", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte(`{"code": -1121, "msg": "Invalid symbol."}`))
		})

		provider, server := setupBinanceTest(handler)
		defer server.Close()

		candles, err := provider.GetHistoricalCandles(context.Background(), "NOPE", time.Now().Add(-time.Hour), time.Now(), Resolution1m)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "binance klines request failed")
		assert.Empty(t, candles)
	})

	t.Run("MalformedRowsSkipped", func(t *testing.T) {
		mockResponse := `[
			[1717243200000, "50000.0", "50600.0", "49900.0", "50500.0", "12.5"],
			["bad", "x"],
			[1717243260000, "50500.0", "not-a-number", "49650.0", "49700.0", "8.25"]
		]`
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(mockResponse))
		})

		provider, server := setupBinanceTest(handler)
		defer server.Close()

		candles, err := provider.GetHistoricalCandles(context.Background(), "BTCUSDT", time.UnixMilli(1717243200000), time.Now(), Resolution1m)

		assert.NoError(t, err)
		assert.Len(t, candles, 1)
	})

	t.Run("UnknownResolution", func(t *testing.T) {
		provider, server := setupBinanceTest(http.NotFoundHandler())
		defer server.Close()

		_, err := provider.GetHistoricalCandles(context.Background(), "BTCUSDT", time.Now().Add(-time.Hour), time.Now(), Resolution("3w"))
		assert.Error(t, err)
	})
}
