package reconciler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-trade-bot-go/internal/models"
)

func closedTrade(signal models.Signal, entry, exit, size float64) *models.Trade {
	exitTime := time.Now().UTC()
	exitType := models.ExitTakeProfit
	return &models.Trade{
		ID:              models.NewTradeID(),
		Timestamp:       exitTime.Add(-time.Hour),
		Signal:          signal,
		Instrument:      "BTCUSDT",
		EntryPrice:      entry,
		StopLoss:        entry * 0.994,
		PositionSizeUSD: size,
		Success:         true,
		ExitType:        &exitType,
		ExitPrice:       &exit,
		ExitTime:        &exitTime,
		Validated:       true,
	}
}

func TestProfitLoss(t *testing.T) {
	t.Run("ClosedLong", func(t *testing.T) {
		// entry=50000, exit=50500, size=100 -> +1.00
		pnl := ProfitLoss(closedTrade(models.SignalLong, 50000, 50500, 100))
		require.NotNil(t, pnl)
		assert.InDelta(t, 1.00, *pnl, 0.0001)
	})

	t.Run("ClosedShortSignFlipped", func(t *testing.T) {
		pnl := ProfitLoss(closedTrade(models.SignalShort, 50000, 50500, 100))
		require.NotNil(t, pnl)
		assert.InDelta(t, -1.00, *pnl, 0.0001)
	})

	t.Run("LosingLong", func(t *testing.T) {
		pnl := ProfitLoss(closedTrade(models.SignalLong, 50000, 49700, 166.67))
		require.NotNil(t, pnl)
		assert.InDelta(t, -1.00, *pnl, 0.01)
	})

	t.Run("OpenTradeHasNoPnL", func(t *testing.T) {
		open := &models.Trade{
			Signal: models.SignalLong, EntryPrice: 50000, StopLoss: 49700,
			TakeProfit: func() *float64 { v := 50500.0; return &v }(),
			PositionSizeUSD: 100, Success: true,
		}
		// The take-profit level must never stand in for a missing exit.
		assert.Nil(t, ProfitLoss(open))
	})

	t.Run("NilTrade", func(t *testing.T) {
		assert.Nil(t, ProfitLoss(nil))
	})
}
