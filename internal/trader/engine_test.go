package trader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"paper-trade-bot-go/internal/advisor"
	"paper-trade-bot-go/internal/config"
	"paper-trade-bot-go/internal/models"
	"paper-trade-bot-go/internal/pricedata"
	"paper-trade-bot-go/internal/reconciler"
	"paper-trade-bot-go/internal/risk"
	"paper-trade-bot-go/internal/store"
)

// stubAccount serves a fixed account snapshot.
type stubAccount struct{ state models.AccountState }

func (s stubAccount) GetAccountState(context.Context) (models.AccountState, error) {
	return s.state, nil
}

// stubCandles is a canned price source for the reconcile loop.
type stubCandles struct{ candles []models.Candle }

func (s stubCandles) Name() string { return "stub" }

func (s stubCandles) GetHistoricalCandles(context.Context, string, time.Time, time.Time, pricedata.Resolution) ([]models.Candle, error) {
	return s.candles, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Trading: config.Trading{Instrument: "BTCUSDT", Mode: "paper"},
		Reconciler: config.Reconciler{
			MinTradeAge:  time.Minute,
			PollInterval: time.Minute,
			Resolution:   "1m",
			Timeout:      5 * time.Second,
		},
	}
}

// setupEngine builds an engine over an in-memory store, a fixed account
// snapshot and a canned candle source.
func setupEngine(t *testing.T, candles []models.Candle, state models.AccountState, advisorClient *advisor.Client) (*Engine, store.TradeStore) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Trade{}))
	trades := store.NewGormStore(db)

	rec := reconciler.New(stubCandles{candles: candles}, zap.NewNop(), reconciler.Config{
		MinTradeAge: time.Minute,
		Resolution:  pricedata.Resolution1m,
	})

	if advisorClient == nil {
		advisorClient = advisor.NewClient("", false, time.Second, zap.NewNop())
	}

	engine := NewEngine(
		zap.NewNop(),
		testConfig(),
		trades,
		risk.NewEngine(risk.DefaultConfig()),
		stubAccount{state: state},
		rec,
		advisorClient,
	)
	return engine, trades
}

func fptr(v float64) *float64 { return &v }

func TestHandleSignal_Admitted(t *testing.T) {
	engine, trades := setupEngine(t, nil, models.AccountState{Equity: 1000}, nil)

	resp, err := engine.HandleSignal(context.Background(), SignalRequest{
		Signal:        "LONG",
		Symbol:        "BTCUSDT",
		EntryPrice:    50000,
		StopLossPrice: 49700,
	})
	require.NoError(t, err)

	assert.True(t, resp.Allowed)
	require.NotNil(t, resp.PositionSizeUSD)
	assert.InDelta(t, 166.67, *resp.PositionSizeUSD, 0.01)

	saved, err := trades.FindByID(context.Background(), resp.TradeID)
	require.NoError(t, err)
	assert.True(t, saved.Success)
	assert.Equal(t, models.ActionExecuted, saved.Action)
	assert.Equal(t, models.ModePaper, saved.Mode)
	assert.InDelta(t, 166.67, saved.PositionSizeUSD, 0.01)
	assert.InDelta(t, 0.6, saved.RiskCheck.SLDistancePercent, 0.0001)
}

func TestHandleSignal_RiskRejectionIsRecorded(t *testing.T) {
	engine, trades := setupEngine(t, nil, models.AccountState{Equity: 1000}, nil)

	// 2% stop distance, past the 0.6% cap.
	resp, err := engine.HandleSignal(context.Background(), SignalRequest{
		Signal:        "LONG",
		Symbol:        "BTCUSDT",
		EntryPrice:    50000,
		StopLossPrice: 49000,
	})
	require.NoError(t, err)

	assert.False(t, resp.Allowed)
	assert.Contains(t, resp.Reason, "0.60%")
	assert.Nil(t, resp.PositionSizeUSD)
	if assert.NotNil(t, resp.SLDistancePercent, "computed stop distance is reported even on rejection") {
		assert.InDelta(t, 2.0, *resp.SLDistancePercent, 0.0001)
	}

	saved, err := trades.FindByID(context.Background(), resp.TradeID)
	require.NoError(t, err)
	assert.False(t, saved.Success)
	assert.Equal(t, models.ActionRejected, saved.Action)
	assert.Zero(t, saved.PositionSizeUSD)
}

func TestHandleSignal_InvalidShapeIsRecorded(t *testing.T) {
	engine, trades := setupEngine(t, nil, models.AccountState{Equity: 1000}, nil)

	// LONG with the stop above entry is structurally invalid.
	resp, err := engine.HandleSignal(context.Background(), SignalRequest{
		Signal:        "LONG",
		Symbol:        "BTCUSDT",
		EntryPrice:    50000,
		StopLossPrice: 50300,
	})
	require.NoError(t, err)

	assert.False(t, resp.Allowed)

	saved, err := trades.FindByID(context.Background(), resp.TradeID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionRejected, saved.Action)
}

func TestHandleSignal_AdvisorVeto(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"approved": false, "reason": "news event"}`))
	}))
	defer server.Close()

	veto := advisor.NewClient(server.URL, true, time.Second, zap.NewNop())
	engine, trades := setupEngine(t, nil, models.AccountState{Equity: 1000}, veto)

	resp, err := engine.HandleSignal(context.Background(), SignalRequest{
		Signal:        "LONG",
		EntryPrice:    50000,
		StopLossPrice: 49700,
	})
	require.NoError(t, err)

	assert.False(t, resp.Allowed)
	assert.Contains(t, resp.Reason, "advisor veto")

	saved, err := trades.FindByID(context.Background(), resp.TradeID)
	require.NoError(t, err)
	assert.False(t, saved.Success)
}

func TestReconcileOpenTrades_SettlesWin(t *testing.T) {
	entry := time.Now().UTC().Add(-2 * time.Hour)
	candles := []models.Candle{
		{Time: entry.Add(time.Minute), Open: 50000, High: 50600, Low: 49900, Close: 50500, Volume: 1},
	}
	engine, trades := setupEngine(t, candles, models.AccountState{Equity: 1000}, nil)
	ctx := context.Background()

	trade := &models.Trade{
		ID:              models.NewTradeID(),
		Timestamp:       entry,
		Signal:          models.SignalLong,
		Instrument:      "BTCUSDT",
		EntryPrice:      50000,
		StopLoss:        49700,
		TakeProfit:      fptr(50500),
		PositionSizeUSD: 100,
		Mode:            models.ModePaper,
		Success:         true,
		Action:          models.ActionExecuted,
	}
	require.NoError(t, trades.Create(ctx, trade))

	require.NoError(t, engine.reconcileOpenTrades(ctx))

	settled, err := trades.FindByID(ctx, trade.ID)
	require.NoError(t, err)
	require.NotNil(t, settled.ExitPrice)
	assert.Equal(t, 50500.0, *settled.ExitPrice)
	assert.Equal(t, models.ExitTakeProfit, *settled.ExitType)
	assert.True(t, settled.Validated)
	assert.Equal(t, reconciler.ValidatedBy, settled.ValidatedBy)

	// A second sweep finds nothing open and changes nothing.
	require.NoError(t, engine.reconcileOpenTrades(ctx))
	again, err := trades.FindByID(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, 50500.0, *again.ExitPrice)
}

func TestReconcileOpenTrades_LeavesUnsettledOpen(t *testing.T) {
	entry := time.Now().UTC().Add(-2 * time.Hour)
	candles := []models.Candle{
		{Time: entry.Add(time.Minute), Open: 50000, High: 50100, Low: 49950, Close: 50050, Volume: 1},
	}
	engine, trades := setupEngine(t, candles, models.AccountState{Equity: 1000}, nil)
	ctx := context.Background()

	trade := &models.Trade{
		ID:         models.NewTradeID(),
		Timestamp:  entry,
		Signal:     models.SignalLong,
		Instrument: "BTCUSDT",
		EntryPrice: 50000,
		StopLoss:   49700,
		TakeProfit: fptr(50500),
		Mode:       models.ModePaper,
		Success:    true,
		Action:     models.ActionExecuted,
	}
	require.NoError(t, trades.Create(ctx, trade))

	require.NoError(t, engine.reconcileOpenTrades(ctx))

	still, err := trades.FindByID(ctx, trade.ID)
	require.NoError(t, err)
	assert.Nil(t, still.ExitPrice, "open_profit is live status, not a settlement")
}

func TestTotalPnL(t *testing.T) {
	engine, trades := setupEngine(t, nil, models.AccountState{Equity: 1000}, nil)
	ctx := context.Background()

	winner := &models.Trade{
		ID: models.NewTradeID(), Timestamp: time.Now().UTC().Add(-3 * time.Hour),
		Signal: models.SignalLong, Instrument: "BTCUSDT",
		EntryPrice: 50000, StopLoss: 49700, PositionSizeUSD: 100,
		Mode: models.ModePaper, Success: true, Action: models.ActionExecuted,
	}
	loser := &models.Trade{
		ID: models.NewTradeID(), Timestamp: time.Now().UTC().Add(-3 * time.Hour),
		Signal: models.SignalLong, Instrument: "BTCUSDT",
		EntryPrice: 50000, StopLoss: 49700, PositionSizeUSD: 100,
		Mode: models.ModePaper, Success: true, Action: models.ActionExecuted,
	}
	stillOpen := &models.Trade{
		ID: models.NewTradeID(), Timestamp: time.Now().UTC(),
		Signal: models.SignalLong, Instrument: "BTCUSDT",
		EntryPrice: 50000, StopLoss: 49700, PositionSizeUSD: 100,
		Mode: models.ModePaper, Success: true, Action: models.ActionExecuted,
	}
	require.NoError(t, trades.Create(ctx, winner))
	require.NoError(t, trades.Create(ctx, loser))
	require.NoError(t, trades.Create(ctx, stillOpen))

	now := time.Now().UTC()
	require.NoError(t, trades.UpdateExit(ctx, winner.ID, store.Exit{
		Type: models.ExitTakeProfit, Price: 50500, Time: now, Validated: true, ValidatedBy: reconciler.ValidatedBy,
	}))
	require.NoError(t, trades.UpdateExit(ctx, loser.ID, store.Exit{
		Type: models.ExitStopLoss, Price: 49700, Time: now, Validated: true, ValidatedBy: reconciler.ValidatedBy,
	}))

	total, err := engine.TotalPnL(ctx)
	require.NoError(t, err)
	// +1.00 from the winner, -0.60 from the loser; the open trade contributes nothing.
	assert.InDelta(t, 0.40, total, 0.001)
}
