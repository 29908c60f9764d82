package reconciler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"paper-trade-bot-go/internal/models"
	"paper-trade-bot-go/internal/pricedata"
)

// Outcome is the reconciliation state of a trade. All outcomes except
// OutcomePending are terminal for the evaluated dataset; pending trades are
// expected to be retried later by the caller.
type Outcome string

const (
	OutcomePending    Outcome = "pending"
	OutcomeWin        Outcome = "win"
	OutcomeLoss       Outcome = "loss"
	OutcomeOpenProfit Outcome = "open_profit"
	OutcomeOpenLoss   Outcome = "open_loss"
	OutcomeUnknown    Outcome = "unknown"
)

// ValidatedBy tags the provenance of exits settled from candle data.
const ValidatedBy = "historical_candles"

// lookAheadWindow bounds how far past entry the candle scan reaches.
const lookAheadWindow = 24 * time.Hour

// Result is the complete reconciliation answer for one trade. Validated is
// true only for win/loss outcomes derived from actual candle data;
// open_profit/open_loss describe live status, not settled P&L.
type Result struct {
	Outcome         Outcome
	Reason          string
	ExitType        *models.ExitType
	ExitPrice       *float64
	ExitTime        *time.Time
	Validated       bool
	CandlesAnalyzed int
}

// Config holds the reconciler tunables.
type Config struct {
	// MinTradeAge is how old a trade must be before reconciliation is
	// attempted; younger trades come back pending.
	MinTradeAge time.Duration
	// Resolution is the candle width requested from the provider cascade.
	Resolution pricedata.Resolution
}

// Reconciler determines, after the fact, whether a recorded trade hit its
// take-profit or stop-loss using historical price data. Each reconciliation
// is a pure computation over the trade and the fetched candles; failures
// degrade to OutcomeUnknown rather than erroring, so every trade gets a
// complete response.
type Reconciler struct {
	provider pricedata.Provider
	logger   *zap.Logger
	cfg      Config
	now      func() time.Time
}

// New creates a reconciler over the given candle provider (normally the
// cascade).
func New(provider pricedata.Provider, logger *zap.Logger, cfg Config) *Reconciler {
	return &Reconciler{
		provider: provider,
		logger:   logger.Named("reconciler"),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Reconcile evaluates a single trade. Trades already carrying an exit price
// are terminal and are not re-evaluated.
func (r *Reconciler) Reconcile(ctx context.Context, trade *models.Trade) Result {
	if trade.EntryPrice <= 0 || trade.Timestamp.IsZero() {
		return Result{Outcome: OutcomeUnknown, Reason: "trade is missing entry price or timestamp"}
	}
	if trade.IsClosed() {
		return Result{Outcome: OutcomeUnknown, Reason: "trade already has a settled exit"}
	}

	now := r.now()
	age := now.Sub(trade.Timestamp)
	if age < r.cfg.MinTradeAge {
		return Result{
			Outcome: OutcomePending,
			Reason:  fmt.Sprintf("trade is %s old, below minimum age %s", age.Round(time.Second), r.cfg.MinTradeAge),
		}
	}

	end := trade.Timestamp.Add(lookAheadWindow)
	if end.After(now) {
		end = now
	}

	candles, err := r.provider.GetHistoricalCandles(ctx, trade.Instrument, trade.Timestamp, end, r.cfg.Resolution)
	if err != nil {
		// The cascade swallows provider errors; anything surfacing here is
		// unexpected but still degrades to unknown.
		r.logger.Warn("Candle fetch failed", zap.String("trade_id", trade.ID), zap.Error(err))
		return Result{Outcome: OutcomeUnknown, Reason: "price data fetch failed"}
	}
	if ctx.Err() != nil {
		return Result{Outcome: OutcomeUnknown, Reason: "reconciliation deadline exceeded"}
	}
	if len(candles) == 0 {
		return Result{Outcome: OutcomeUnknown, Reason: "no price data available from any provider"}
	}

	return r.scan(trade, candles)
}

// scan walks candles in time order and applies the exit thresholds. When a
// single candle spans both thresholds the take-profit is checked first: an
// optimistic tie-break, kept deliberately because reversing it changes
// backtest-reported win rates.
func (r *Reconciler) scan(trade *models.Trade, candles []models.Candle) Result {
	analyzed := 0
	var last *models.Candle

	for i := range candles {
		candle := &candles[i]
		if candle.Time.Before(trade.Timestamp) {
			continue
		}
		analyzed++
		last = candle

		if trade.IsLong() {
			if trade.TakeProfit != nil && candle.High >= *trade.TakeProfit {
				return exitResult(OutcomeWin, models.ExitTakeProfit, *trade.TakeProfit, candle.Time, analyzed)
			}
			if candle.Low <= trade.StopLoss {
				return exitResult(OutcomeLoss, models.ExitStopLoss, trade.StopLoss, candle.Time, analyzed)
			}
		} else {
			if trade.TakeProfit != nil && candle.Low <= *trade.TakeProfit {
				return exitResult(OutcomeWin, models.ExitTakeProfit, *trade.TakeProfit, candle.Time, analyzed)
			}
			if candle.High >= trade.StopLoss {
				return exitResult(OutcomeLoss, models.ExitStopLoss, trade.StopLoss, candle.Time, analyzed)
			}
		}
	}

	if last == nil {
		return Result{Outcome: OutcomeUnknown, Reason: "no candles at or after trade entry"}
	}

	// Neither threshold was struck: report live status from the last close.
	favorable := last.Close > trade.EntryPrice
	if !trade.IsLong() {
		favorable = last.Close < trade.EntryPrice
	}
	outcome := OutcomeOpenLoss
	if favorable {
		outcome = OutcomeOpenProfit
	}
	return Result{
		Outcome:         outcome,
		Reason:          fmt.Sprintf("no exit threshold hit in %d candles, last close %.2f vs entry %.2f", analyzed, last.Close, trade.EntryPrice),
		CandlesAnalyzed: analyzed,
	}
}

func exitResult(outcome Outcome, exitType models.ExitType, price float64, at time.Time, analyzed int) Result {
	t := at
	p := price
	et := exitType
	label := "take-profit"
	if exitType == models.ExitStopLoss {
		label = "stop-loss"
	}
	return Result{
		Outcome:         outcome,
		Reason:          fmt.Sprintf("%s %.2f hit at %s", label, price, at.UTC().Format(time.RFC3339)),
		ExitType:        &et,
		ExitPrice:       &p,
		ExitTime:        &t,
		Validated:       true,
		CandlesAnalyzed: analyzed,
	}
}
