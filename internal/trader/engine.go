package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paper-trade-bot-go/internal/account"
	"paper-trade-bot-go/internal/advisor"
	"paper-trade-bot-go/internal/config"
	"paper-trade-bot-go/internal/models"
	"paper-trade-bot-go/internal/reconciler"
	"paper-trade-bot-go/internal/risk"
	"paper-trade-bot-go/internal/store"
)

// SignalRequest is the admission input received from the signal source.
type SignalRequest struct {
	Signal          string   `json:"signal"`
	Symbol          string   `json:"symbol"`
	EntryPrice      float64  `json:"entry_price"`
	StopLossPrice   float64  `json:"sl_price"`
	TakeProfitPrice *float64 `json:"tp_price,omitempty"`
}

// AdmissionResponse reports the gate verdict for a signal.
type AdmissionResponse struct {
	TradeID           string   `json:"trade_id"`
	Allowed           bool     `json:"allowed"`
	Reason            string   `json:"reason"`
	PositionSizeUSD   *float64 `json:"position_size_usd,omitempty"`
	SLDistancePercent *float64 `json:"sl_distance_percent,omitempty"`
	RiskReward        *float64 `json:"risk_reward,omitempty"`
}

// Engine wires the admission gate and the outcome reconciliation loop
// around the trade store. It owns no mutable trading state of its own; every
// evaluation is a computation over the store and the injected providers.
type Engine struct {
	UUID      string
	StartTime time.Time

	logger     *zap.Logger
	cfg        *config.Config
	trades     store.TradeStore
	riskEngine *risk.Engine
	account    account.Provider
	reconciler *reconciler.Reconciler
	advisor    *advisor.Client
}

// NewEngine creates the trading engine.
func NewEngine(
	logger *zap.Logger,
	cfg *config.Config,
	trades store.TradeStore,
	riskEngine *risk.Engine,
	accountProvider account.Provider,
	rec *reconciler.Reconciler,
	adv *advisor.Client,
) *Engine {
	return &Engine{
		UUID:       uuid.NewString(),
		StartTime:  time.Now().UTC(),
		logger:     logger.Named("engine"),
		cfg:        cfg,
		trades:     trades,
		riskEngine: riskEngine,
		account:    accountProvider,
		reconciler: rec,
		advisor:    adv,
	}
}

// Mode returns the configured trading mode.
func (e *Engine) Mode() models.Mode {
	if e.cfg.Trading.Mode == string(models.ModeLive) {
		return models.ModeLive
	}
	return models.ModePaper
}

// HandleSignal runs the full admission path for an incoming signal and
// records the resulting trade, admitted or rejected. The position size of an
// admitted trade always comes from the risk formula, never from the caller.
func (e *Engine) HandleSignal(ctx context.Context, req SignalRequest) (*AdmissionResponse, error) {
	proposal := risk.Proposal{
		Signal:          models.Signal(req.Signal),
		Instrument:      req.Symbol,
		EntryPrice:      req.EntryPrice,
		StopLossPrice:   req.StopLossPrice,
		TakeProfitPrice: req.TakeProfitPrice,
	}
	if proposal.Instrument == "" {
		proposal.Instrument = e.cfg.Trading.Instrument
	}

	l := e.logger.With(
		zap.String("signal", req.Signal),
		zap.String("instrument", proposal.Instrument),
		zap.Float64("entry_price", req.EntryPrice),
	)

	if ok, reason := risk.ValidateTradeSignal(proposal); !ok {
		l.Warn("Signal failed validation", zap.String("reason", reason))
		return e.recordRejection(ctx, proposal, risk.Decision{Reason: reason})
	}

	state, err := e.account.GetAccountState(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read account state: %w", err)
	}

	decision := e.riskEngine.CanOpenNewTrade(proposal, state)
	if !decision.Allowed {
		l.Info("Signal rejected by risk gate", zap.String("reason", decision.Reason))
		return e.recordRejection(ctx, proposal, decision)
	}

	if opinion := e.advisor.SecondOpinion(ctx, proposal, decision); !opinion.Approved {
		l.Info("Signal vetoed by advisor", zap.String("reason", opinion.Reason))
		decision.Allowed = false
		decision.Reason = "advisor veto: " + opinion.Reason
		return e.recordRejection(ctx, proposal, decision)
	}

	trade := e.newTrade(proposal, decision)
	trade.Success = true
	trade.Action = models.ActionExecuted
	trade.PositionSizeUSD = decision.PositionSizeUSD
	if err := e.trades.Create(ctx, trade); err != nil {
		return nil, fmt.Errorf("could not record admitted trade: %w", err)
	}

	l.Info("Trade admitted",
		zap.String("trade_id", trade.ID),
		zap.Float64("position_size_usd", decision.PositionSizeUSD),
	)

	return admissionResponse(trade.ID, decision), nil
}

// recordRejection persists a rejected trade so the decision trail stays
// queryable. Rejected trades never acquire exit fields and are excluded
// from P&L.
func (e *Engine) recordRejection(ctx context.Context, p risk.Proposal, d risk.Decision) (*AdmissionResponse, error) {
	trade := e.newTrade(p, d)
	trade.Success = false
	trade.Action = models.ActionRejected
	if err := e.trades.Create(ctx, trade); err != nil {
		return nil, fmt.Errorf("could not record rejected trade: %w", err)
	}
	return admissionResponse(trade.ID, d), nil
}

func (e *Engine) newTrade(p risk.Proposal, d risk.Decision) *models.Trade {
	return &models.Trade{
		ID:         models.NewTradeID(),
		Timestamp:  time.Now().UTC(),
		Signal:     p.Signal,
		Instrument: p.Instrument,
		EntryPrice: p.EntryPrice,
		StopLoss:   p.StopLossPrice,
		TakeProfit: p.TakeProfitPrice,
		Mode:       e.Mode(),
		Reason:     d.Reason,
		RiskCheck: models.RiskCheck{
			SLDistancePercent: d.SLDistancePercent,
			RiskReward:        d.RiskReward,
			PositionSizeUSD:   d.PositionSizeUSD,
		},
	}
}

func admissionResponse(tradeID string, d risk.Decision) *AdmissionResponse {
	resp := &AdmissionResponse{
		TradeID:    tradeID,
		Allowed:    d.Allowed,
		Reason:     d.Reason,
		RiskReward: d.RiskReward,
	}
	// The stop distance is reported whenever the gates got far enough to
	// compute it, rejections included; a position size only exists on an
	// admitted trade.
	if d.SLDistancePercent > 0 {
		dist := d.SLDistancePercent
		resp.SLDistancePercent = &dist
	}
	if d.Allowed {
		size := d.PositionSizeUSD
		resp.PositionSizeUSD = &size
	}
	return resp
}

// Run drives the reconciliation loop until the context is cancelled. A
// failing iteration is logged and the loop carries on; nothing here
// terminates the process.
func (e *Engine) Run(ctx context.Context) {
	interval := e.cfg.Reconciler.PollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting reconciliation loop", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping reconciliation loop...")
			return
		case <-ticker.C:
			if err := e.reconcileOpenTrades(ctx); err != nil {
				e.logger.Error("Reconciliation sweep failed", zap.Error(err))
			}
		}
	}
}

// reconcileOpenTrades evaluates every open admitted trade once. Trades are
// independent, so they are reconciled concurrently; the store's check-and-set
// on exit presence makes a racing duplicate close harmless.
func (e *Engine) reconcileOpenTrades(ctx context.Context) error {
	open, err := e.trades.FindOpen(ctx, e.Mode())
	if err != nil {
		return fmt.Errorf("could not query open trades: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	e.logger.Info("Reconciling open trades", zap.Int("count", len(open)))

	var wg sync.WaitGroup
	for i := range open {
		wg.Add(1)
		go func(trade models.Trade) {
			defer wg.Done()
			e.reconcileTrade(ctx, &trade)
		}(open[i])
	}
	wg.Wait()

	return nil
}

// reconcileTrade runs one trade through the outcome state machine and
// applies a settled exit to the store.
func (e *Engine) reconcileTrade(ctx context.Context, trade *models.Trade) {
	tctx, cancel := context.WithTimeout(ctx, e.cfg.Reconciler.Timeout)
	defer cancel()

	result := e.reconciler.Reconcile(tctx, trade)

	l := e.logger.With(
		zap.String("trade_id", trade.ID),
		zap.String("outcome", string(result.Outcome)),
		zap.String("reason", result.Reason),
	)

	switch result.Outcome {
	case reconciler.OutcomeWin, reconciler.OutcomeLoss:
		err := e.trades.UpdateExit(ctx, trade.ID, store.Exit{
			Type:        *result.ExitType,
			Price:       *result.ExitPrice,
			Time:        *result.ExitTime,
			Validated:   result.Validated,
			ValidatedBy: reconciler.ValidatedBy,
		})
		if errors.Is(err, store.ErrAlreadyClosed) {
			l.Debug("Trade was closed concurrently, skipping")
			return
		}
		if err != nil {
			l.Error("Failed to apply exit", zap.Error(err))
			return
		}
		l.Info("Trade settled", zap.Int("candles_analyzed", result.CandlesAnalyzed))
	case reconciler.OutcomePending:
		l.Debug("Trade too recent, will retry next sweep")
	default:
		l.Debug("Trade not settled", zap.Int("candles_analyzed", result.CandlesAnalyzed))
	}
}

// TotalPnL sums realized P&L over all settled trades in the engine's mode.
func (e *Engine) TotalPnL(ctx context.Context) (float64, error) {
	closed, err := e.trades.FindClosed(ctx, e.Mode())
	if err != nil {
		return 0, fmt.Errorf("could not query closed trades: %w", err)
	}

	var total float64
	for i := range closed {
		if pnl := reconciler.ProfitLoss(&closed[i]); pnl != nil {
			total += *pnl
		}
	}
	return total, nil
}
