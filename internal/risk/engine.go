package risk

import (
	"errors"
	"fmt"
	"math"

	"paper-trade-bot-go/internal/models"
)

// ErrInvalidInput marks malformed risk-check arguments. Calls failing with it
// are never retried.
var ErrInvalidInput = errors.New("invalid risk input")

// Strategy constants. These are part of the trading strategy itself and must
// not be overridable by caller input.
const (
	maxSLDistancePercent = 0.6  // widest stop distance accepted, percent of entry
	minRiskReward        = 2.0  // lowest acceptable reward/risk ratio
	minPositionSizeUSD   = 10.0 // smallest position worth recording
)

// Config holds the configurable admission thresholds.
type Config struct {
	RiskPercent         float64
	MaxTradesPerDay     int
	MaxDailyLossPercent float64
}

// DefaultConfig returns the standard paper-trading thresholds.
func DefaultConfig() Config {
	return Config{
		RiskPercent:         1.0,
		MaxTradesPerDay:     5,
		MaxDailyLossPercent: 3.0,
	}
}

// Proposal is a trade signal submitted for admission.
type Proposal struct {
	Signal          models.Signal
	Instrument      string
	EntryPrice      float64
	StopLossPrice   float64
	TakeProfitPrice *float64
}

// Decision is the outcome of the admission gates. A rejection is a valid
// result with a human-readable reason, not an error.
type Decision struct {
	Allowed           bool
	Reason            string
	PositionSizeUSD   float64
	SLDistancePercent float64
	RiskReward        *float64
}

// Engine evaluates trade proposals against the risk rules. All methods are
// pure computations over their inputs.
type Engine struct {
	cfg Config
}

// NewEngine creates a risk engine with the given thresholds.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// SLDistancePercent returns the stop distance as a percentage of entry.
func SLDistancePercent(entry, stop float64) float64 {
	return math.Abs(entry-stop) / entry * 100
}

// CalculatePositionSize derives the position size in USD from account equity
// and the planned stop distance:
//
//	positionSizeUSD = equity * riskPercent / slDistancePercent
//
// It returns ErrInvalidInput when any input is non-positive or when entry
// equals stop (the distance would divide by zero). The result is floored at
// zero.
func CalculatePositionSize(equity, riskPercent, entryPrice, stopLossPrice float64) (float64, error) {
	if equity <= 0 || riskPercent <= 0 || entryPrice <= 0 || stopLossPrice <= 0 {
		return 0, fmt.Errorf("%w: equity, risk percent and prices must be positive", ErrInvalidInput)
	}
	if entryPrice == stopLossPrice {
		return 0, fmt.Errorf("%w: entry equals stop, stop distance is zero", ErrInvalidInput)
	}

	slDistance := SLDistancePercent(entryPrice, stopLossPrice)
	size := equity * riskPercent / slDistance
	return math.Max(0, size), nil
}

// ValidateTradeSignal checks that a proposal is structurally sound: a known
// direction, positive prices, and stop/target on the correct side of entry
// for that direction.
func ValidateTradeSignal(p Proposal) (bool, string) {
	if p.Signal != models.SignalLong && p.Signal != models.SignalShort {
		return false, fmt.Sprintf("unknown signal direction %q", p.Signal)
	}
	if p.EntryPrice <= 0 || p.StopLossPrice <= 0 {
		return false, "entry and stop-loss prices must be positive"
	}
	if p.TakeProfitPrice != nil && *p.TakeProfitPrice <= 0 {
		return false, "take-profit price must be positive"
	}

	if p.Signal == models.SignalLong {
		if p.StopLossPrice >= p.EntryPrice {
			return false, "LONG stop-loss must be below entry"
		}
		if p.TakeProfitPrice != nil && *p.TakeProfitPrice <= p.EntryPrice {
			return false, "LONG take-profit must be above entry"
		}
	} else {
		if p.StopLossPrice <= p.EntryPrice {
			return false, "SHORT stop-loss must be above entry"
		}
		if p.TakeProfitPrice != nil && *p.TakeProfitPrice >= p.EntryPrice {
			return false, "SHORT take-profit must be below entry"
		}
	}

	return true, ""
}

// CanOpenNewTrade runs the sequential admission gates, short-circuiting on
// the first failure. The check order is fixed: it defines which reason is
// reported when several rules are violated at once.
func (e *Engine) CanOpenNewTrade(p Proposal, account models.AccountState) Decision {
	// 1. Input validity.
	if account.Equity <= 0 || p.EntryPrice <= 0 || p.StopLossPrice <= 0 {
		return Decision{Reason: "invalid input: equity, entry and stop-loss must be positive"}
	}

	// 2. Trade-count gate.
	if account.TradesToday >= e.cfg.MaxTradesPerDay {
		return Decision{Reason: fmt.Sprintf("daily trade limit reached (%d/%d)",
			account.TradesToday, e.cfg.MaxTradesPerDay)}
	}

	// 3. Daily-loss gate.
	lossLimit := -(account.Equity * e.cfg.MaxDailyLossPercent / 100)
	if account.DailyPnL <= lossLimit {
		return Decision{Reason: fmt.Sprintf("daily loss %.2f breaches limit %.2f (%.1f%% of equity)",
			account.DailyPnL, lossLimit, e.cfg.MaxDailyLossPercent)}
	}

	// 4. Stop-distance gate.
	slDistance := SLDistancePercent(p.EntryPrice, p.StopLossPrice)
	if slDistance > maxSLDistancePercent {
		return Decision{
			Reason:            fmt.Sprintf("stop distance %.2f%% exceeds maximum %.2f%%", slDistance, maxSLDistancePercent),
			SLDistancePercent: slDistance,
		}
	}

	// 5. Risk:Reward gate, only when a take-profit is supplied.
	var riskReward *float64
	if p.TakeProfitPrice != nil {
		risk := math.Abs(p.EntryPrice - p.StopLossPrice)
		reward := math.Abs(*p.TakeProfitPrice - p.EntryPrice)
		rr := reward / risk
		riskReward = &rr
		if rr < minRiskReward {
			return Decision{
				Reason:            fmt.Sprintf("risk:reward %.2f below minimum %.1f", rr, minRiskReward),
				SLDistancePercent: slDistance,
				RiskReward:        riskReward,
			}
		}
	}

	// 6. Minimum-size gate.
	size, err := CalculatePositionSize(account.Equity, e.cfg.RiskPercent, p.EntryPrice, p.StopLossPrice)
	if err != nil {
		return Decision{Reason: err.Error(), SLDistancePercent: slDistance, RiskReward: riskReward}
	}
	if size < minPositionSizeUSD {
		return Decision{
			Reason:            fmt.Sprintf("position size $%.2f below minimum $%.0f", size, minPositionSizeUSD),
			SLDistancePercent: slDistance,
			RiskReward:        riskReward,
		}
	}

	return Decision{
		Allowed:           true,
		Reason:            "all risk checks passed",
		PositionSizeUSD:   size,
		SLDistancePercent: slDistance,
		RiskReward:        riskReward,
	}
}
