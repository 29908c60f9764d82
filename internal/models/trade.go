package models

import (
	"time"

	"github.com/google/uuid"
)

// Signal is the direction of a proposed trade.
type Signal string

const (
	SignalLong  Signal = "LONG"
	SignalShort Signal = "SHORT"
)

// Mode distinguishes simulated trades from live ones.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// Action is the admission outcome recorded on a trade.
type Action string

const (
	ActionExecuted Action = "executed"
	ActionRejected Action = "rejected"
)

// ExitType indicates which threshold closed a trade.
type ExitType string

const (
	ExitTakeProfit ExitType = "TAKE_PROFIT"
	ExitStopLoss   ExitType = "STOP_LOSS"
)

// RiskCheck is the embedded result of the risk-gate evaluation at admission
// time. RiskReward is nil when the signal carried no take-profit.
type RiskCheck struct {
	SLDistancePercent float64  `json:"sl_distance_percent"`
	RiskReward        *float64 `json:"risk_reward,omitempty"`
	PositionSizeUSD   float64  `json:"position_size_usd"`
}

// Trade is the central record of the pipeline. A trade is written once at
// admission and is immutable afterwards except for the exit-field group,
// which is set at most once by reconciliation.
type Trade struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Timestamp  time.Time `json:"timestamp" gorm:"not null;index"`
	Signal     Signal    `json:"signal" gorm:"not null;index"`
	Instrument string    `json:"instrument" gorm:"not null"`
	EntryPrice float64   `json:"entry_price" gorm:"not null"`
	StopLoss   float64   `json:"stop_loss" gorm:"not null"`
	TakeProfit *float64  `json:"take_profit,omitempty"`

	PositionSizeUSD float64 `json:"position_size_usd"`
	Mode            Mode    `json:"mode" gorm:"index"`
	Success         bool    `json:"success"`
	Action          Action  `json:"action"`
	Reason          string  `json:"reason"`

	RiskCheck RiskCheck `json:"risk_check" gorm:"embedded;embeddedPrefix:risk_"`

	// Exit group, nil while the trade is open. ExitPrice presence marks the
	// trade terminal; it must never be re-reconciled.
	ExitType    *ExitType  `json:"exit_type,omitempty"`
	ExitPrice   *float64   `json:"exit_price,omitempty"`
	ExitTime    *time.Time `json:"exit_time,omitempty"`
	Validated   bool       `json:"validated"`
	ValidatedBy string     `json:"validated_by,omitempty"`
}

// NewTradeID returns a fresh opaque trade identifier.
func NewTradeID() string {
	return uuid.NewString()
}

// IsClosed reports whether the trade has a settled exit.
func (t *Trade) IsClosed() bool {
	return t.ExitPrice != nil
}

// IsLong reports whether the trade direction is LONG.
func (t *Trade) IsLong() bool {
	return t.Signal == SignalLong
}
