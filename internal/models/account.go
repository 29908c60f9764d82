package models

// AccountState is a read-only snapshot of the account at evaluation time.
// It is consumed by the risk gate and never persisted by the core.
type AccountState struct {
	Equity      float64 `json:"equity"`
	DailyPnL    float64 `json:"daily_pnl"`
	TradesToday int     `json:"trades_today"`
}
