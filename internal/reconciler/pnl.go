package reconciler

import "paper-trade-bot-go/internal/models"

// ProfitLoss derives the realized P&L of a closed trade:
//
//	pnl = (exit - entry) / entry * positionSizeUSD
//
// sign-flipped for SHORT. It returns nil for trades without a settled exit
// price; the stop-loss or take-profit level is never substituted as a
// stand-in exit for an unsettled trade.
func ProfitLoss(trade *models.Trade) *float64 {
	if trade == nil || trade.ExitPrice == nil || trade.EntryPrice <= 0 {
		return nil
	}

	pnl := (*trade.ExitPrice - trade.EntryPrice) / trade.EntryPrice * trade.PositionSizeUSD
	if !trade.IsLong() {
		pnl = -pnl
	}
	return &pnl
}
