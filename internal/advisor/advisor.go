package advisor

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"paper-trade-bot-go/internal/risk"
)

// Client asks an external judge for a second opinion on an admitted trade.
// The advisor is advisory only and fails open: when it is disabled,
// unreachable, or slow, the trade proceeds. It can veto, never admit.
type Client struct {
	client  *resty.Client
	enabled bool
	logger  *zap.Logger
}

// Opinion is the advisor verdict for a proposal.
type Opinion struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// NewClient creates an advisor client. With enabled false or an empty URL
// every opinion is an approval.
func NewClient(url string, enabled bool, timeout time.Duration, logger *zap.Logger) *Client {
	var client *resty.Client
	if enabled && url != "" {
		client = resty.New().SetBaseURL(url).SetTimeout(timeout)
	}
	return &Client{
		client:  client,
		enabled: enabled && url != "",
		logger:  logger.Named("advisor"),
	}
}

// opinionRequest is the payload sent to the judge.
type opinionRequest struct {
	Signal          string   `json:"signal"`
	Instrument      string   `json:"instrument"`
	EntryPrice      float64  `json:"entry_price"`
	StopLossPrice   float64  `json:"sl_price"`
	TakeProfitPrice *float64 `json:"tp_price,omitempty"`
	PositionSizeUSD float64  `json:"position_size_usd"`
}

// SecondOpinion submits the proposal and risk decision for review.
func (c *Client) SecondOpinion(ctx context.Context, p risk.Proposal, d risk.Decision) Opinion {
	if !c.enabled {
		return Opinion{Approved: true, Reason: "advisor disabled"}
	}

	var opinion Opinion
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(opinionRequest{
			Signal:          string(p.Signal),
			Instrument:      p.Instrument,
			EntryPrice:      p.EntryPrice,
			StopLossPrice:   p.StopLossPrice,
			TakeProfitPrice: p.TakeProfitPrice,
			PositionSizeUSD: d.PositionSizeUSD,
		}).
		SetResult(&opinion).
		Post("/opinion")
	if err != nil {
		c.logger.Warn("Advisor unreachable, failing open", zap.Error(err))
		return Opinion{Approved: true, Reason: "advisor unavailable"}
	}
	if resp.IsError() {
		c.logger.Warn("Advisor returned an error, failing open",
			zap.String("status", resp.Status()))
		return Opinion{Approved: true, Reason: "advisor unavailable"}
	}

	return opinion
}
