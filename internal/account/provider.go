package account

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"paper-trade-bot-go/internal/models"
)

// Provider supplies the account snapshot consumed by the risk gate.
type Provider interface {
	GetAccountState(ctx context.Context) (models.AccountState, error)
}

// TradeCounter is the slice of the trade store the paper fallback needs.
type TradeCounter interface {
	CountToday(ctx context.Context, mode models.Mode) (int, error)
}

// RestProvider reads the account snapshot from a broker-style REST API,
// authenticating with a session token cached through tokenSource.
type RestProvider struct {
	client *resty.Client
	tokens *tokenSource
	logger *zap.Logger
}

var _ Provider = (*RestProvider)(nil)

// NewRestProvider creates an account provider against the given base URL.
func NewRestProvider(baseURL, apiKey string, tokenTTL, timeout time.Duration, logger *zap.Logger) *RestProvider {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)

	return &RestProvider{
		client: client,
		tokens: newTokenSource(client, apiKey, tokenTTL),
		logger: logger.Named("account"),
	}
}

// accountResponse is the broker's account snapshot payload.
type accountResponse struct {
	Equity      float64 `json:"equity"`
	DailyPnL    float64 `json:"daily_pnl"`
	TradesToday int     `json:"trades_today"`
}

// GetAccountState fetches the current equity, daily P&L and trade count.
func (p *RestProvider) GetAccountState(ctx context.Context) (models.AccountState, error) {
	token, err := p.tokens.token(ctx)
	if err != nil {
		return models.AccountState{}, fmt.Errorf("failed to obtain session token: %w", err)
	}

	var result accountResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&result).
		Get("/account")
	if err != nil {
		return models.AccountState{}, fmt.Errorf("account request failed: %w", err)
	}
	if resp.IsError() {
		return models.AccountState{}, fmt.Errorf("account request failed with status %s: %s", resp.Status(), resp.String())
	}

	return models.AccountState{
		Equity:      result.Equity,
		DailyPnL:    result.DailyPnL,
		TradesToday: result.TradesToday,
	}, nil
}

// PaperProvider decorates an upstream provider with the paper-mode fallback:
// when the upstream is unavailable it answers with the configured fixed
// equity and the trade count taken from the local store, so admission keeps
// working without a broker connection. With no upstream configured it serves
// the fallback directly.
type PaperProvider struct {
	upstream Provider
	trades   TradeCounter
	equity   float64
	logger   *zap.Logger
}

var _ Provider = (*PaperProvider)(nil)

// NewPaperProvider wraps upstream (which may be nil) with the paper fallback.
func NewPaperProvider(upstream Provider, trades TradeCounter, equity float64, logger *zap.Logger) *PaperProvider {
	return &PaperProvider{
		upstream: upstream,
		trades:   trades,
		equity:   equity,
		logger:   logger.Named("account"),
	}
}

func (p *PaperProvider) GetAccountState(ctx context.Context) (models.AccountState, error) {
	if p.upstream != nil {
		state, err := p.upstream.GetAccountState(ctx)
		if err == nil {
			return state, nil
		}
		p.logger.Warn("Account API unavailable, using paper fallback state", zap.Error(err))
	}

	tradesToday, err := p.trades.CountToday(ctx, models.ModePaper)
	if err != nil {
		p.logger.Warn("Failed to count today's trades for fallback state", zap.Error(err))
		tradesToday = 0
	}

	return models.AccountState{
		Equity:      p.equity,
		DailyPnL:    0,
		TradesToday: tradesToday,
	}, nil
}
