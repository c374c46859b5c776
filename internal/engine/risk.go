package engine

import (
	"context"
	"fmt"

	"stratbot/internal/domain"
	"stratbot/internal/ports"
)

// RiskConfig holds the per-deployment risk parameters.
type RiskConfig struct {
	Amount     float64 // notional base
	Leverage   int
	StopLoss   float64 // fractional, e.g. 0.02
	TakeProfit float64 // fractional, e.g. 0.05
}

// RiskEngine evaluates stop-loss/take-profit thresholds and computes
// order sizing. Threshold breaches take precedence over signal-driven
// logic within a cycle: a position is never left open past a breach.
type RiskEngine struct {
	exchange ports.ExchangeClient
	symbol   string
	config   RiskConfig
}

// NewRiskEngine creates a risk engine for one deployment.
func NewRiskEngine(exchange ports.ExchangeClient, symbol string, config RiskConfig) *RiskEngine {
	return &RiskEngine{exchange: exchange, symbol: symbol, config: config}
}

// FavorableMove returns the signed fraction the price has moved in the
// position's favor: (price-entry)/entry for longs, (entry-price)/entry
// for shorts. Zero for a flat ledger.
func (r *RiskEngine) FavorableMove(ledger *domain.Ledger, price float64) float64 {
	if ledger.IsFlat() || ledger.EntryPrice == 0 {
		return 0
	}
	if ledger.IsLong() {
		return (price - ledger.EntryPrice) / ledger.EntryPrice
	}
	return (ledger.EntryPrice - price) / ledger.EntryPrice
}

// CheckExit reports whether the position must be closed immediately due
// to a threshold breach, and why. Both comparisons are inclusive.
func (r *RiskEngine) CheckExit(ledger *domain.Ledger, price float64) (bool, domain.CloseReason) {
	if ledger.IsFlat() {
		return false, ""
	}
	move := r.FavorableMove(ledger, price)
	switch {
	case move <= -r.config.StopLoss:
		return true, domain.CloseReasonStopLoss
	case move >= r.config.TakeProfit:
		return true, domain.CloseReasonTakeProfit
	default:
		return false, ""
	}
}

// PositionSize computes the exchange-precision quantity for a new
// position at the given price: notional = amount * leverage, raw =
// notional / price, rounded down to the symbol's lot step. A zero result
// means the minimum lot is not met and no position should be opened.
func (r *RiskEngine) PositionSize(ctx context.Context, price float64) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("cannot size position at price %f", price)
	}
	raw := (r.config.Amount * float64(r.config.Leverage)) / price
	return r.exchange.RoundQuantity(ctx, r.symbol, raw)
}
