// Package backtest is the offline simulator: it feeds historical candles
// to a strategy contract and folds the closed trades it reports into an
// equity curve and summary metrics. It shares the contract with the live
// engine but touches neither the exchange nor the ledger store.
package backtest

import (
	"context"
	"fmt"

	"stratbot/internal/domain"
	"stratbot/internal/ports"
)

// Result holds the outcome of a simulation run.
type Result struct {
	TotalTrades   int
	Wins          int
	Losses        int
	WinRate       float64 // percent
	TotalPnL      float64
	ReturnPercent float64
	MaxDrawdown   float64 // peak-to-trough decline of the equity curve
	EquityCurve   []float64
	TradePnLs     []float64
}

// Run evaluates the strategy over the full candle history and aggregates
// the trades it reports. initialCapital only scales ReturnPercent.
func Run(ctx context.Context, strat ports.Strategy, candles []*domain.Candle, initialCapital float64) (*Result, error) {
	if initialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive")
	}

	trades, _, err := strat.Evaluate(ctx, candles)
	if err != nil {
		return nil, fmt.Errorf("strategy evaluation failed: %w", err)
	}

	return Summarize(trades, initialCapital), nil
}

// Summarize folds a list of closed trades into simulation metrics.
func Summarize(trades []domain.Trade, initialCapital float64) *Result {
	result := &Result{
		EquityCurve: []float64{0},
	}

	equity := 0.0
	peak := 0.0
	for _, trade := range trades {
		pnl := trade.PnL()
		result.TotalPnL += pnl
		result.TradePnLs = append(result.TradePnLs, pnl)

		equity += pnl
		result.EquityCurve = append(result.EquityCurve, equity)
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > result.MaxDrawdown {
			result.MaxDrawdown = dd
		}

		if pnl > 0 {
			result.Wins++
		} else {
			result.Losses++
		}
	}

	result.TotalTrades = len(trades)
	if result.TotalTrades > 0 {
		result.WinRate = float64(result.Wins) / float64(result.TotalTrades) * 100
	}
	result.ReturnPercent = result.TotalPnL / initialCapital * 100

	return result
}
