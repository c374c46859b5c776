package strategy

import (
	"context"
	"fmt"

	"stratbot/internal/domain"
	"stratbot/internal/ports"
	"stratbot/internal/strategy/indicators"
)

type rsiReversionParams struct {
	Period     int     `json:"period"`
	Overbought float64 `json:"overbought"`
	Oversold   float64 `json:"oversold"`
}

// rsiReversion is a mean-reversion rule: BUY when RSI drops to the
// oversold threshold, SELL when it reaches overbought.
type rsiReversion struct {
	name   string
	rsi    *indicators.RSI
	params rsiReversionParams
}

func newRSIReversion(art Artifact) (ports.Strategy, error) {
	params := rsiReversionParams{Period: 14, Overbought: 70, Oversold: 30}
	if err := decodeParams(art, &params); err != nil {
		return nil, err
	}
	if params.Period <= 0 {
		return nil, fmt.Errorf("%w: rsi_reversion period must be positive", ports.ErrConfigurationError)
	}
	if params.Oversold < 0 || params.Overbought > 100 || params.Overbought <= params.Oversold {
		return nil, fmt.Errorf("%w: rsi_reversion thresholds invalid (need 0 <= oversold < overbought <= 100)", ports.ErrConfigurationError)
	}

	name := art.Name
	if name == "" {
		name = RuleRSIReversion
	}
	return &rsiReversion{
		name: name,
		rsi: indicators.NewRSI(indicators.RSIConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: params.Period},
			Overbought:      params.Overbought,
			Oversold:        params.Oversold,
		}),
		params: params,
	}, nil
}

func (r *rsiReversion) Name() string { return r.name }

func (r *rsiReversion) RequiredDataPoints() int {
	return r.params.Period + 1
}

func (r *rsiReversion) Evaluate(ctx context.Context, candles []*domain.Candle) ([]domain.Trade, domain.Signal, error) {
	if len(candles) < r.RequiredDataPoints() {
		return nil, domain.SignalHold, nil
	}

	var trades []domain.Trade
	var entry float64
	inPosition := false
	lastSignal := domain.SignalHold

	for i := r.RequiredDataPoints(); i <= len(candles); i++ {
		window := candles[:i]
		value, err := r.rsi.Calculate(ctx, window)
		if err != nil {
			return nil, "", err
		}

		sig := domain.SignalHold
		if r.rsi.IsOversold(value) {
			sig = domain.SignalBuy
		} else if r.rsi.IsOverbought(value) {
			sig = domain.SignalSell
		}
		if i == len(candles) {
			lastSignal = sig
		}

		price := window[len(window)-1].Close
		switch sig {
		case domain.SignalBuy:
			if !inPosition {
				entry = price
				inPosition = true
			}
		case domain.SignalSell:
			if inPosition {
				trades = append(trades, domain.Trade{EntryPrice: entry, ExitPrice: price, Quantity: 1})
				inPosition = false
			}
		}
	}

	return trades, lastSignal, nil
}
