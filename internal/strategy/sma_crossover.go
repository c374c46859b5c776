package strategy

import (
	"context"
	"fmt"

	"stratbot/internal/domain"
	"stratbot/internal/ports"
	"stratbot/internal/strategy/indicators"
)

type smaCrossoverParams struct {
	FastPeriod int `json:"fast_period"`
	SlowPeriod int `json:"slow_period"`
}

// smaCrossover emits BUY when the fast SMA crosses above the slow SMA and
// SELL when it crosses below. The trade list replays the crossovers over
// the full history as unit-quantity round trips for the simulator.
type smaCrossover struct {
	name   string
	fast   *indicators.MovingAverage
	slow   *indicators.MovingAverage
	params smaCrossoverParams
}

func newSMACrossover(art Artifact) (ports.Strategy, error) {
	params := smaCrossoverParams{FastPeriod: 9, SlowPeriod: 21}
	if err := decodeParams(art, &params); err != nil {
		return nil, err
	}
	if params.FastPeriod <= 0 || params.SlowPeriod <= 0 {
		return nil, fmt.Errorf("%w: sma_crossover periods must be positive", ports.ErrConfigurationError)
	}
	if params.FastPeriod >= params.SlowPeriod {
		return nil, fmt.Errorf("%w: sma_crossover fast_period must be less than slow_period", ports.ErrConfigurationError)
	}

	mk := func(period int) *indicators.MovingAverage {
		return indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: period},
			Type:            indicators.SimpleMovingAverage,
		})
	}
	name := art.Name
	if name == "" {
		name = RuleSMACrossover
	}
	return &smaCrossover{
		name:   name,
		fast:   mk(params.FastPeriod),
		slow:   mk(params.SlowPeriod),
		params: params,
	}, nil
}

func (s *smaCrossover) Name() string { return s.name }

// RequiredDataPoints needs one extra candle to detect a cross.
func (s *smaCrossover) RequiredDataPoints() int {
	return s.params.SlowPeriod + 1
}

func (s *smaCrossover) Evaluate(ctx context.Context, candles []*domain.Candle) ([]domain.Trade, domain.Signal, error) {
	if len(candles) < s.RequiredDataPoints() {
		return nil, domain.SignalHold, nil
	}

	// Replay the history to produce closed trades and the latest signal.
	var trades []domain.Trade
	var entry float64
	inPosition := false
	lastSignal := domain.SignalHold

	for i := s.params.SlowPeriod + 1; i <= len(candles); i++ {
		window := candles[:i]
		sig, err := s.signalAt(ctx, window)
		if err != nil {
			return nil, "", err
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

// signalAt computes the crossover signal for the last candle of the window.
func (s *smaCrossover) signalAt(ctx context.Context, window []*domain.Candle) (domain.Signal, error) {
	prev := window[:len(window)-1]

	fastNow, err := s.fast.Calculate(ctx, window)
	if err != nil {
		return "", err
	}
	slowNow, err := s.slow.Calculate(ctx, window)
	if err != nil {
		return "", err
	}
	fastPrev, err := s.fast.Calculate(ctx, prev)
	if err != nil {
		return "", err
	}
	slowPrev, err := s.slow.Calculate(ctx, prev)
	if err != nil {
		return "", err
	}

	switch {
	case fastPrev <= slowPrev && fastNow > slowNow:
		return domain.SignalBuy, nil
	case fastPrev >= slowPrev && fastNow < slowNow:
		return domain.SignalSell, nil
	default:
		return domain.SignalHold, nil
	}
}
