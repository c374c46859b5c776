package backtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratbot/internal/domain"
)

type scriptedStrategy struct {
	trades []domain.Trade
	err    error
}

func (s *scriptedStrategy) Evaluate(ctx context.Context, candles []*domain.Candle) ([]domain.Trade, domain.Signal, error) {
	return s.trades, domain.SignalHold, s.err
}

func (s *scriptedStrategy) RequiredDataPoints() int { return 1 }
func (s *scriptedStrategy) Name() string            { return "scripted" }

func TestSummarize_WinAndLossCancelOut(t *testing.T) {
	result := Summarize([]domain.Trade{
		{EntryPrice: 100, ExitPrice: 110, Quantity: 1},
		{EntryPrice: 110, ExitPrice: 100, Quantity: 1},
	}, 1000)

	assert.Equal(t, 2, result.TotalTrades)
	assert.Equal(t, 1, result.Wins)
	assert.Equal(t, 1, result.Losses)
	assert.Equal(t, 50.0, result.WinRate)
	assert.Equal(t, 0.0, result.TotalPnL)
	assert.Equal(t, 0.0, result.ReturnPercent)
	assert.Equal(t, []float64{0, 10, 0}, result.EquityCurve)
	assert.Equal(t, 10.0, result.MaxDrawdown)
}

func TestSummarize_NoTrades(t *testing.T) {
	result := Summarize(nil, 1000)

	assert.Zero(t, result.TotalTrades)
	assert.Zero(t, result.WinRate)
	assert.Zero(t, result.TotalPnL)
	assert.Zero(t, result.MaxDrawdown)
	assert.Equal(t, []float64{0}, result.EquityCurve)
}

func TestSummarize_DrawdownTracksPeak(t *testing.T) {
	result := Summarize([]domain.Trade{
		{EntryPrice: 100, ExitPrice: 130, Quantity: 1}, // +30, peak 30
		{EntryPrice: 130, ExitPrice: 120, Quantity: 1}, // -10, equity 20
		{EntryPrice: 120, ExitPrice: 105, Quantity: 1}, // -15, equity 5
		{EntryPrice: 105, ExitPrice: 115, Quantity: 1}, // +10, equity 15
	}, 100)

	assert.Equal(t, 25.0, result.MaxDrawdown, "drawdown measured from the running peak")
	assert.Equal(t, 15.0, result.TotalPnL)
	assert.Equal(t, 15.0, result.ReturnPercent)
	assert.Equal(t, 2, result.Wins)
	assert.Equal(t, 2, result.Losses)
}

func TestRun(t *testing.T) {
	strat := &scriptedStrategy{trades: []domain.Trade{
		{EntryPrice: 50, ExitPrice: 55, Quantity: 2},
	}}

	result, err := Run(context.Background(), strat, nil, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalTrades)
	assert.Equal(t, 10.0, result.TotalPnL)
	assert.Equal(t, 2.0, result.ReturnPercent)
}

func TestRun_Errors(t *testing.T) {
	_, err := Run(context.Background(), &scriptedStrategy{}, nil, 0)
	assert.Error(t, err, "non-positive capital is rejected")

	_, err = Run(context.Background(), &scriptedStrategy{err: errors.New("bad data")}, nil, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad data")
}
