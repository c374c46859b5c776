package strategy

import (
	"context"
	"fmt"

	"stratbot/internal/domain"
	"stratbot/internal/ports"
)

// Guard wraps an untrusted strategy and enforces the contract at the
// engine boundary: panics are recovered, the returned signal is validated,
// and malformed output surfaces as ErrContractViolation. The engine maps a
// violation to HOLD for the cycle; it is never fatal.
type Guard struct {
	inner  ports.Strategy
	logger ports.Logger
}

// NewGuard wraps a strategy with contract enforcement.
func NewGuard(inner ports.Strategy, logger ports.Logger) *Guard {
	return &Guard{inner: inner, logger: logger}
}

func (g *Guard) Name() string { return g.inner.Name() }

func (g *Guard) RequiredDataPoints() int { return g.inner.RequiredDataPoints() }

// Evaluate runs the wrapped strategy and validates its output.
func (g *Guard) Evaluate(ctx context.Context, candles []*domain.Candle) (trades []domain.Trade, signal domain.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			trades, signal = nil, ""
			err = fmt.Errorf("%w: strategy %q panicked: %v", ports.ErrContractViolation, g.inner.Name(), r)
			g.logger.Error(ctx, err, "Strategy panic recovered", map[string]interface{}{"strategy": g.inner.Name()})
		}
	}()

	trades, signal, err = g.inner.Evaluate(ctx, candles)
	if err != nil {
		return nil, "", fmt.Errorf("%w: strategy %q failed: %v", ports.ErrContractViolation, g.inner.Name(), err)
	}

	parsed, perr := domain.ParseSignal(string(signal))
	if perr != nil {
		return nil, "", fmt.Errorf("%w: strategy %q returned %v", ports.ErrContractViolation, g.inner.Name(), perr)
	}

	for _, t := range trades {
		if t.Quantity <= 0 || t.EntryPrice <= 0 || t.ExitPrice <= 0 {
			return nil, "", fmt.Errorf("%w: strategy %q returned malformed trade %+v", ports.ErrContractViolation, g.inner.Name(), t)
		}
	}

	return trades, parsed, nil
}
