package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"stratbot/internal/domain"
	"stratbot/internal/ports"
)

// Sequencer is the state machine that turns signals and risk breaches
// into close/open order transitions. States are derived from the ledger's
// signed quantity: FLAT (0), LONG (>0), SHORT (<0). At most one
// order-placing call happens per transition and each is awaited before
// the cycle continues.
type Sequencer struct {
	exchange    ports.ExchangeClient
	repo        ports.LedgerRepository
	risk        *RiskEngine
	recon       *Reconciler
	logger      ports.Logger
	symbol      string
	settleDelay time.Duration
	timeout     time.Duration
}

// NewSequencer creates the execution sequencer for one deployment.
func NewSequencer(
	exchange ports.ExchangeClient,
	repo ports.LedgerRepository,
	risk *RiskEngine,
	recon *Reconciler,
	logger ports.Logger,
	symbol string,
	settleDelay time.Duration,
	timeout time.Duration,
) *Sequencer {
	return &Sequencer{
		exchange:    exchange,
		repo:        repo,
		risk:        risk,
		recon:       recon,
		logger:      logger,
		symbol:      symbol,
		settleDelay: settleDelay,
		timeout:     timeout,
	}
}

// Step applies one cycle's decision to the ledger. Risk breaches are
// checked before the signal and force a close with no reopen this cycle.
// A reversal signal closes first, persists, waits for settlement, then
// reopens the opposite side only once the exchange confirms flat.
func (s *Sequencer) Step(ctx context.Context, ledger *domain.Ledger, signal domain.Signal, price float64) error {
	// Exit logic runs first: a position is never left open past a breach.
	if !ledger.IsFlat() {
		if breach, reason := s.risk.CheckExit(ledger, price); breach {
			s.logger.Info(ctx, "Risk threshold breached, closing position", map[string]interface{}{
				"reason": reason, "entry": ledger.EntryPrice, "price": price,
				"move": s.risk.FavorableMove(ledger, price),
			})
			return s.closePosition(ctx, ledger, price, reason)
		}
	}

	switch signal {
	case domain.SignalBuy:
		if ledger.IsShort() {
			confirmed, err := s.reverse(ctx, ledger, price)
			if err != nil {
				return err
			}
			if !confirmed {
				return nil
			}
		}
		if ledger.IsFlat() {
			return s.openPosition(ctx, ledger, domain.Buy, price)
		}
	case domain.SignalSell:
		if ledger.IsLong() {
			confirmed, err := s.reverse(ctx, ledger, price)
			if err != nil {
				return err
			}
			if !confirmed {
				return nil
			}
		}
		if ledger.IsFlat() {
			return s.openPosition(ctx, ledger, domain.Sell, price)
		}
	case domain.SignalHold:
		// No breach, no signal: strict no-op.
	}
	return nil
}

// reverse closes the current side and prepares for a same-cycle reopen:
// the close is persisted, a settlement pause elapses, and the exchange is
// re-checked so the reopen sizes off settled post-close state. The returned
// bool reports whether the exchange confirmed flat; when the re-check fails
// or still shows exposure, the reopen is deferred to the next cycle.
func (s *Sequencer) reverse(ctx context.Context, ledger *domain.Ledger, price float64) (bool, error) {
	if err := s.closePosition(ctx, ledger, price, domain.CloseReasonReversal); err != nil {
		return false, err
	}

	if err := sleepCtx(ctx, s.settleDelay); err != nil {
		return false, err
	}

	if synced := s.recon.Sync(ctx, ledger); !synced || !ledger.IsFlat() {
		s.logger.Warn(ctx, "Post-close position not confirmed flat, deferring reopen to next cycle", map[string]interface{}{
			"synced": synced, "quantity": ledger.Quantity,
		})
		return false, nil
	}
	return true, nil
}

func (s *Sequencer) closePosition(ctx context.Context, ledger *domain.Ledger, price float64, reason domain.CloseReason) error {
	closeSide := domain.Sell
	if ledger.IsShort() {
		closeSide = domain.Buy
	}
	quantity := math.Abs(ledger.Quantity)

	orderCtx, cancel := context.WithTimeout(ctx, s.timeout)
	order, err := s.exchange.PlaceMarketOrder(orderCtx, s.symbol, closeSide, quantity, true)
	cancel()
	if err != nil {
		// Position stays open; reconciliation re-checks it next cycle
		// before anything is retried.
		return fmt.Errorf("closing %s position failed: %w", s.symbol, err)
	}

	exitPrice := order.AvgPrice
	if exitPrice == 0 {
		exitPrice = price
	}

	pnl := ledger.Close(exitPrice)
	s.logger.Info(ctx, "Position closed", map[string]interface{}{
		"reason": reason, "exitPrice": exitPrice, "quantity": quantity,
		"tradePnL": pnl, "realizedPnL": ledger.RealizedPnL,
	})

	if err := s.repo.Save(ctx, ledger); err != nil {
		return fmt.Errorf("%w: persisting close: %w", ports.ErrPersistence, err)
	}
	return nil
}

func (s *Sequencer) openPosition(ctx context.Context, ledger *domain.Ledger, side domain.OrderSide, price float64) error {
	sizeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	quantity, err := s.risk.PositionSize(sizeCtx, price)
	cancel()
	if err != nil {
		return fmt.Errorf("sizing %s position failed: %w", s.symbol, err)
	}
	if quantity <= 0 {
		s.logger.Warn(ctx, "Sized quantity below minimum lot, not opening", map[string]interface{}{
			"symbol": s.symbol, "price": price,
		})
		return nil
	}

	orderCtx, cancel := context.WithTimeout(ctx, s.timeout)
	order, err := s.exchange.PlaceMarketOrder(orderCtx, s.symbol, side, quantity, false)
	cancel()
	if err != nil {
		return fmt.Errorf("opening %s position failed: %w", s.symbol, err)
	}

	entryPrice := order.AvgPrice
	if entryPrice == 0 {
		entryPrice = price
	}

	signedQty := quantity
	if side == domain.Sell {
		signedQty = -quantity
	}
	ledger.SetPosition(signedQty, entryPrice, 0)

	s.logger.Info(ctx, "Position opened", map[string]interface{}{
		"side": side, "quantity": quantity, "entryPrice": entryPrice,
	})

	if err := s.repo.Save(ctx, ledger); err != nil {
		return fmt.Errorf("%w: persisting open: %w", ports.ErrPersistence, err)
	}
	return nil
}

// sleepCtx sleeps for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
