// Package engine contains the autonomous position-reconciliation and
// execution loop that runs one strategy deployment: reconcile the ledger
// against exchange truth, evaluate risk and the strategy signal, sequence
// order transitions, persist, sleep, repeat. The loop survives every
// cycle failure without terminating.
package engine

import (
	"context"
	"time"

	"stratbot/internal/domain"
	"stratbot/internal/ports"
)

// Reconciler merges exchange-reported truth into the ledger each cycle.
// The exchange owns position size and entry price; reconciliation is what
// absorbs drift from manual intervention, partial fills or liquidations
// the process did not itself cause.
type Reconciler struct {
	exchange ports.ExchangeClient
	logger   ports.Logger
	symbol   string
	timeout  time.Duration
}

// NewReconciler creates a reconciler for one deployment's symbol.
func NewReconciler(exchange ports.ExchangeClient, logger ports.Logger, symbol string, timeout time.Duration) *Reconciler {
	return &Reconciler{exchange: exchange, logger: logger, symbol: symbol, timeout: timeout}
}

// Sync queries the exchange for the live position and overwrites the
// ledger's quantity, entry price and unrealized PnL with what it reports.
// A nil position means the exchange is flat and the ledger is forced flat
// too. If the query fails the ledger keeps its last known values and the
// cycle proceeds (stale-but-available); the returned bool reports whether
// exchange truth was actually applied.
func (r *Reconciler) Sync(ctx context.Context, ledger *domain.Ledger) bool {
	queryCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	pos, err := r.exchange.GetPosition(queryCtx, r.symbol)
	if err != nil {
		r.logger.Warn(ctx, "Position sync failed, keeping last known ledger state", map[string]interface{}{
			"symbol": r.symbol, "error": err.Error(),
		})
		return false
	}

	if pos == nil {
		if !ledger.IsFlat() {
			r.logger.Info(ctx, "Exchange reports flat, flattening ledger", map[string]interface{}{
				"symbol": r.symbol, "previousQuantity": ledger.Quantity,
			})
		}
		ledger.SetPosition(0, 0, 0)
		return true
	}

	if pos.Quantity != 0 && pos.EntryPrice == 0 {
		// Transient settlement snapshot: the exchange reports exposure but
		// no entry price yet. Storing it would break the entry-price
		// invariant, so keep the last known state and retry next cycle.
		r.logger.Warn(ctx, "Exchange position not yet settled, keeping last known ledger state", map[string]interface{}{
			"symbol": r.symbol, "exchangeQty": pos.Quantity,
		})
		return false
	}

	if pos.Quantity != ledger.Quantity || pos.EntryPrice != ledger.EntryPrice {
		r.logger.Info(ctx, "Ledger adjusted to exchange truth", map[string]interface{}{
			"symbol":        r.symbol,
			"ledgerQty":     ledger.Quantity,
			"exchangeQty":   pos.Quantity,
			"ledgerEntry":   ledger.EntryPrice,
			"exchangeEntry": pos.EntryPrice,
		})
	}
	ledger.SetPosition(pos.Quantity, pos.EntryPrice, pos.UnrealizedPnL)
	return true
}
