package engine

import (
	"context"
	"fmt"
	"time"

	"stratbot/config"
	"stratbot/internal/domain"
	"stratbot/internal/ports"
)

// Runner owns one deployment's polling loop. Each cycle is strictly
// sequential: reconcile, fetch, decide, risk-check, execute, persist,
// sleep. Every cycle failure is converted into a persisted error state
// plus a backoff sleep; the loop only ends when the context does.
type Runner struct {
	cfg      *config.Config
	logger   ports.Logger
	exchange ports.ExchangeClient
	repo     ports.LedgerRepository
	strategy ports.Strategy

	recon *Reconciler
	seq   *Sequencer
}

// NewRunner wires the engine for one deployment.
func NewRunner(
	cfg *config.Config,
	logger ports.Logger,
	exchange ports.ExchangeClient,
	repo ports.LedgerRepository,
	strat ports.Strategy,
) (*Runner, error) {
	if cfg == nil || logger == nil || exchange == nil || repo == nil || strat == nil {
		return nil, fmt.Errorf("missing required dependencies for Runner")
	}
	if cfg.Amount <= 0 {
		return nil, fmt.Errorf("configuration Amount must be positive")
	}
	if cfg.StopLoss <= 0 || cfg.StopLoss >= 1 {
		return nil, fmt.Errorf("configuration StopLoss must be between 0 and 1")
	}
	if cfg.TakeProfit <= 0 || cfg.TakeProfit >= 1 {
		return nil, fmt.Errorf("configuration TakeProfit must be between 0 and 1")
	}

	recon := NewReconciler(exchange, logger, cfg.Symbol, cfg.RequestTimeout)
	risk := NewRiskEngine(exchange, cfg.Symbol, RiskConfig{
		Amount:     cfg.Amount,
		Leverage:   cfg.Leverage,
		StopLoss:   cfg.StopLoss,
		TakeProfit: cfg.TakeProfit,
	})
	seq := NewSequencer(exchange, repo, risk, recon, logger, cfg.Symbol, cfg.SettleDelay, cfg.RequestTimeout)

	return &Runner{
		cfg:      cfg,
		logger:   logger,
		exchange: exchange,
		repo:     repo,
		strategy: strat,
		recon:    recon,
		seq:      seq,
	}, nil
}

// Run executes the deployment until the context is cancelled. The only
// failures that abort are the startup ones; once the loop is entered,
// nothing escapes the process.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info(ctx, "Deployment starting", map[string]interface{}{
		"deploymentID": r.cfg.DeploymentID,
		"mode":         r.cfg.Mode,
		"symbol":       r.cfg.Symbol,
		"timeframe":    r.cfg.Timeframe,
		"leverage":     r.cfg.Leverage,
		"strategy":     r.strategy.Name(),
	})

	r.configureExchange(ctx)

	ledger, err := r.repo.Load(ctx, r.cfg.DeploymentID, r.cfg.Mode)
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}
	r.logger.Info(ctx, "Ledger loaded", map[string]interface{}{
		"quantity": ledger.Quantity, "realizedPnL": ledger.RealizedPnL, "status": ledger.Status,
	})

	for {
		if err := ctx.Err(); err != nil {
			return r.shutdown(ledger)
		}

		if err := r.cycle(ctx, ledger); err != nil {
			if ctx.Err() != nil {
				return r.shutdown(ledger)
			}
			r.recordCycleError(ctx, ledger, err)
			if serr := sleepCtx(ctx, r.cfg.ErrorBackoff); serr != nil {
				return r.shutdown(ledger)
			}
			continue
		}

		if err := sleepCtx(ctx, r.cfg.PollInterval); err != nil {
			return r.shutdown(ledger)
		}
	}
}

// configureExchange issues the idempotent startup configuration. Failures
// are logged and tolerated: the exchange may already hold the desired
// settings, and reconciliation absorbs any mismatch.
func (r *Runner) configureExchange(ctx context.Context) {
	setupCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	if err := r.exchange.SetLeverage(setupCtx, r.cfg.Symbol, r.cfg.Leverage); err != nil {
		r.logger.Warn(ctx, "Failed to set leverage, continuing with exchange default", map[string]interface{}{
			"symbol": r.cfg.Symbol, "leverage": r.cfg.Leverage, "error": err.Error(),
		})
	}
	if err := r.exchange.SetMarginIsolated(setupCtx, r.cfg.Symbol); err != nil {
		r.logger.Warn(ctx, "Failed to set isolated margin, continuing", map[string]interface{}{
			"symbol": r.cfg.Symbol, "error": err.Error(),
		})
	}
}

// cycle runs one full pass: sync exchange truth, fetch market data,
// evaluate the contract, apply risk and signal, persist. A panic anywhere
// inside is recovered into a cycle error so the loop survives it.
func (r *Runner) cycle(ctx context.Context, ledger *domain.Ledger) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("cycle panic: %v", rec)
		}
	}()

	// 0. Sync real exchange state into the ledger (stale-but-available on failure).
	r.recon.Sync(ctx, ledger)

	// 1. Fetch market data.
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	candles, err := r.exchange.GetCandles(fetchCtx, r.cfg.Symbol, r.cfg.Timeframe, r.cfg.CandleLimit)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %w", ports.ErrDataFetch, err)
	}
	price := domain.LastClose(candles)
	if price <= 0 {
		return fmt.Errorf("%w: no usable price in %d candles", ports.ErrDataFetch, len(candles))
	}

	// 2. Evaluate the strategy contract. A violation downgrades to HOLD
	// for this cycle; it never fails the cycle.
	signal := domain.SignalHold
	_, sig, evalErr := r.strategy.Evaluate(ctx, candles)
	if evalErr != nil {
		r.logger.Warn(ctx, "Strategy contract violation, holding this cycle", map[string]interface{}{
			"strategy": r.strategy.Name(), "error": evalErr.Error(),
		})
	} else {
		signal = sig
	}

	r.logger.Info(ctx, "Cycle decision", map[string]interface{}{
		"price": price, "signal": signal, "quantity": ledger.Quantity,
		"realizedPnL": ledger.RealizedPnL, "unrealizedPnL": ledger.UnrealizedPnL,
	})

	// 3. Risk check and execution.
	if err := r.seq.Step(ctx, ledger, signal, price); err != nil {
		return err
	}

	// 4. Persist the reconciled snapshot; a successful cycle clears any
	// previous error state.
	ledger.Status = domain.StatusRunning
	ledger.LastError = ""
	ledger.ErrorAt = time.Time{}
	if err := r.repo.Save(ctx, ledger); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrPersistence, err)
	}

	return nil
}

// recordCycleError writes the failure to the ledger's error fields. The
// write itself is best-effort: a dead store must not kill the loop.
func (r *Runner) recordCycleError(ctx context.Context, ledger *domain.Ledger, cycleErr error) {
	now := time.Now().UTC()
	ledger.Status = domain.StatusError
	ledger.LastError = cycleErr.Error()
	ledger.ErrorAt = now

	r.logger.Error(ctx, cycleErr, "Cycle failed, backing off", map[string]interface{}{
		"deploymentID": r.cfg.DeploymentID, "backoff": r.cfg.ErrorBackoff.String(),
	})

	if err := r.repo.MarkError(ctx, r.cfg.DeploymentID, r.cfg.Mode, cycleErr.Error(), now); err != nil {
		r.logger.Error(ctx, err, "Failed to persist error state")
	}
}

// shutdown persists the stopped status on external termination. Orders
// already submitted are not rolled back; reconciliation absorbs them if
// the deployment is ever resumed.
func (r *Runner) shutdown(ledger *domain.Ledger) error {
	// The run context is already cancelled; use a short independent one.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r.logger.Info(ctx, "Deployment stopping", map[string]interface{}{
		"deploymentID": r.cfg.DeploymentID, "realizedPnL": ledger.RealizedPnL,
	})
	if err := r.repo.MarkStopped(ctx, r.cfg.DeploymentID, r.cfg.Mode); err != nil {
		r.logger.Error(ctx, err, "Failed to persist stopped status")
	}
	return nil
}
