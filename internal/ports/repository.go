package ports

import (
	"context"
	"time"

	"stratbot/internal/domain"
)

// LedgerRepository defines the interface for persisting per-deployment
// position ledgers. Rows are keyed by (deployment id, mode) so concurrent
// deployments never write over each other.
type LedgerRepository interface {
	// Load retrieves the ledger for a deployment, returning a fresh flat
	// running ledger when none has been persisted yet.
	Load(ctx context.Context, deploymentID string, mode domain.Mode) (*domain.Ledger, error)

	// Save upserts the full ledger snapshot.
	Save(ctx context.Context, ledger *domain.Ledger) error

	// MarkError records a cycle failure on the ledger without touching
	// position or PnL fields.
	MarkError(ctx context.Context, deploymentID string, mode domain.Mode, msg string, at time.Time) error

	// MarkStopped resets the ledger to flat and flags it stopped.
	// Used on external stop and square-off.
	MarkStopped(ctx context.Context, deploymentID string, mode domain.Mode) error
}
