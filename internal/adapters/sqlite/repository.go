package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"stratbot/internal/domain"
	"stratbot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.LedgerRepository using SQLite. One row per
// (deployment, mode); deployments are single writers of their own rows, so
// concurrent deployments sharing the store never conflict.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/stratbot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the driver benefits from a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite ledger store ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS ledgers (
		deployment_id  TEXT NOT NULL,
		mode           TEXT NOT NULL,
		quantity       REAL NOT NULL DEFAULT 0,
		entry_price    REAL NOT NULL DEFAULT 0,
		realized_pnl   REAL NOT NULL DEFAULT 0,
		unrealized_pnl REAL NOT NULL DEFAULT 0,
		status         TEXT NOT NULL,
		last_error     TEXT DEFAULT NULL,
		error_at       TIMESTAMP DEFAULT NULL,
		last_update    TIMESTAMP NOT NULL,
		PRIMARY KEY (deployment_id, mode)
	);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// Load retrieves the ledger for a deployment, returning a fresh flat
// running ledger when none has been persisted yet.
func (r *Repository) Load(ctx context.Context, deploymentID string, mode domain.Mode) (*domain.Ledger, error) {
	const query = `
	SELECT quantity, entry_price, realized_pnl, unrealized_pnl, status,
	       COALESCE(last_error, ''), error_at, last_update
	FROM ledgers
	WHERE deployment_id = ? AND mode = ?`

	led := domain.NewLedger(deploymentID, mode)
	var errorAt sql.NullTime
	var status string

	err := r.db.QueryRowContext(ctx, query, deploymentID, string(mode)).Scan(
		&led.Quantity, &led.EntryPrice, &led.RealizedPnL, &led.UnrealizedPnL,
		&status, &led.LastError, &errorAt, &led.LastUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		r.logger.Debug(ctx, "No ledger row yet, starting fresh", map[string]interface{}{"deploymentID": deploymentID, "mode": mode})
		return led, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger for %s/%s: %w: %w", deploymentID, mode, ports.ErrQueryFailed, err)
	}

	led.Status = domain.RunStatus(status)
	if errorAt.Valid {
		led.ErrorAt = errorAt.Time
	}
	return led, nil
}

// Save upserts the full ledger snapshot.
func (r *Repository) Save(ctx context.Context, ledger *domain.Ledger) error {
	const query = `
	INSERT INTO ledgers (deployment_id, mode, quantity, entry_price, realized_pnl,
	                     unrealized_pnl, status, last_error, error_at, last_update)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(deployment_id, mode) DO UPDATE SET
		quantity = excluded.quantity,
		entry_price = excluded.entry_price,
		realized_pnl = excluded.realized_pnl,
		unrealized_pnl = excluded.unrealized_pnl,
		status = excluded.status,
		last_error = excluded.last_error,
		error_at = excluded.error_at,
		last_update = excluded.last_update`

	ledger.LastUpdate = time.Now().UTC()

	var lastError sql.NullString
	if ledger.LastError != "" {
		lastError = sql.NullString{String: ledger.LastError, Valid: true}
	}
	var errorAt sql.NullTime
	if !ledger.ErrorAt.IsZero() {
		errorAt = sql.NullTime{Time: ledger.ErrorAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		ledger.DeploymentID, string(ledger.Mode), ledger.Quantity, ledger.EntryPrice,
		ledger.RealizedPnL, ledger.UnrealizedPnL, string(ledger.Status),
		lastError, errorAt, ledger.LastUpdate)
	if err != nil {
		return fmt.Errorf("failed to save ledger for %s/%s: %w: %w", ledger.DeploymentID, ledger.Mode, ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Ledger saved", map[string]interface{}{
		"deploymentID": ledger.DeploymentID, "mode": ledger.Mode,
		"quantity": ledger.Quantity, "realizedPnL": ledger.RealizedPnL,
	})
	return nil
}

// MarkError records a cycle failure on the ledger without touching position
// or PnL fields. The row is created if the failure happened before the
// first successful Save.
func (r *Repository) MarkError(ctx context.Context, deploymentID string, mode domain.Mode, msg string, at time.Time) error {
	const query = `
	INSERT INTO ledgers (deployment_id, mode, status, last_error, error_at, last_update)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(deployment_id, mode) DO UPDATE SET
		status = excluded.status,
		last_error = excluded.last_error,
		error_at = excluded.error_at,
		last_update = excluded.last_update`

	_, err := r.db.ExecContext(ctx, query,
		deploymentID, string(mode), string(domain.StatusError), msg, at, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark error for %s/%s: %w: %w", deploymentID, mode, ports.ErrUpdateFailed, err)
	}
	return nil
}

// MarkStopped resets the ledger to flat and flags it stopped.
func (r *Repository) MarkStopped(ctx context.Context, deploymentID string, mode domain.Mode) error {
	const query = `
	UPDATE ledgers
	SET status = ?, quantity = 0, entry_price = 0, unrealized_pnl = 0,
	    last_error = NULL, error_at = NULL, last_update = ?
	WHERE deployment_id = ? AND mode = ?`

	_, err := r.db.ExecContext(ctx, query,
		string(domain.StatusStopped), time.Now().UTC(), deploymentID, string(mode))
	if err != nil {
		return fmt.Errorf("failed to mark stopped for %s/%s: %w: %w", deploymentID, mode, ports.ErrUpdateFailed, err)
	}
	r.logger.Info(ctx, "Ledger marked stopped", map[string]interface{}{"deploymentID": deploymentID, "mode": mode})
	return nil
}
