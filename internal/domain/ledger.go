package domain

import "time"

// Ledger is the persisted per-deployment position state, keyed by
// deployment id and mode. The exchange is the source of truth for
// Quantity, EntryPrice and UnrealizedPnL; the ledger is the source of
// truth for RealizedPnL, which the exchange does not track per bot.
//
// Invariant: EntryPrice is exactly zero iff Quantity is zero.
type Ledger struct {
	DeploymentID  string
	Mode          Mode
	Quantity      float64 // signed: positive long, negative short, zero flat
	EntryPrice    float64
	RealizedPnL   float64 // monotonically accumulated at close transitions only
	UnrealizedPnL float64 // volatile display value, overwritten every cycle
	Status        RunStatus
	LastError     string
	ErrorAt       time.Time
	LastUpdate    time.Time
}

// NewLedger returns a fresh flat running ledger for a deployment.
func NewLedger(deploymentID string, mode Mode) *Ledger {
	return &Ledger{
		DeploymentID: deploymentID,
		Mode:         mode,
		Status:       StatusRunning,
		LastUpdate:   time.Now().UTC(),
	}
}

// IsFlat reports whether no position is open.
func (l *Ledger) IsFlat() bool { return l.Quantity == 0 }

// IsLong reports whether the open position is long.
func (l *Ledger) IsLong() bool { return l.Quantity > 0 }

// IsShort reports whether the open position is short.
func (l *Ledger) IsShort() bool { return l.Quantity < 0 }

// Direction returns +1 for long, -1 for short and 0 for flat.
func (l *Ledger) Direction() float64 {
	switch {
	case l.Quantity > 0:
		return 1
	case l.Quantity < 0:
		return -1
	default:
		return 0
	}
}

// SetPosition overwrites the exchange-owned fields in one step so the
// entry-price/quantity invariant cannot be violated half-way.
func (l *Ledger) SetPosition(quantity, entryPrice, unrealized float64) {
	if quantity == 0 {
		entryPrice = 0
		unrealized = 0
	}
	l.Quantity = quantity
	l.EntryPrice = entryPrice
	l.UnrealizedPnL = unrealized
}

// Close flattens the position and accrues the realized profit of the
// round trip. The signed quantity makes (exit-entry)*qty correct for
// both directions: a short carries negative quantity.
func (l *Ledger) Close(exitPrice float64) float64 {
	pnl := (exitPrice - l.EntryPrice) * l.Quantity
	l.RealizedPnL += pnl
	l.SetPosition(0, 0, 0)
	return pnl
}
